package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/boa-dev/conformoor/pkg/config"
	"github.com/boa-dev/conformoor/pkg/dashboard"
	"github.com/boa-dev/conformoor/pkg/fetch"
)

var snapshotOutput string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Render the dashboard page once and exit",
	Long: `Fetch the current conformance reports and write the rendered
dashboard HTML to stdout or a file. Each fetch is attempted exactly
once; failed resources are logged and their page sections stay empty.`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotOutput, "output", "o", "",
		"output file (default stdout)")

	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg := config.Default()

	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}

		cfg = loaded
	}

	ctx := cmd.Context()

	// No retries here: a failed fetch fails exactly once and the page
	// renders without that section.
	client := fetch.NewClient(log, &cfg.Reports)

	state := dashboard.NewState()
	refs := cfg.Reports.Refs()

	var (
		wg       sync.WaitGroup
		relMu    sync.Mutex
		releases []dashboard.ReleaseItem
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		info, err := client.Info(ctx)
		if err != nil {
			log.WithError(err).Warn("Failed to fetch engine info")

			return
		}

		state.SetInfo(info)
	}()

	wg.Add(1)

	go func() {
		defer wg.Done()

		rels, err := client.Releases(ctx)
		if err != nil {
			log.WithError(err).Warn("Failed to fetch releases")

			return
		}

		items := make([]dashboard.ReleaseItem, 0, len(rels))
		for _, rel := range rels {
			items = append(items, dashboard.ReleaseItem{
				Tag: rel.TagName,
				URL: rel.HTMLURL,
			})
		}

		relMu.Lock()
		releases = items
		relMu.Unlock()
	}()

	for _, ref := range refs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			fetchRef(ctx, client, state, ref)
		}()
	}

	wg.Wait()

	primaryRef := ""
	if len(refs) > 0 {
		primaryRef = refs[0]
	}

	page := dashboard.Page(cfg.Reports.GitHubRepo, primaryRef, state, releases)
	html := "<!DOCTYPE html>" + page.HTML() + "\n"

	if snapshotOutput == "" {
		fmt.Print(html)

		return nil
	}

	if err := os.WriteFile(snapshotOutput, []byte(html), 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	log.WithField("output", snapshotOutput).Info("Snapshot written")

	return nil
}

// fetchRef loads the latest snapshot for a ref into the shared state,
// backfilling the suite tree from the history when latest.json omits it.
func fetchRef(
	ctx context.Context,
	client *fetch.Client,
	state *dashboard.State,
	ref string,
) {
	latest, err := client.Latest(ctx, ref)
	if err != nil {
		log.WithError(err).WithField("ref", ref).
			Warn("Failed to fetch latest results")

		return
	}

	if latest.Results == nil {
		history, err := client.History(ctx, ref)
		if err != nil {
			log.WithError(err).WithField("ref", ref).
				Warn("Failed to fetch history")
		} else if last := history.Last(); last != nil {
			latest.Results = last.Results
		}
	}

	state.SetLatest(ref, latest)
}
