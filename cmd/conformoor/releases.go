package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boa-dev/conformoor/pkg/config"
	"github.com/boa-dev/conformoor/pkg/fetch"
)

var releasesPrereleases bool

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "List the tracked repository's releases",
	RunE:  runReleases,
}

func init() {
	releasesCmd.Flags().BoolVar(&releasesPrereleases, "prereleases", false,
		"include prereleases")

	rootCmd.AddCommand(releasesCmd)
}

func runReleases(cmd *cobra.Command, args []string) error {
	cfg := config.Default()

	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cfg = loaded
	}

	client := fetch.NewClient(log, &cfg.Reports)

	releases, err := client.Releases(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetching releases: %w", err)
	}

	for _, rel := range releases {
		if rel.Prerelease && !releasesPrereleases {
			continue
		}

		fmt.Printf("%s\t%s\t%s\n",
			rel.TagName,
			rel.PublishedAt.Format("2006-01-02"),
			rel.HTMLURL,
		)
	}

	return nil
}
