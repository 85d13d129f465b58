// Package collector polls the upstream report endpoints on an interval
// and maintains the snapshot database, the in-memory dashboard state and
// the report archive.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/boa-dev/conformoor/pkg/api/snapshotstore"
	"github.com/boa-dev/conformoor/pkg/api/storage"
	"github.com/boa-dev/conformoor/pkg/dashboard"
	"github.com/boa-dev/conformoor/pkg/fetch"
	"github.com/boa-dev/conformoor/pkg/report"
)

const (
	defaultInterval    = 15 * time.Minute
	defaultConcurrency = 4
)

// Collector is a background service that periodically fetches the
// report documents for every configured ref and records the results.
type Collector interface {
	Start(ctx context.Context) error
	Stop() error

	// RunPass executes one collection pass synchronously. It is used by
	// the admin trigger endpoint in addition to the background ticker.
	RunPass(ctx context.Context) error
}

// Compile-time interface check.
var _ Collector = (*collector)(nil)

type collector struct {
	log         logrus.FieldLogger
	client      *fetch.Client
	store       snapshotstore.Store
	archive     storage.Writer // may be nil when no archive is configured
	state       *dashboard.State
	refs        []string
	interval    time.Duration
	concurrency int
	done        chan struct{}
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewCollector creates a new background collector for the given refs.
func NewCollector(
	log logrus.FieldLogger,
	client *fetch.Client,
	store snapshotstore.Store,
	archive storage.Writer,
	state *dashboard.State,
	refs []string,
	interval time.Duration,
	concurrency int,
) Collector {
	if interval <= 0 {
		interval = defaultInterval
	}

	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &collector{
		log:         log.WithField("component", "collector"),
		client:      client,
		store:       store,
		archive:     archive,
		state:       state,
		refs:        refs,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate pass and
// then ticks at the configured interval. The first pass is asynchronous
// so the API server starts serving before it completes.
func (c *collector) Start(ctx context.Context) error {
	c.log.WithFields(logrus.Fields{
		"interval":    c.interval.String(),
		"refs":        len(c.refs),
		"concurrency": c.concurrency,
	}).Info("Starting collector")

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		// Run one pass immediately.
		if err := c.RunPass(ctx); err != nil {
			c.log.WithError(err).Warn("Collection pass failed")
		}

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.RunPass(ctx); err != nil {
					c.log.WithError(err).Warn("Collection pass failed")
				}
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the collector goroutine to stop and waits for it.
func (c *collector) Stop() error {
	close(c.done)
	c.wg.Wait()

	c.log.Info("Collector stopped")

	return nil
}

// RunPass executes one full collection pass: engine metadata, the
// releases listing, then every configured ref with bounded parallelism.
// Per-resource failures are logged and do not abort the pass.
func (c *collector) RunPass(ctx context.Context) error {
	start := time.Now()

	c.log.WithField("refs", len(c.refs)).Info("Collection pass started")

	c.collectInfo(ctx)
	c.collectReleases(ctx)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	var collected atomic.Int64

	for _, ref := range c.refs {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-c.done:
				return nil
			default:
			}

			if err := c.collectRef(gCtx, ref); err != nil {
				fetchFailures.WithLabelValues(ref).Inc()
				c.log.WithError(err).
					WithField("ref", ref).
					Warn("Failed to collect ref")

				return nil //nolint:nilerr // log and continue
			}

			collected.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("collecting refs: %w", err)
	}

	passDuration.Observe(time.Since(start).Seconds())

	c.log.WithFields(logrus.Fields{
		"collected": collected.Load(),
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("Collection pass completed")

	return nil
}

// collectInfo refreshes the engine metadata held in dashboard state.
func (c *collector) collectInfo(ctx context.Context) {
	info, err := c.client.Info(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to fetch engine info")

		return
	}

	c.state.SetInfo(info)
}

// collectReleases fetches the releases listing and records every entry.
func (c *collector) collectReleases(ctx context.Context) {
	releases, err := c.client.Releases(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to fetch releases")

		return
	}

	now := time.Now().UTC()

	c.dbMu.Lock()
	defer c.dbMu.Unlock()

	for _, rel := range releases {
		rec := &snapshotstore.Release{
			TagName:     rel.TagName,
			Name:        rel.Name,
			HTMLURL:     rel.HTMLURL,
			Prerelease:  rel.Prerelease,
			PublishedAt: rel.PublishedAt,
			RecordedAt:  now,
		}

		if err := c.store.UpsertRelease(ctx, rec); err != nil {
			c.log.WithError(err).
				WithField("tag", rel.TagName).
				Warn("Failed to record release")
		}
	}

	c.log.WithField("releases", len(releases)).Debug("Recorded releases")
}

// collectRef fetches latest.json and results.json for one ref, updates
// the dashboard state, upserts snapshots and archives the documents.
func (c *collector) collectRef(ctx context.Context, ref string) error {
	latest, err := c.client.Latest(ctx, ref)
	if err != nil {
		return fmt.Errorf("fetching latest: %w", err)
	}

	history, err := c.client.History(ctx, ref)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}

	hasResults := latest.Results != nil

	// Lightweight latest.json documents omit the suite tree; the newest
	// history entry carries it for the extended-information page.
	if latest.Results == nil {
		if last := history.Last(); last != nil {
			latest.Results = last.Results
		}
	}

	c.state.SetLatest(ref, latest)
	conformanceGauge.WithLabelValues(ref).Set(latest.Conformance())

	now := time.Now().UTC()

	c.dbMu.Lock()
	defer c.dbMu.Unlock()

	// History entries are upserted in document order so row IDs preserve
	// the upstream ordering for entries sharing a fetch timestamp.
	for i := range history {
		entry := &history[i]

		snap := &snapshotstore.Snapshot{
			Ref:       ref,
			Commit:    entry.Commit,
			Total:     entry.Total,
			Passed:    entry.Passed,
			Ignored:   entry.Ignored,
			FetchedAt: now,
		}

		if err := c.store.UpsertSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("upserting snapshot %s: %w", entry.Commit, err)
		}
	}

	snap := &snapshotstore.Snapshot{
		Ref:        ref,
		Commit:     latest.Commit,
		Total:      latest.Total,
		Passed:     latest.Passed,
		Ignored:    latest.Ignored,
		HasResults: hasResults,
		FetchedAt:  now,
	}

	if err := c.store.UpsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("upserting latest snapshot: %w", err)
	}

	snapshotsUpserted.WithLabelValues(ref).Add(float64(len(history) + 1))

	c.archiveRef(ctx, ref, latest, history)

	c.log.WithFields(logrus.Fields{
		"ref":    ref,
		"commit": latest.Commit,
	}).Info("Collected ref")

	return nil
}

// archiveRef stores the fetched documents in the report archive keyed by
// the latest commit. Archive failures are logged and do not fail the ref.
func (c *collector) archiveRef(
	ctx context.Context,
	ref string,
	latest *report.Latest,
	history report.History,
) {
	if c.archive == nil {
		return
	}

	files := map[string]any{
		"latest.json":  latest,
		"results.json": history,
	}

	for name, doc := range files {
		data, err := json.Marshal(doc)
		if err != nil {
			c.log.WithError(err).
				WithField("file", name).
				Warn("Failed to encode archive document")

			continue
		}

		if err := c.archive.PutRefFile(
			ctx, ref, latest.Commit, name, data,
		); err != nil {
			c.log.WithError(err).
				WithFields(logrus.Fields{"ref": ref, "file": name}).
				Warn("Failed to archive document")
		}
	}
}
