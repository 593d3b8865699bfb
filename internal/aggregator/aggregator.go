// Package aggregator merges per-opportunity match results into time-windowed
// summaries and archives consumed inputs.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/retry"
	"github.com/opsarka/samradar/internal/storage"
)

// Config tunes one aggregation pass.
type Config struct {
	// WindowSize is the merge-window width.
	WindowSize time.Duration `mapstructure:"window-size"`
	// ActivePrefix holds unmerged raw results.
	ActivePrefix string `mapstructure:"active-prefix"`
	// ArchivePrefix receives merged raw results.
	ArchivePrefix string `mapstructure:"archive-prefix"`
	// SummaryPrefix receives window summaries.
	SummaryPrefix string `mapstructure:"summary-prefix"`
	// StorageTimeout bounds each individual storage call.
	StorageTimeout time.Duration `mapstructure:"storage-timeout"`
}

func (c *Config) applyDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 5 * time.Minute
	}
	if c.ActivePrefix == "" {
		c.ActivePrefix = "results"
	}
	if c.ArchivePrefix == "" {
		c.ArchivePrefix = "archive"
	}
	if c.SummaryPrefix == "" {
		c.SummaryPrefix = "runs"
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 30 * time.Second
	}
}

// Report is the structured status of one pass.
type Report struct {
	Window     string `json:"window"`
	Merged     int    `json:"merged"`
	Recovered  int    `json:"recovered"`
	Skipped    int    `json:"skipped"`
	Archived   int    `json:"archived"`
	SummaryKey string `json:"summary_key,omitempty"`
}

// Aggregator runs the merge/archive pass. Stateless between runs: all state
// lives in the object store. Scheduling is at-least-once; a raw object can
// appear in two adjacent summaries if a crash lands between the summary
// write and the archive move, never zero.
type Aggregator struct {
	store  storage.Store
	logger *zap.Logger
	cfg    Config
	now    func() time.Time
}

func New(store storage.Store, logger *zap.Logger, cfg Config) *Aggregator {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, logger: logger, cfg: cfg, now: time.Now}
}

// Run executes one pass over the most recently completed window. Objects
// modified before the window start are orphans from a missed prior run and
// are merged too (counted as recovered). Unparsable objects are left in
// place for a later retry.
func (a *Aggregator) Run(ctx context.Context) (*Report, error) {
	window := CurrentWindow(a.now(), a.cfg.WindowSize)
	report := &Report{Window: window.String()}

	listCtx, cancel := a.storeCtx(ctx)
	infos, err := a.store.List(listCtx, a.cfg.ActivePrefix+"/")
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list active results: %w", err)
	}

	var records []json.RawMessage
	var mergedKeys []string

	for _, info := range infos {
		if !info.LastModified.Before(window.End) {
			// Belongs to a window that has not closed yet.
			continue
		}
		recovered := info.LastModified.Before(window.Start)

		getCtx, cancel := a.storeCtx(ctx)
		data, err := a.store.Get(getCtx, info.Key)
		cancel()
		if err != nil {
			report.Skipped++
			a.logger.Warn("reading raw result failed, leaving for retry",
				zap.String("key", info.Key),
				zap.Error(err),
			)
			continue
		}

		var parsed any
		if err := json.Unmarshal(data, &parsed); err != nil {
			// Never discard: unmerged and unarchived, it is retried on a
			// future pass once fixed or cleaned up out of band.
			report.Skipped++
			a.logger.Warn("unparsable raw result, leaving unarchived",
				zap.String("key", info.Key),
				zap.Error(err),
			)
			continue
		}

		records = append(records, json.RawMessage(data))
		mergedKeys = append(mergedKeys, info.Key)
		if recovered {
			report.Recovered++
			a.logger.Info("recovered orphaned result from before window start",
				zap.String("key", info.Key),
				zap.Time("last_modified", info.LastModified),
				zap.String("window", window.String()),
			)
		}
	}

	report.Merged = len(records)
	if report.Merged == 0 {
		a.logger.Info("no mergeable results, skipping summary",
			zap.String("window", window.String()),
			zap.Int("skipped", report.Skipped),
		)
		return report, nil
	}

	summary, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}

	summaryKey := window.SummaryKey(a.cfg.SummaryPrefix)
	err = retry.Do(ctx, retry.DefaultPolicy, func() error {
		putCtx, cancel := a.storeCtx(ctx)
		defer cancel()
		return a.store.Put(putCtx, summaryKey, summary, "application/json")
	})
	if err != nil {
		return nil, fmt.Errorf("write summary %s: %w", summaryKey, err)
	}
	report.SummaryKey = summaryKey

	// Archive only after the summary write succeeded. An archive failure
	// here means the object is re-merged next pass: at-least-once.
	for _, key := range mergedKeys {
		if err := a.archive(ctx, key); err != nil {
			a.logger.Warn("archiving merged result failed, will re-merge next run",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		report.Archived++
	}

	a.logger.Info("aggregation pass finished",
		zap.String("window", window.String()),
		zap.String("summary_key", summaryKey),
		zap.Int("merged", report.Merged),
		zap.Int("recovered", report.Recovered),
		zap.Int("skipped", report.Skipped),
		zap.Int("archived", report.Archived),
	)

	return report, nil
}

// archive moves one raw object to the archive prefix, retaining its
// filename. Copy before delete; no reverse transition.
func (a *Aggregator) archive(ctx context.Context, key string) error {
	dst := a.cfg.ArchivePrefix + "/" + path.Base(key)

	err := retry.Do(ctx, retry.DefaultPolicy, func() error {
		copyCtx, cancel := a.storeCtx(ctx)
		defer cancel()
		return a.store.Copy(copyCtx, key, dst)
	})
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}

	removeCtx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.store.Remove(removeCtx, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// storeCtx bounds one storage call.
func (a *Aggregator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.StorageTimeout)
}
