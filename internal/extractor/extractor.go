// Package extractor normalizes raw SAM.gov bulk dumps into per-opportunity
// records and fetches their attachments.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/retry"
	"github.com/opsarka/samradar/internal/sam"
	"github.com/opsarka/samradar/internal/storage"
)

const (
	defaultFetchTimeout   = 30 * time.Second
	defaultStorageTimeout = 30 * time.Second
)

// Config tunes the extraction run.
type Config struct {
	// Workers is the attachment worker-pool width per opportunity.
	Workers int `mapstructure:"workers"`
	// FetchTimeout bounds each attachment download.
	FetchTimeout time.Duration `mapstructure:"fetch-timeout"`
	// StorageTimeout bounds each individual storage call.
	StorageTimeout time.Duration `mapstructure:"storage-timeout"`
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = defaultStorageTimeout
	}
}

// Publisher is the queue contract the extractor emits to. Satisfied by
// queue.Publisher; tests substitute a recorder.
type Publisher interface {
	Publish(ctx context.Context, key string) error
}

// Report summarizes one extraction run; the command prints it as the
// structured status payload.
type Report struct {
	RunID              string   `json:"run_id"`
	Variant            string   `json:"schema_variant"`
	Extracted          int      `json:"extracted"`
	Skipped            int      `json:"skipped"`
	Attachments        int      `json:"attachments"`
	AttachmentFailures int      `json:"attachment_failures"`
	Keys               []string `json:"keys"`
}

// Extractor turns one bulk dump into day-partitioned opportunity records.
type Extractor struct {
	store     storage.Store
	publisher Publisher
	client    *http.Client
	logger    *zap.Logger
	cfg       Config
}

func New(store storage.Store, pub Publisher, logger *zap.Logger, cfg Config) *Extractor {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		store:     store,
		publisher: pub,
		client:    &http.Client{Timeout: cfg.FetchTimeout},
		logger:    logger,
		cfg:       cfg,
	}
}

// Run extracts every opportunity in the dump. Failures are isolated at the
// smallest granularity: a malformed opportunity or failed attachment is
// logged and skipped without aborting the batch. Only an unusable dump
// (invalid JSON, no array) fails the run.
func (x *Extractor) Run(ctx context.Context, dump []byte, runDate time.Time) (*Report, error) {
	elems, variant, err := sam.ParseBulkDump(dump)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:   uuid.NewString(),
		Variant: variant,
	}

	x.logger.Info("starting extraction",
		zap.String("run_id", report.RunID),
		zap.String("schema_variant", variant),
		zap.Int("opportunities", len(elems)),
	)

	for _, elem := range elems {
		key, fetched, failed, err := x.processOpportunity(ctx, elem, runDate)
		if err != nil {
			report.Skipped++
			x.logger.Warn("skipping opportunity", zap.Error(err))
			continue
		}

		report.Extracted++
		report.Attachments += fetched
		report.AttachmentFailures += failed
		report.Keys = append(report.Keys, key)
	}

	x.logger.Info("extraction finished",
		zap.String("run_id", report.RunID),
		zap.Int("extracted", report.Extracted),
		zap.Int("skipped", report.Skipped),
		zap.Int("attachments", report.Attachments),
		zap.Int("attachment_failures", report.AttachmentFailures),
	)

	return report, nil
}

func (x *Extractor) processOpportunity(ctx context.Context, elem map[string]any, runDate time.Time) (string, int, int, error) {
	id, err := sam.CanonicalID(elem)
	if err != nil {
		return "", 0, 0, err
	}

	opp := sam.FromRaw(id, elem)
	date := partitionDate(opp, runDate)
	prefix := fmt.Sprintf("%s/%s", date, id)
	key := fmt.Sprintf("%s/%s_opportunity.json", prefix, id)

	// Records are write-once per id per day. A duplicate id in the dump or
	// a re-run of the same dump keeps the first record.
	checkCtx, cancel := x.storeCtx(ctx)
	_, err = x.store.Get(checkCtx, key)
	cancel()
	switch {
	case err == nil:
		x.logger.Info("record already exists, keeping the original",
			zap.String("opportunity_id", id),
			zap.String("key", key),
		)
		return key, 0, 0, nil
	case !errors.Is(err, storage.ErrNotFound):
		return "", 0, 0, fmt.Errorf("check record %s: %w", key, err)
	}

	payload, err := json.Marshal(opp)
	if err != nil {
		return "", 0, 0, fmt.Errorf("encode record %s: %w", id, err)
	}

	err = retry.Do(ctx, retry.DefaultPolicy, func() error {
		putCtx, cancel := x.storeCtx(ctx)
		defer cancel()
		return x.store.Put(putCtx, key, payload, "application/json")
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("write record %s: %w", key, err)
	}

	fetched, failed := x.fetchAttachments(ctx, id, prefix, opp.ResourceLinks)

	if x.publisher != nil {
		if err := x.publisher.Publish(ctx, key); err != nil {
			// The record is written; delivery can be replayed from storage.
			x.logger.Warn("publishing opportunity key failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	x.logger.Debug("opportunity extracted",
		zap.String("opportunity_id", id),
		zap.String("key", key),
		zap.Int("attachments", fetched),
	)

	return key, fetched, failed, nil
}

// storeCtx bounds one storage call.
func (x *Extractor) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, x.cfg.StorageTimeout)
}

// partitionDate prefers the notice's posted date so reprocessing a historic
// dump lands in stable keys.
func partitionDate(opp *sam.Opportunity, runDate time.Time) string {
	if ts := opp.PostedTime(); !ts.IsZero() {
		return ts.UTC().Format("20060102")
	}
	return runDate.UTC().Format("20060102")
}
