package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/errs"
	"github.com/opsarka/samradar/internal/queue"
	"github.com/opsarka/samradar/internal/retry"
	"github.com/opsarka/samradar/internal/sam"
	"github.com/opsarka/samradar/internal/storage"
)

// ResultsPrefix is where per-opportunity match results are written; the
// aggregator consumes this prefix.
const ResultsPrefix = "results"

// fetchBackoff is the pause after a failed fetch so a down broker does not
// spin the loop.
const fetchBackoff = time.Second

// consumer is the queue contract the worker drives. Satisfied by
// queue.Consumer; tests substitute a fake.
type consumer interface {
	Fetch(ctx context.Context) (*queue.Message, error)
	Commit(ctx context.Context, m *queue.Message) error
}

// Worker consumes opportunity keys and runs the engine for each. Delivery
// is at-least-once: a message is committed only after its result is written
// or the opportunity is classified as a permanent skip.
type Worker struct {
	engine   *Engine
	store    storage.Store
	consumer consumer
	logger   *zap.Logger

	// storageTimeout bounds each individual storage call; taken from the
	// engine config so both ends of a message share one knob.
	storageTimeout time.Duration
}

func NewWorker(engine *Engine, store storage.Store, c consumer, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := defaultStorageTimeout
	if engine != nil && engine.cfg.StorageTimeout > 0 {
		timeout = engine.cfg.StorageTimeout
	}

	return &Worker{engine: engine, store: store, consumer: c, logger: logger, storageTimeout: timeout}
}

// Run processes messages until the context is canceled. One message's
// failure never fails its siblings; a retryable failure leaves the message
// uncommitted for redelivery.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.consumer.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				w.logger.Info("context canceled, stopping worker")
				return nil
			}
			w.logger.Error("fetch message", zap.Error(err))
			select {
			case <-ctx.Done():
				w.logger.Info("context canceled, stopping worker")
				return nil
			case <-time.After(fetchBackoff):
			}
			continue
		}

		err = w.ProcessKey(ctx, msg.Key)
		if err != nil && errs.Retryable(err) {
			w.logger.Warn("processing failed, leaving message for redelivery",
				zap.String("key", msg.Key),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			// Data errors are terminal for the message: log and move on.
			w.logger.Warn("skipping malformed opportunity",
				zap.String("key", msg.Key),
				zap.Error(err),
			)
		}

		if err := w.consumer.Commit(ctx, msg); err != nil {
			w.logger.Error("commit message", zap.String("key", msg.Key), zap.Error(err))
		}
	}
}

// ProcessKey evaluates the opportunity stored at key and writes its result.
// Safe to re-invoke for the same key: the result write overwrites.
func (w *Worker) ProcessKey(ctx context.Context, key string) error {
	getCtx, cancel := context.WithTimeout(ctx, w.storageTimeout)
	data, err := w.store.Get(getCtx, key)
	cancel()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errs.Data("load opportunity", fmt.Errorf("%s: %w", key, err))
		}
		return err
	}

	opp, err := decodeRecord(data)
	if err != nil {
		return errs.Data("decode opportunity", fmt.Errorf("%s: %w", key, err))
	}

	attachmentText := w.loadAttachmentText(ctx, key)

	result, err := w.engine.Evaluate(ctx, opp, attachmentText, key)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errs.Data("encode result", err)
	}

	resultKey := fmt.Sprintf("%s/%s.json", ResultsPrefix, opp.CanonicalID)
	err = retry.Do(ctx, retry.DefaultPolicy, func() error {
		putCtx, cancel := context.WithTimeout(ctx, w.storageTimeout)
		defer cancel()
		return w.store.Put(putCtx, resultKey, payload, "application/json")
	})
	if err != nil {
		return fmt.Errorf("write result %s: %w", resultKey, err)
	}

	w.logger.Info("match result written",
		zap.String("opportunity_id", opp.CanonicalID),
		zap.String("result_key", resultKey),
		zap.Float64("score", result.Score),
	)
	return nil
}

// loadAttachmentText concatenates the text-bearing attachments stored next
// to the opportunity record. Best effort: a missing or binary attachment is
// skipped silently.
func (w *Worker) loadAttachmentText(ctx context.Context, recordKey string) string {
	prefix := path.Dir(recordKey) + "/"

	listCtx, cancel := context.WithTimeout(ctx, w.storageTimeout)
	infos, err := w.store.List(listCtx, prefix)
	cancel()
	if err != nil {
		w.logger.Debug("listing attachments failed", zap.String("prefix", prefix), zap.Error(err))
		return ""
	}

	var parts []string
	for _, info := range infos {
		if info.Key == recordKey || !textLike(info) {
			continue
		}
		getCtx, cancel := context.WithTimeout(ctx, w.storageTimeout)
		data, err := w.store.Get(getCtx, info.Key)
		cancel()
		if err != nil {
			w.logger.Debug("reading attachment failed", zap.String("key", info.Key), zap.Error(err))
			continue
		}
		parts = append(parts, string(data))
	}

	return strings.Join(parts, "\n\n")
}

func textLike(info storage.Info) bool {
	if strings.HasPrefix(info.ContentType, "text/") || info.ContentType == "application/json" {
		return true
	}
	switch strings.ToLower(path.Ext(info.Key)) {
	case ".txt", ".md", ".json", ".html", ".csv":
		return true
	}
	return false
}

func decodeRecord(data []byte) (*sam.Opportunity, error) {
	var opp sam.Opportunity
	if err := json.Unmarshal(data, &opp); err != nil {
		return nil, err
	}
	if opp.CanonicalID == "" {
		return nil, errors.New("record has no canonical id")
	}
	return &opp, nil
}
