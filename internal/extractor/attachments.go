package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"

	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/sam"
)

// maxAttachmentBytes caps a single download.
const maxAttachmentBytes = 50 << 20

// fetchAttachments downloads every resource link on a bounded worker pool.
// Fetches are independent: one failure is logged and excluded without
// canceling siblings, and completion order does not matter.
func (x *Extractor) fetchAttachments(ctx context.Context, id, prefix string, links []string) (fetched, failed int) {
	if len(links) == 0 {
		return 0, 0
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := x.cfg.Workers
	if workers > len(links) {
		workers = len(links)
	}

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range jobs {
				err := x.fetchOne(ctx, id, prefix, link)
				mu.Lock()
				if err != nil {
					failed++
					x.logger.Warn("attachment fetch failed",
						zap.String("opportunity_id", id),
						zap.String("url", link),
						zap.Error(err),
					)
				} else {
					fetched++
				}
				mu.Unlock()
			}
		}()
	}

	for _, link := range links {
		jobs <- link
	}
	close(jobs)
	wg.Wait()

	return fetched, failed
}

func (x *Extractor) fetchOne(ctx context.Context, id, prefix, link string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, x.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: bad status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	key := fmt.Sprintf("%s/%s_%s", prefix, id, attachmentName(link))
	contentType := resp.Header.Get("Content-Type")

	putCtx, cancel := x.storeCtx(ctx)
	defer cancel()
	if err := x.store.Put(putCtx, key, data, contentType); err != nil {
		return fmt.Errorf("store attachment: %w", err)
	}
	return nil
}

// attachmentName derives a storage-safe filename from the link. The
// extension survives sanitization so content-type fallbacks keep working.
func attachmentName(link string) string {
	name := "attachment"
	if u, err := url.Parse(link); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			name = base
		}
	}

	ext := path.Ext(name)
	stem := name[:len(name)-len(ext)]
	return sam.SanitizeID(stem) + ext
}
