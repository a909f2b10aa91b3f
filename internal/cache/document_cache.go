package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dkeller/form4ingest/internal/edgar"
	"github.com/dkeller/form4ingest/internal/metrics"
	"github.com/dkeller/form4ingest/internal/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Downloader fetches one archive URL. Implemented by edgar.Client.
type Downloader interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// DocumentCache resolves a filing reference to its raw SGML text through
// three tiers: in-memory map, on-disk file, network fetch. It guarantees
// at most one network fetch per unique key per process lifetime; concurrent
// callers for the same key coalesce onto the same in-flight fetch.
type DocumentCache struct {
	downloader Downloader
	baseURL    string
	dir        string
	writeDisk  bool
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	mem    map[string]string
	flight singleflight.Group
}

// NewDocumentCache creates a DocumentCache. When writeDisk is false only
// the in-memory tier is populated on a network fetch, avoiding silent disk
// growth.
func NewDocumentCache(downloader Downloader, baseURL, dir string, writeDisk bool, m *metrics.Metrics) *DocumentCache {
	return &DocumentCache{
		downloader: downloader,
		baseURL:    baseURL,
		dir:        dir,
		writeDisk:  writeDisk,
		metrics:    m,
		mem:        make(map[string]string),
	}
}

// Resolve returns the raw SGML submission for ref, consulting memory, then
// disk, then the network. Fetch failures surface as
// edgar.ErrDocumentUnavailable and are never cached, so a later run can
// succeed once the upstream recovers.
func (c *DocumentCache) Resolve(ctx context.Context, ref models.FilingReference) (string, error) {
	key := edgar.SubmissionURL(c.baseURL, ref.CIK, ref.AccessionNumber)

	if raw, ok := c.getMem(key); ok {
		c.metrics.IncCacheHit("memory")
		return raw, nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// A concurrent caller may have populated memory while this call
		// waited on the flight group.
		if raw, ok := c.getMem(key); ok {
			c.metrics.IncCacheHit("memory")
			return raw, nil
		}

		path := edgar.CachePath(c.dir, ref.CIK, c.cacheYear(ref), ref.AccessionNumber)
		if data, err := os.ReadFile(path); err == nil {
			c.metrics.IncCacheHit("disk")
			c.setMem(key, string(data))
			return string(data), nil
		}

		raw, err := c.downloader.Fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		c.metrics.IncNetworkFetch()

		c.setMem(key, raw)
		if c.writeDisk {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				log.Warnf("failed to create cache dir for %s: %v", ref.AccessionNumber, err)
			} else if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
				log.Warnf("failed to write cache file for %s: %v", ref.AccessionNumber, err)
			}
		}
		return raw, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve submission %s: %w", ref.AccessionNumber, err)
	}
	return v.(string), nil
}

// cacheYear keys the disk tier by filing year, falling back to the year
// encoded in the accession number when the reference carries no date.
func (c *DocumentCache) cacheYear(ref models.FilingReference) int {
	if !ref.FilingDate.IsZero() {
		return ref.FilingDate.Year()
	}
	return ref.AccessionNumber.Year()
}

func (c *DocumentCache) getMem(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, ok := c.mem[key]
	return raw, ok
}

func (c *DocumentCache) setMem(key, raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[key] = raw
}
