package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchDownloader downloads many objects in parallel with bounded
// concurrency, reusing files already present in the cache directory.
type BatchDownloader struct {
	storage     ObjectStorage
	concurrency int
	cacheDir    string
}

// BatchResult contains the outcome of a batch download.
type BatchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	CacheHits  int
	Downloads  int
}

// Err returns the first failure in object path order, or nil.
func (r *BatchResult) Err(objectPaths []string) error {
	for _, p := range objectPaths {
		if err, ok := r.Errors[p]; ok {
			return fmt.Errorf("storage: fetch %s: %w", p, err)
		}
	}
	return nil
}

// NewBatchDownloader creates a new batch downloader. Downloaded files are
// written to cacheDir, which must be set.
func NewBatchDownloader(storage ObjectStorage, concurrency int, cacheDir string) *BatchDownloader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchDownloader{
		storage:     storage,
		concurrency: concurrency,
		cacheDir:    cacheDir,
	}
}

// Download fetches objectPaths. Per-object failures are reported in
// BatchResult.Errors; the returned error is only set when the batch could
// not be attempted at all.
func (b *BatchDownloader) Download(ctx context.Context, objectPaths []string) (*BatchResult, error) {
	result := &BatchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}
	if len(objectPaths) == 0 {
		return result, nil
	}
	if b.cacheDir == "" {
		return nil, fmt.Errorf("storage: batch download requires a cache directory")
	}
	if err := os.MkdirAll(b.cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("storage: create cache dir: %w", err)
	}

	var queue []string
	for _, p := range objectPaths {
		local := b.localPath(p)
		if _, err := os.Stat(local); err == nil {
			result.LocalPaths[p] = local
			result.CacheHits++
			continue
		}
		queue = append(queue, p)
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[p] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(objectPath, local string) {
			defer sem.Release(1)
			defer wg.Done()

			// Download to a temp name so an interrupted fetch is never
			// mistaken for a cache hit.
			tmp := local + ".part"
			err := b.storage.Download(ctx, objectPath, tmp)
			if err == nil {
				err = os.Rename(tmp, local)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				os.Remove(tmp)
				result.Errors[objectPath] = err
				return
			}
			result.LocalPaths[objectPath] = local
			result.Downloads++
		}(p, b.localPath(p))
	}

	wg.Wait()
	return result, nil
}

// localPath maps an object path to a flat file name in the cache directory.
func (b *BatchDownloader) localPath(objectPath string) string {
	name := strings.ReplaceAll(path.Clean(objectPath), "/", "_")
	return filepath.Join(b.cacheDir, name)
}
