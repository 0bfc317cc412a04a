package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventstar/eventstar/internal/storage"
	"github.com/eventstar/eventstar/pkg/types"
)

const (
	snapshotExt = ".snap"
	metaExt     = ".meta.json"
)

// NewExecutionID returns a time-ordered execution id, so sorting snapshots
// by id sorts them by creation.
func NewExecutionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("snapshot: generate execution id: %w", err)
	}
	return id.String(), nil
}

// ObjectPath returns the object path of a stage snapshot:
// <stage>/<stage>__<executionID>.snap.
func ObjectPath(stage types.Stage, executionID string) string {
	return path.Join(stage.Name(), stage.Name()+"__"+executionID+snapshotExt)
}

// MetaPath returns the sidecar path of a snapshot object.
func MetaPath(objectPath string) string {
	return strings.TrimSuffix(objectPath, snapshotExt) + metaExt
}

// ExecutionIDOf extracts the execution id from a snapshot object path.
func ExecutionIDOf(objectPath string) string {
	base := strings.TrimSuffix(path.Base(objectPath), snapshotExt)
	if i := strings.Index(base, "__"); i >= 0 {
		return base[i+2:]
	}
	return base
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Concurrency bounds parallel downloads in LoadStage
	Concurrency int

	// CacheDir keeps downloaded snapshots between loads. Empty uses a
	// temporary directory per load.
	CacheDir string
}

// Store keeps stage snapshots in object storage.
type Store struct {
	storage storage.ObjectStorage
	config  StoreConfig
	logger  *zap.Logger
}

// NewStore creates a Store over an object storage backend.
func NewStore(s storage.ObjectStorage, cfg StoreConfig, logger *zap.Logger) *Store {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{storage: s, config: cfg, logger: logger}
}

// Save writes rows as the snapshot of executionID and uploads it with its
// sidecar. The sidecar is uploaded last, so a listed sidecar always refers to
// a complete snapshot.
func Save[T any](ctx context.Context, s *Store, c Codec[T], executionID string, rows []T) (string, error) {
	workDir, err := os.MkdirTemp("", "eventstar-snapshot-*")
	if err != nil {
		return "", fmt.Errorf("snapshot: create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	data, err := c.encodeBytes(executionID, rows)
	if err != nil {
		return "", err
	}
	localSnap := filepath.Join(workDir, "batch"+snapshotExt)
	if err := os.WriteFile(localSnap, data, 0644); err != nil {
		return "", fmt.Errorf("snapshot: write local file: %w", err)
	}

	meta, err := c.buildMeta(executionID, rows, int64(len(data)), time.Now().Unix())
	if err != nil {
		return "", err
	}
	localMeta := filepath.Join(workDir, "batch"+metaExt)
	if err := meta.WriteToFile(localMeta); err != nil {
		return "", err
	}

	objectPath := ObjectPath(c.stage, executionID)
	if err := s.storage.Upload(ctx, localSnap, objectPath); err != nil {
		return "", err
	}
	if err := s.storage.Upload(ctx, localMeta, MetaPath(objectPath)); err != nil {
		return "", err
	}

	s.logger.Info("snapshot: saved",
		zap.String("stage", c.stage.Name()),
		zap.String("execution_id", executionID),
		zap.Int("rows", len(rows)),
		zap.Int("bytes", len(data)),
	)
	return objectPath, nil
}

// List returns the snapshot object paths of a stage ordered by execution id.
func (s *Store) List(ctx context.Context, stage types.Stage) ([]string, error) {
	objects, err := s.storage.ListObjects(ctx, stage.Name()+"/")
	if err != nil {
		return nil, fmt.Errorf("snapshot: list %s: %w", stage.Name(), err)
	}

	var snaps []string
	for _, o := range objects {
		if strings.HasSuffix(o, snapshotExt) {
			snaps = append(snaps, o)
		}
	}
	sort.Slice(snaps, func(i, j int) bool {
		return ExecutionIDOf(snaps[i]) < ExecutionIDOf(snaps[j])
	})
	return snaps, nil
}

// Load downloads and decodes one snapshot object.
func Load[T any](ctx context.Context, s *Store, c Codec[T], objectPath string) (*Header, []T, error) {
	rows, headers, err := load(ctx, s, c, []string{objectPath})
	if err != nil {
		return nil, nil, err
	}
	return headers[0], rows, nil
}

// LoadStage downloads every snapshot of the codec's stage in parallel and
// returns their rows concatenated in execution id order.
func LoadStage[T any](ctx context.Context, s *Store, c Codec[T]) ([]T, error) {
	paths, err := s.List(ctx, c.stage)
	if err != nil {
		return nil, err
	}
	rows, _, err := load(ctx, s, c, paths)
	if err != nil {
		return nil, err
	}
	s.logger.Info("snapshot: stage loaded",
		zap.String("stage", c.stage.Name()),
		zap.Int("batches", len(paths)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

func load[T any](ctx context.Context, s *Store, c Codec[T], paths []string) ([]T, []*Header, error) {
	if len(paths) == 0 {
		return nil, nil, nil
	}

	cacheDir := s.config.CacheDir
	if cacheDir == "" {
		dir, err := os.MkdirTemp("", "eventstar-cache-*")
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: create cache dir: %w", err)
		}
		defer os.RemoveAll(dir)
		cacheDir = dir
	}

	downloader := storage.NewBatchDownloader(s.storage, s.config.Concurrency, cacheDir)
	result, err := downloader.Download(ctx, paths)
	if err != nil {
		return nil, nil, err
	}
	if err := result.Err(paths); err != nil {
		return nil, nil, err
	}

	var rows []T
	headers := make([]*Header, 0, len(paths))
	for _, p := range paths {
		h, batch, err := decodeFile(c, result.LocalPaths[p])
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: %s: %w", p, err)
		}
		headers = append(headers, h)
		rows = append(rows, batch...)
	}
	return rows, headers, nil
}

func decodeFile[T any](c Codec[T], localPath string) (*Header, []T, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return c.Decode(f)
}

// Truncate deletes every snapshot and sidecar of a stage and returns the
// number of snapshots removed.
func (s *Store) Truncate(ctx context.Context, stage types.Stage) (int, error) {
	objects, err := s.storage.ListObjects(ctx, stage.Name()+"/")
	if err != nil {
		return 0, fmt.Errorf("snapshot: list %s: %w", stage.Name(), err)
	}

	removed := 0
	for _, o := range objects {
		if err := s.storage.Delete(ctx, o); err != nil {
			return removed, fmt.Errorf("snapshot: delete %s: %w", o, err)
		}
		if strings.HasSuffix(o, snapshotExt) {
			removed++
		}
	}
	s.evictCache(stage)

	s.logger.Info("snapshot: stage truncated",
		zap.String("stage", stage.Name()),
		zap.Int("snapshots", removed),
	)
	return removed, nil
}

// evictCache drops cached downloads of a stage.
func (s *Store) evictCache(stage types.Stage) {
	if s.config.CacheDir == "" {
		return
	}
	matches, _ := filepath.Glob(filepath.Join(s.config.CacheDir, stage.Name()+"_*"))
	for _, m := range matches {
		os.Remove(m)
	}
}

// ReadMeta downloads the sidecar of a snapshot object.
func (s *Store) ReadMeta(ctx context.Context, objectPath string) (*Meta, error) {
	dir, err := os.MkdirTemp("", "eventstar-meta-*")
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, "meta.json")
	if err := s.storage.Download(ctx, MetaPath(objectPath), local); err != nil {
		return nil, err
	}
	return ReadMetaFromFile(local)
}

// BatchesContainingVisitor returns the snapshots of a stage that may hold
// events of visitorID, judged from the sidecar filters alone. Snapshots with
// a missing sidecar are included.
func (s *Store) BatchesContainingVisitor(ctx context.Context, stage types.Stage, visitorID string) ([]string, error) {
	paths, err := s.List(ctx, stage)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, p := range paths {
		meta, err := s.ReadMeta(ctx, p)
		if err != nil {
			if !errors.Is(err, storage.ErrObjectNotFound) {
				return nil, err
			}
			s.logger.Warn("snapshot: sidecar missing", zap.String("object", p))
			out = append(out, p)
			continue
		}
		if meta.MayContainVisitor(visitorID) {
			out = append(out, p)
		}
	}
	return out, nil
}
