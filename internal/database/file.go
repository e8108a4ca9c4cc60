package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	scansKey     = "scans"
	maxFileScans = 200
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileStore keeps one file per key inside a directory.
// Every write goes to a temporary file which is then renamed over the target.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed and returns a store rooted there
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid store key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

// Load reads the file for key; a missing file yields (nil, nil)
func (f *FileStore) Load(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(key)
}

func (f *FileStore) load(key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// Save atomically replaces the file for key
func (f *FileStore) Save(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(key, data)
}

func (f *FileStore) save(key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	return AtomicWriteFile(p, data, 0o644)
}

// SaveScan appends a record to the scan history file, keeping the newest maxFileScans
func (f *FileStore) SaveScan(ctx context.Context, scan *models.ScanRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	scans, err := f.readScans()
	if err != nil {
		return err
	}
	scans = append(scans, scan)
	if len(scans) > maxFileScans {
		scans = scans[len(scans)-maxFileScans:]
	}

	data, err := json.Marshal(scans)
	if err != nil {
		return fmt.Errorf("failed to marshal scans: %w", err)
	}
	return f.save(scansKey, data)
}

// RecentScans returns up to limit records, newest first
func (f *FileStore) RecentScans(ctx context.Context, limit int) ([]*models.ScanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	scans, err := f.readScans()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(scans, func(i, j int) bool {
		return scans[i].CreatedAt.After(scans[j].CreatedAt)
	})
	if limit >= 0 && len(scans) > limit {
		scans = scans[:limit]
	}
	return scans, nil
}

func (f *FileStore) readScans() ([]*models.ScanRecord, error) {
	data, err := f.load(scansKey)
	if err != nil || data == nil {
		return nil, err
	}
	var scans []*models.ScanRecord
	if err := json.Unmarshal(data, &scans); err != nil {
		log.Warn().Err(err).Str("dir", f.dir).Msg("Scan history is corrupt, starting a new one")
		return nil, nil
	}
	return scans, nil
}

// Close is a no-op; files are closed after every operation
func (f *FileStore) Close() error {
	return nil
}

var _ DB = (*FileStore)(nil)
