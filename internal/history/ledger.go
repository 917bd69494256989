package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"watcher/internal/model"
)

// LedgerStore persists the full ordered ledger.
type LedgerStore interface {
	Load() ([]model.SignalRecord, error)
	Save(records []model.SignalRecord) error
}

// FileStore keeps the ledger as a JSON array in a single file.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the ledger file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the ledger. A missing file is an empty ledger. A file that does
// not decode is renamed to <path>.corrupt-<unix seconds> so the next Save
// cannot overwrite it.
func (f *FileStore) Load() ([]model.SignalRecord, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var records []model.SignalRecord
	if err := json.Unmarshal(data, &records); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", f.path, f.now().Unix())
		if rerr := os.Rename(f.path, aside); rerr != nil {
			return nil, fmt.Errorf("decode ledger %s: %w (moving it aside failed: %v)", f.path, err, rerr)
		}
		return nil, fmt.Errorf("decode ledger %s, moved to %s: %w", f.path, aside, err)
	}
	return records, nil
}

// Save rewrites the ledger. The data goes to a temp file in the same
// directory which is then renamed over the old one, so a crash leaves either
// the previous or the new ledger on disk.
func (f *FileStore) Save(records []model.SignalRecord) error {
	if records == nil {
		records = []model.SignalRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
