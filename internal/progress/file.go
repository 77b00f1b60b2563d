package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const stampLayout = "20060102T150405"

// FilePersister stores the document as one JSON file. The writer holds a
// sidecar lock file for its lifetime.
type FilePersister struct {
	path string
	lock *flock.Flock
	now  func() time.Time
}

// OpenFile opens path for writing and takes the "<path>.lock" lock.
// It returns ErrLocked when another process holds it.
func OpenFile(path string) (*FilePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "progress: create dir for %s", path)
	}
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "progress: lock %s", lock.Path())
	}
	if !ok {
		return nil, eris.Wrapf(ErrLocked, "lock %s", lock.Path())
	}
	return &FilePersister{path: path, lock: lock, now: time.Now}, nil
}

// NewFileReader returns a read-only persister that takes no lock, for
// status readers running beside a writer.
func NewFileReader(path string) *FilePersister {
	return &FilePersister{path: path, now: time.Now}
}

// Path returns the document path.
func (f *FilePersister) Path() string { return f.path }

// Read implements Persister. A corrupt file is moved aside by the writer
// and reported as absent.
func (f *FilePersister) Read(_ context.Context) (*Document, error) {
	return f.read(true)
}

// Inspect implements Inspector. A corrupt file is reported as absent and
// left in place.
func (f *FilePersister) Inspect(_ context.Context) (*Document, error) {
	return f.read(false)
}

func (f *FilePersister) read(quarantine bool) (*Document, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "progress: read %s", f.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		if quarantine {
			f.quarantine(err)
		} else {
			zap.L().Warn("progress: progress file is corrupt", zap.String("path", f.path), zap.Error(err))
		}
		return nil, nil
	}
	return &doc, nil
}

func (f *FilePersister) quarantine(cause error) {
	if f.lock == nil {
		zap.L().Warn("progress: progress file is corrupt", zap.String("path", f.path), zap.Error(cause))
		return
	}
	dst := f.path + ".corrupt-" + f.now().UTC().Format(stampLayout)
	if err := os.Rename(f.path, dst); err != nil {
		zap.L().Warn("progress: move corrupt file aside", zap.String("path", f.path), zap.Error(err))
		return
	}
	zap.L().Warn("progress: corrupt progress file moved aside",
		zap.String("path", f.path),
		zap.String("moved_to", dst),
		zap.Error(cause),
	)
}

// Write implements Persister. The whole document is written to a temp file
// in the same directory, synced, then renamed over the target.
func (f *FilePersister) Write(_ context.Context, doc *Document, _ []string) error {
	if f.lock == nil {
		return eris.New("progress: file persister is read-only")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "progress: marshal document")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "progress: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "progress: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "progress: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "progress: close temp file")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return eris.Wrapf(err, "progress: replace %s", f.path)
	}
	return nil
}

// Archive renames the current file to "<path>.<timestamp>.bak".
func (f *FilePersister) Archive(_ context.Context) error {
	if f.lock == nil {
		return eris.New("progress: file persister is read-only")
	}
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return nil
	}
	dst := f.path + "." + f.now().UTC().Format(stampLayout) + ".bak"
	if err := os.Rename(f.path, dst); err != nil {
		return eris.Wrapf(err, "progress: archive %s", f.path)
	}
	zap.L().Info("progress: archived", zap.String("path", dst))
	return nil
}

// Close releases the lock.
func (f *FilePersister) Close() error {
	if f.lock == nil {
		return nil
	}
	return f.lock.Unlock()
}
