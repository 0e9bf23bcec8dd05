package relay

import (
	"context"
	"encoding/base32"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/offlinepay/relay/internal/interfaces"
)

// DefaultPollInterval is how often the file transport scans its directory for
// records written by other processes.
const DefaultPollInterval = 250 * time.Millisecond

// fileRecord wraps a transport record with its expiry so late readers can skip
// records whose horizon already elapsed.
type fileRecord struct {
	Record    interfaces.Record `json:"record"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// File is a Transport backed by a shared directory: one JSON file per record
// key, observed by polling. It lets two co-located processes relay events to
// each other without any broker.
type File struct {
	dir  string
	poll time.Duration

	mu   sync.Mutex
	seen map[string]time.Time // file name -> last observed mtime
}

var _ interfaces.Transport = (*File)(nil)

// NewFile opens (creating if needed) the shared record directory.
func NewFile(dir string, poll time.Duration) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &File{dir: dir, poll: poll, seen: make(map[string]time.Time)}, nil
}

func (f *File) path(key string) string {
	name := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(key))
	return filepath.Join(f.dir, name+".json")
}

func (f *File) Put(ctx context.Context, rec interfaces.Record, ttl time.Duration) error {
	data, err := json.Marshal(fileRecord{Record: rec, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return err
	}
	path := f.path(rec.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	// The writing process marks its own file as seen so its watcher does not
	// have to decode it just to discard it by origin.
	f.mu.Lock()
	if info, err := os.Stat(path); err == nil {
		f.seen[filepath.Base(path)] = info.ModTime()
	}
	f.mu.Unlock()
	return nil
}

func (f *File) Delete(ctx context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *File) Watch(ctx context.Context) (<-chan interfaces.Record, error) {
	ch := make(chan interfaces.Record, 64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(f.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.scan(ctx, ch)
			}
		}
	}()
	return ch, nil
}

func (f *File) scan(ctx context.Context, ch chan<- interfaces.Record) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return
	}
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		f.mu.Lock()
		last, ok := f.seen[entry.Name()]
		fresh := !ok || info.ModTime().After(last)
		if fresh {
			f.seen[entry.Name()] = info.ModTime()
		}
		f.mu.Unlock()
		if !fresh {
			continue
		}

		data, err := os.ReadFile(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec fileRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if !rec.ExpiresAt.IsZero() && now.After(rec.ExpiresAt) {
			continue
		}
		select {
		case ch <- rec.Record:
		case <-ctx.Done():
			return
		}
	}
}
