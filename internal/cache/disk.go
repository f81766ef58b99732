package cache

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
)

const tempPrefix = ".tmp-"

type diskEntry struct {
	size int64 // bytes on disk, header included
	sum  uint32
}

// DiskStore persists each entry as one file under dir. An in-memory LRU
// index, rebuilt from file modification times on open, decides eviction.
type DiskStore struct {
	dir    string
	budget int64
	logger logrus.FieldLogger

	mu    sync.Mutex
	size  int64
	index *simplelru.LRU[string, diskEntry]
}

// OpenDiskStore opens (creating if needed) a store rooted at dir that keeps
// at most budget bytes on disk.
func OpenDiskStore(dir string, budget int64, logger logrus.FieldLogger) (*DiskStore, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("cache budget must be > 0 (got %d)", budget)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewCacheIOError("creating cache directory", err)
	}
	index, err := simplelru.NewLRU[string, diskEntry](math.MaxInt32, nil)
	if err != nil {
		return nil, err
	}
	s := &DiskStore{dir: dir, budget: budget, logger: logger, index: index}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

type loadedFile struct {
	name    string
	modTime time.Time
	entry   diskEntry
}

// load rebuilds the index, oldest file first so recency survives restarts.
func (s *DiskStore) load() error {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return apperrors.NewCacheIOError("reading cache directory", err)
	}
	var files []loadedFile
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		if strings.HasPrefix(de.Name(), tempPrefix) {
			// Left over from an interrupted write.
			_ = os.Remove(path)
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		h, err := readHeader(path)
		if err != nil || h.length+entryHeaderSize != info.Size() {
			s.logger.WithField("file", de.Name()).Warn("Dropping unreadable cache entry")
			_ = os.Remove(path)
			continue
		}
		files = append(files, loadedFile{
			name:    de.Name(),
			modTime: info.ModTime(),
			entry:   diskEntry{size: info.Size(), sum: h.sum},
		})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		s.index.Add(f.name, f.entry)
		s.size += f.entry.size
	}
	s.evictLocked()
	return nil
}

func readHeader(path string) (entryHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return entryHeader{}, err
	}
	defer f.Close()
	buf := make([]byte, entryHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return entryHeader{}, err
	}
	return decodeHeader(buf)
}

// fileName maps arbitrary keys to safe, fixed-length file names
func fileName(k Keyer) string {
	return digest.FromString(k.Key()).Encoded()
}

func (s *DiskStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *DiskStore) Get(k Keyer) ([]byte, time.Time, error) {
	name := fileName(k)
	s.mu.Lock()
	seen, ok := s.index.Get(name)
	s.mu.Unlock()
	if !ok {
		return nil, time.Time{}, ErrNotCached
	}

	buf, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Evicted between the index lookup and the read.
			s.dropIf(name, seen)
			return nil, time.Time{}, ErrNotCached
		}
		s.logger.WithError(err).WithField("key", k.Key()).Warn("Cache entry unreadable, treating as miss")
		s.dropIf(name, seen)
		return nil, time.Time{}, ErrNotCached
	}
	value, inserted, err := decodeEntry(buf)
	if err != nil {
		s.logger.WithField("key", k.Key()).Warn("Cache entry corrupt, evicting")
		s.dropIf(name, seen)
		return nil, time.Time{}, ErrNotCached
	}
	return value, inserted, nil
}

func (s *DiskStore) Put(k Keyer, v []byte) error {
	name := fileName(k)
	frameSize := int64(entryHeaderSize + len(v))
	sum := crc32.ChecksumIEEE(v)

	s.mu.Lock()
	if e, ok := s.index.Get(name); ok && e.sum == sum && e.size == frameSize {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if frameSize > s.budget {
		s.drop(name)
		return nil
	}

	// Write to a temp file and rename so readers never see partial bytes.
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return apperrors.NewCacheIOError("creating cache file", err)
	}
	if _, err := tmp.Write(encodeEntry(v, time.Now())); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return apperrors.NewCacheIOError("writing cache file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return apperrors.NewCacheIOError("closing cache file", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		os.Remove(tmp.Name())
		return apperrors.NewCacheIOError("committing cache file", err)
	}
	if old, ok := s.index.Peek(name); ok {
		s.size -= old.size
	}
	s.index.Add(name, diskEntry{size: frameSize, sum: sum})
	s.size += frameSize
	s.evictLocked()
	return nil
}

func (s *DiskStore) Remove(k Keyer) {
	s.drop(fileName(k))
}

// dropIf drops name only while the index still holds seen. A Put that
// committed after seen was read keeps its file and index entry.
func (s *DiskStore) dropIf(name string, seen diskEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index.Peek(name)
	if !ok || e != seen {
		return false
	}
	s.index.Remove(name)
	s.size -= e.size
	s.removeFile(name)
	return true
}

// drop removes name from the index and from disk
func (s *DiskStore) drop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.index.Peek(name); ok {
		s.index.Remove(name)
		s.size -= e.size
	}
	s.removeFile(name)
}

func (s *DiskStore) removeFile(name string) {
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.WithError(err).WithField("file", name).Warn("Failed to remove cache file")
	}
}

func (s *DiskStore) EvictIfNeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
}

func (s *DiskStore) evictLocked() {
	for s.size > s.budget {
		name, e, ok := s.index.RemoveOldest()
		if !ok {
			return
		}
		s.size -= e.size
		s.removeFile(name)
	}
}

func (s *DiskStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.index.Keys() {
		s.removeFile(name)
	}
	s.index.Purge()
	s.size = 0
	return nil
}

func (s *DiskStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *DiskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Len()
}
