package resp

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/fsnotify/fsnotify"
)

// FileCache holds small, frequently served file bodies in memory to
// reduce disk I/O for repeat GETs, per SPEC_FULL.md's extension of §4.K.
// Adapted from the teacher's coffer.go: same fastcache-backed
// checksum-addressed store and fsnotify invalidation loop, narrowed from
// a gzip/minify-aware asset manager down to plain byte caching (rosettad
// does its own optional minification in minifier.go, applied before the
// bytes reach the cache).
type FileCache struct {
	maxMemoryBytes int
	exts           map[string]bool

	once    sync.Once
	cache   *fastcache.Cache
	entries sync.Map // path -> *cachedFile

	watcher *fsnotify.Watcher
}

type cachedFile struct {
	checksum [sha256.Size]byte
	modTime  time.Time
	size     int64
}

// NewFileCache constructs a FileCache that only caches files whose
// extension (case-insensitively) appears in exts.
func NewFileCache(maxMemoryBytes int, exts []string) *FileCache {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[strings.ToLower(e)] = true
	}
	fc := &FileCache{maxMemoryBytes: maxMemoryBytes, exts: m}

	if w, err := fsnotify.NewWatcher(); err == nil {
		fc.watcher = w
		go fc.watchLoop()
	}
	return fc
}

func (fc *FileCache) ensure() {
	fc.once.Do(func() {
		fc.cache = fastcache.New(fc.maxMemoryBytes)
	})
}

func (fc *FileCache) watchLoop() {
	for event := range fc.watcher.Events {
		if entry, ok := fc.entries.Load(event.Name); ok {
			cf := entry.(*cachedFile)
			fc.cache.Del(cf.checksum[:])
			fc.entries.Delete(event.Name)
		}
	}
}

// Cacheable reports whether path's extension is eligible for caching.
func (fc *FileCache) Cacheable(path string) bool {
	return fc.exts[strings.ToLower(filepath.Ext(path))]
}

// Get returns the cached bytes for path, or ok=false if absent, evicted,
// or the file changed size/mtime (compared against fi) since caching.
func (fc *FileCache) Get(path string, fi os.FileInfo) ([]byte, bool) {
	entry, ok := fc.entries.Load(path)
	if !ok {
		return nil, false
	}
	cf := entry.(*cachedFile)
	if !cf.modTime.Equal(fi.ModTime()) || cf.size != fi.Size() {
		return nil, false
	}
	fc.ensure()
	b := fc.cache.Get(nil, cf.checksum[:])
	if len(b) == 0 {
		fc.entries.Delete(path)
		return nil, false
	}
	return b, true
}

// Put stores b (the full contents of path, already read from disk) in
// the cache and begins watching path for changes.
func (fc *FileCache) Put(path string, fi os.FileInfo, b []byte) {
	fc.ensure()
	sum := sha256.Sum256(b)
	fc.cache.Set(sum[:], b)
	fc.entries.Store(path, &cachedFile{checksum: sum, modTime: fi.ModTime(), size: fi.Size()})
	if fc.watcher != nil {
		fc.watcher.Add(path)
	}
}

// Close stops the live-invalidation watcher.
func (fc *FileCache) Close() error {
	if fc.watcher != nil {
		return fc.watcher.Close()
	}
	return nil
}
