package devserver

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alnah/go-docpipe/internal/fileutil"
)

// ErrOutsideRoot rejects paths that escape the served directory.
var ErrOutsideRoot = errors.New("path outside served directory")

// File is a static file read from disk.
type File struct {
	Path        string
	Data        []byte
	ContentType string
	ModTime     time.Time
}

// FileCache serves files under a root directory from memory. Files larger
// than maxFile are read from disk on every request; the cache as a whole is
// capped at maxTotal bytes, evicting the least recently used entries.
type FileCache struct {
	root     string
	maxTotal int64
	maxFile  int64
	logger   *slog.Logger

	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[string]*list.Element
	size  int64
}

// NewFileCache creates a cache over root.
func NewFileCache(root string, maxTotal, maxFile int64, logger *slog.Logger) (*FileCache, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileCache{
		root:     abs,
		maxTotal: maxTotal,
		maxFile:  maxFile,
		logger:   logger,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}, nil
}

// Root returns the absolute served directory.
func (c *FileCache) Root() string {
	return c.root
}

// Get returns the file at the slash-separated request path. Directories
// resolve to their index.html.
func (c *FileCache) Get(urlPath string) (*File, error) {
	abs, err := c.resolve(urlPath)
	if err != nil {
		return nil, err
	}

	if f, ok := c.lookup(abs); ok {
		return f, nil
	}
	if f, ok := c.lookup(filepath.Join(abs, "index.html")); ok {
		return f, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		abs = filepath.Join(abs, "index.html")
		if info, err = os.Stat(abs); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(abs) // #nosec G304 -- confined to root by resolve
	if err != nil {
		return nil, err
	}
	f := &File{
		Path:        abs,
		Data:        data,
		ContentType: contentType(abs, data),
		ModTime:     info.ModTime(),
	}
	c.put(f)
	return f, nil
}

func (c *FileCache) lookup(abs string) (*File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[abs]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*File), true
}

func (c *FileCache) resolve(urlPath string) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+urlPath)), "/"))
	abs := filepath.Join(c.root, rel)
	if abs != c.root && !fileutil.IsPathUnderDir(abs, c.root) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, urlPath)
	}
	return abs, nil
}

func (c *FileCache) put(f *File) {
	n := int64(len(f.Data))
	if c.maxTotal <= 0 || n > c.maxFile || n > c.maxTotal {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[f.Path]; ok {
		c.size -= int64(len(el.Value.(*File).Data))
		c.order.Remove(el)
	}
	for c.size+n > c.maxTotal {
		c.evictOldest()
	}
	c.items[f.Path] = c.order.PushFront(f)
	c.size += n
}

func (c *FileCache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	f := c.order.Remove(el).(*File)
	delete(c.items, f.Path)
	c.size -= int64(len(f.Data))
}

// Invalidate drops the cached copy of the absolute path, and of every file
// under it when it is a directory.
func (c *FileCache) Invalidate(abs string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := abs + string(filepath.Separator)
	for path, el := range c.items {
		if path == abs || strings.HasPrefix(path, prefix) {
			c.order.Remove(el)
			delete(c.items, path)
			c.size -= int64(len(el.Value.(*File).Data))
		}
	}
}

// Len returns the number of cached files.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size returns the cached bytes.
func (c *FileCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Watch invalidates entries as files under root change, until ctx is done.
// ready, if non-nil, is closed once every directory is watched.
func (c *FileCache) Watch(ctx context.Context, ready chan<- struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer w.Close()

	if err := c.watchTree(w, c.root); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			c.handleEvent(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (c *FileCache) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := c.watchTree(w, ev.Name); err != nil {
				c.logger.Warn("directory not watched", "path", ev.Name, "error", err)
			}
		}
	}
	if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Create) {
		c.logger.Debug("static file changed", "path", ev.Name, "op", ev.Op.String())
		c.Invalidate(ev.Name)
	}
}

func (c *FileCache) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func contentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
