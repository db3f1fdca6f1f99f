package cache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"golang.org/x/image/bmp"
)

// GraphicsExts lists the image extensions tried, in order, when resolving a
// graphics name.
var GraphicsExts = []string{".bmp", ".pbm", ".png"}

// AssetCache caches decoded images and attribute tables by path so that
// switching between maps that share a tileset does not hit the disk again.
// A path that failed to load is remembered as missing until invalidated.
type AssetCache struct {
	mu     sync.RWMutex
	fs     afero.Fs
	logger *slog.Logger
	images map[string]image.Image
	attrs  map[string][]byte
	loads  SafeCounter
}

func NewAssetCache(fs afero.Fs, logger *slog.Logger) *AssetCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetCache{
		fs:     fs,
		logger: logger,
		images: make(map[string]image.Image),
		attrs:  make(map[string][]byte),
	}
}

// ResolveGraphics returns the path of dir/name with the first extension from
// GraphicsExts that exists. When none exists the first candidate is returned
// so the asset is reported as missing under a sensible name.
func (c *AssetCache) ResolveGraphics(dir, name string) string {
	base := filepath.Join(dir, name)
	for _, ext := range GraphicsExts {
		if ok, _ := afero.Exists(c.fs, base+ext); ok {
			return base + ext
		}
	}
	return base + GraphicsExts[0]
}

// AddImage decodes the image at path unless it is already cached.
func (c *AssetCache) AddImage(path string) {
	path = filepath.Clean(path)
	c.mu.RLock()
	_, ok := c.images[path]
	c.mu.RUnlock()
	if ok {
		return
	}

	img, err := c.decodeImage(path)
	if err != nil {
		c.logger.Warn("Failed to load image", "path", path, "error", err)
	}
	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()
}

func (c *AssetCache) decodeImage(path string) (image.Image, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, err
	}
	c.loads.Inc()

	r := bytes.NewReader(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp", ".pbm":
		return bmp.Decode(r)
	case ".png":
		return png.Decode(r)
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("unknown image format: %w", err)
	}
	return img, nil
}

// Image returns the decoded image at path. It reports false when the image
// was never added or could not be loaded.
func (c *AssetCache) Image(path string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img := c.images[filepath.Clean(path)]
	return img, img != nil
}

// AddAttributes reads the attribute table at path unless it is already cached.
func (c *AssetCache) AddAttributes(path string) {
	path = filepath.Clean(path)
	c.mu.RLock()
	_, ok := c.attrs[path]
	c.mu.RUnlock()
	if ok {
		return
	}

	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		c.logger.Warn("Failed to load attribute table", "path", path, "error", err)
		data = nil
	} else {
		c.loads.Inc()
	}
	c.mu.Lock()
	c.attrs[path] = data
	c.mu.Unlock()
}

// Attributes returns the attribute table at path.
func (c *AssetCache) Attributes(path string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data := c.attrs[filepath.Clean(path)]
	return data, data != nil
}

// Invalidate forgets path so the next Add reloads it.
func (c *AssetCache) Invalidate(path string) {
	path = filepath.Clean(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.images, path)
	delete(c.attrs, path)
}

// Loads returns how many files were read from disk.
func (c *AssetCache) Loads() int {
	return c.loads.Value()
}

// Watch invalidates cached assets under dirs when they change on disk. It
// returns once the watcher is running; watching stops when ctx is done.
func (c *AssetCache) Watch(ctx context.Context, dirs ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					c.logger.Debug("Asset changed", "path", event.Name, "op", event.Op.String())
					c.Invalidate(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Error("Asset watcher error", "error", err)
			}
		}
	}()
	return nil
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
