// Package localfile implements the file connector over a local directory
// tree. It is the reference connector: it exercises all three input types
// without needing credentials or network access.
package localfile

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quillindex/quill/internal/connectors"
	"github.com/quillindex/quill/internal/errors"
)

const DefaultBatchSize = 16

func init() {
	connectors.Register(connectors.SourceFile, func(config map[string]any) (connectors.BaseConnector, error) {
		return New(config)
	})
}

// Connector walks a directory tree and yields one document per regular file.
// Document IDs are file:// URLs of the absolute path, so re-scanning the
// same tree always produces the same IDs.
type Connector struct {
	root      string
	batchSize int
	debounce  time.Duration
	logger    *slog.Logger
}

var (
	_ connectors.LoadConnector  = (*Connector)(nil)
	_ connectors.PollConnector  = (*Connector)(nil)
	_ connectors.EventConnector = (*Connector)(nil)
)

// New builds a Connector from its source-specific configuration. The only
// required key is "root", the directory to scan.
func New(config map[string]any) (*Connector, error) {
	root, ok := config["root"].(string)
	if !ok || root == "" {
		return nil, errors.ConfigError("file connector requires a 'root' directory", nil).
			WithSuggestion("set root to the directory to index")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("resolving root %q", root), err)
	}

	batchSize := DefaultBatchSize
	switch v := config["batch_size"].(type) {
	case int:
		batchSize = v
	case float64:
		batchSize = int(v)
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	debounce := DefaultDebounceWindow
	switch v := config["debounce_ms"].(type) {
	case int:
		debounce = time.Duration(v) * time.Millisecond
	case float64:
		debounce = time.Duration(v) * time.Millisecond
	}

	return &Connector{
		root:      abs,
		batchSize: batchSize,
		debounce:  debounce,
		logger:    slog.Default(),
	}, nil
}

// SetLogger replaces the default logger. Useful for tests and supervised runs.
func (c *Connector) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// LoadCredentials is a no-op; local files need none.
func (c *Connector) LoadCredentials(credentials map[string]any) (map[string]any, error) {
	return nil, nil
}

// LoadFromState yields every readable regular file under the root.
func (c *Connector) LoadFromState(ctx context.Context) <-chan connectors.BatchResult {
	return c.scan(ctx, func(info fs.FileInfo) bool { return true })
}

// PollSource yields files whose modification time falls within [start, end].
func (c *Connector) PollSource(ctx context.Context, start, end connectors.SecondsSinceUnixEpoch) <-chan connectors.BatchResult {
	return c.scan(ctx, func(info fs.FileInfo) bool {
		mod := info.ModTime().Unix()
		return mod >= start && mod <= end
	})
}

func (c *Connector) scan(ctx context.Context, keep func(fs.FileInfo) bool) <-chan connectors.BatchResult {
	out := make(chan connectors.BatchResult)
	go func() {
		defer close(out)

		var batch []connectors.Document
		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			select {
			case out <- connectors.BatchResult{Batch: batch}:
				batch = nil
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if skipDir(d.Name()) && path != c.root {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil || !keep(info) {
				return nil
			}
			doc, ok := c.readDocument(path, info)
			if !ok {
				return nil
			}
			batch = append(batch, doc)
			if len(batch) >= c.batchSize {
				if !flush() {
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil {
			select {
			case out <- connectors.BatchResult{Err: fmt.Errorf("scanning %s: %w", c.root, err)}:
			case <-ctx.Done():
			}
			return
		}
		flush()
	}()
	return out
}

// Listen emits a batch of documents for files created or written under the
// root. Rapid events for the same path are debounced, so an editor's
// multiple writes per save yield one document. Subdirectories existing at
// start are watched; new ones are added as their create events arrive.
func (c *Connector) Listen(ctx context.Context) (<-chan connectors.BatchResult, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := addRecursive(watcher, c.root); err != nil {
		watcher.Close()
		return nil, err
	}

	deb := newDebouncer(c.debounce, c.logger)
	out := make(chan connectors.BatchResult)
	go func() {
		defer close(out)
		defer watcher.Close()
		defer deb.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				info, err := os.Stat(event.Name)
				if err != nil {
					continue
				}
				if info.IsDir() {
					if event.Op&fsnotify.Create != 0 {
						if err := addRecursive(watcher, event.Name); err != nil {
							c.logger.Warn("watching new directory failed",
								"path", event.Name, "error", err)
						}
					}
					continue
				}
				deb.Add(event.Name)
			case paths := <-deb.Output():
				batch := make([]connectors.Document, 0, len(paths))
				for _, path := range paths {
					info, err := os.Stat(path)
					if err != nil {
						continue
					}
					doc, docOK := c.readDocument(path, info)
					if !docOK {
						continue
					}
					batch = append(batch, doc)
				}
				if len(batch) == 0 {
					continue
				}
				select {
				case out <- connectors.BatchResult{Batch: batch}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("file watcher error", "root", c.root, "error", err)
			}
		}
	}()
	return out, nil
}

func (c *Connector) readDocument(path string, info fs.FileInfo) (connectors.Document, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("skipping unreadable file", "path", path, "error", err)
		return connectors.Document{}, false
	}
	link := "file://" + path
	return connectors.Document{
		ID:                 link,
		Source:             connectors.SourceFile,
		SemanticIdentifier: filepath.Base(path),
		Metadata:           map[string]string{},
		Sections: []connectors.Section{
			{Link: link, Text: string(data)},
		},
		UpdatedAt: info.ModTime(),
	}, true
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}
