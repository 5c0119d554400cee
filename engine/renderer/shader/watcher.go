package shader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Carmen-Shannon/oxy-bindless/common"
)

// Change is a shader override that appeared or was modified on disk.
type Change struct {
	// Variant is the variant key taken from the file name.
	Variant string

	// Stage is the stage taken from the file name.
	Stage Stage

	// Path is the file that changed.
	Path string

	// Source is the file content. Empty when Err is set.
	Source string

	// Err is set when the file could not be read.
	Err error
}

// ParseOverrideName splits an override file name of the form <variant>.<vert|frag>.wgsl.
//
// Parameters:
//   - name: the base file name
//
// Returns:
//   - string: the variant key
//   - Stage: the stage
//   - bool: false if name does not follow the pattern
func ParseOverrideName(name string) (string, Stage, bool) {
	base, ok := strings.CutSuffix(filepath.Base(name), ".wgsl")
	if !ok {
		return "", 0, false
	}
	switch {
	case strings.HasSuffix(base, ".vert"):
		return strings.TrimSuffix(base, ".vert"), StageVertex, base != ".vert"
	case strings.HasSuffix(base, ".frag"):
		return strings.TrimSuffix(base, ".frag"), StageFragment, base != ".frag"
	}
	return "", 0, false
}

// LoadOverrides reads every override file currently in dir.
//
// Parameters:
//   - dir: the override directory
//
// Returns:
//   - []Change: one entry per override file, in directory order
//   - error: if the directory cannot be listed
func LoadOverrides(dir string) ([]Change, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list shader overrides in %s: %w", dir, err)
	}
	var out []Change
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if c, ok := readChange(filepath.Join(dir, e.Name())); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func readChange(path string) (Change, bool) {
	variant, stage, ok := ParseOverrideName(path)
	if !ok {
		return Change{}, false
	}
	c := Change{Variant: variant, Stage: stage, Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		c.Err = fmt.Errorf("read shader override %s: %w", path, err)
		return c, true
	}
	c.Source = string(data)
	return c, true
}

// Watcher reports changes to shader override files in a directory.
type Watcher struct {
	dir     string
	fs      *fsnotify.Watcher
	changes chan Change
	logger  *slog.Logger
}

// NewWatcher starts watching dir. Call Run to deliver changes and Close to stop.
//
// Parameters:
//   - dir: the override directory
//   - logger: the logger, or nil for the engine logger
//
// Returns:
//   - *Watcher: the watcher
//   - error: if the directory cannot be watched
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = common.Logger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create shader watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:     dir,
		fs:      fw,
		changes: make(chan Change, 16),
		logger:  logger,
	}, nil
}

// Changes returns the channel changes are delivered on. It is closed when Run returns.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Run forwards file events until ctx is done or the watcher is closed.
//
// Parameters:
//   - ctx: cancellation for the loop
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.changes)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			c, ok := readChange(event.Name)
			if !ok {
				continue
			}
			w.logger.Debug("shader override changed", slog.String("path", c.Path), slog.String("variant", c.Variant), slog.String("stage", c.Stage.String()))
			select {
			case w.changes <- c:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("shader watcher error", slog.String("dir", w.dir), slog.Any("error", err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
