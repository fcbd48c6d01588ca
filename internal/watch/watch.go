// Package watch implements the Watcher component (§4.6): a debounced
// filesystem subscription that drives per-file re-index/delete calls.
// Grounded on ChamsBouzaiene-dodo's internal/indexer/watcher.go
// (fsnotify.Watcher + an event loop plus a debounce loop), rewritten from
// dodo's shared-ticker-flush-all debounce into a per-path timer-reset
// debounce: each path gets its own timer, reset on every fresh event for
// that path, so coalescing is always measured from the *last* event for
// *that* file rather than from a global tick.
package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Timing windows, per §4.6 / §9 ("Filesystem stability window is 500 ms;
// debounce window is 1000 ms"). A single per-path timer reset on every
// event and fired after DebounceWindow already guarantees the file has
// been quiet for at least StabilityWindow before the fire, since
// DebounceWindow > StabilityWindow — see DESIGN.md for why this collapses
// to one timer instead of two.
const (
	StabilityWindow = 500 * time.Millisecond
	DebounceWindow  = 1000 * time.Millisecond
)

// Handler receives re-index/remove callbacks for paths relative to root.
type Handler struct {
	// Reindex is called once, 1s after the last add/write event for a
	// path, per §4.6.
	Reindex func(ctx context.Context, relPath string) error
	// Remove is called immediately on a deletion event, per §4.6.
	Remove func(ctx context.Context, relPath string) error
}

// Watcher subscribes to filesystem events under root for the chunker's
// supported extensions, honoring the same ignore patterns as the indexer.
type Watcher struct {
	root          string
	matcher       *gitignore.GitIgnore
	isSupported   func(path string) bool
	handler       Handler
	logger        *log.Logger
	fsWatcher     *fsnotify.Watcher
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a Watcher. isSupported filters events to the chunker's
// recognized extensions; patterns is the ignore set (nil uses the default
// per §6); logger may be nil.
func New(root string, patterns []string, isSupported func(path string) bool, handler Handler, logger *log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	var matcher *gitignore.GitIgnore
	if len(patterns) > 0 {
		matcher = gitignore.CompileIgnoreLines(patterns...)
	} else {
		matcher = gitignore.CompileIgnoreLines(defaultPatterns...)
	}

	return &Watcher{
		root:        root,
		matcher:     matcher,
		isSupported: isSupported,
		handler:     handler,
		logger:      logger,
		fsWatcher:   fsw,
		timers:      make(map[string]*time.Timer),
	}, nil
}

// defaultPatterns mirrors indexer.DefaultIgnorePatterns; duplicated here
// (rather than imported) to keep this package independent of internal/indexer.
var defaultPatterns = []string{
	"**/node_modules/**", "**/.git/**", "**/dist/**", "**/build/**",
	"**/.next/**", "**/coverage/**", "**/__pycache__/**", "**/venv/**",
	"**/.venv/**", "**/target/**", "**/vendor/**", "**/*.min.js",
	"**/*.bundle.js", "**/*.map", "**/package-lock.json", "**/yarn.lock",
	"**/pnpm-lock.yaml", "**/.semantic-code/**",
}

// Start begins watching the filesystem. Idempotent: calling Start again
// without an intervening Stop does nothing and returns nil.
func (w *Watcher) Start() error {
	if w.ctx != nil {
		return nil
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			if d.IsDir() {
				return w.fsWatcher.Add(path)
			}
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() && w.matcher.MatchesPath(rel+"/") {
			return filepath.SkipDir
		}
		if d.IsDir() {
			if err := w.fsWatcher.Add(path); err != nil {
				w.logger.Printf("watch %s: %v", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", w.root, err)
	}

	w.wg.Add(1)
	go w.eventLoop()
	return nil
}

// Stop cancels pending debounce timers and closes the watcher. Idempotent.
func (w *Watcher) Stop() error {
	if w.ctx == nil {
		return nil
	}
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()

	err := w.fsWatcher.Close()
	w.ctx = nil
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.matcher.MatchesPath(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if addErr := w.fsWatcher.Add(event.Name); addErr != nil {
				w.logger.Printf("watch new directory %s: %v", event.Name, addErr)
			}
			return
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.cancelTimer(rel)
		if w.handler.Remove != nil {
			if err := w.handler.Remove(w.ctx, rel); err != nil {
				w.logger.Printf("remove %s: %v", rel, err)
			}
		}
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !w.isSupported(rel) {
		return
	}
	w.resetTimer(rel)
}

// resetTimer implements the per-path timer-reset debounce: a fresh event
// for rel cancels any outstanding timer and starts a new DebounceWindow
// countdown, so rapid successive writes to the same file collapse into a
// single Reindex call 1s after the *last* one.
func (w *Watcher) resetTimer(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[rel]; ok {
		t.Stop()
	}
	w.timers[rel] = time.AfterFunc(DebounceWindow, func() {
		w.mu.Lock()
		delete(w.timers, rel)
		w.mu.Unlock()

		if w.handler.Reindex == nil {
			return
		}
		if err := w.handler.Reindex(w.ctx, rel); err != nil {
			w.logger.Printf("reindex %s: %v", rel, err)
		}
	})
}

func (w *Watcher) cancelTimer(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[rel]; ok {
		t.Stop()
		delete(w.timers, rel)
	}
}
