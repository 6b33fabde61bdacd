package kv

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig holds configuration for a Watcher.
type WatcherConfig struct {
	// PollInterval is how often the change log is read even without a
	// file system event. Zero disables polling.
	PollInterval time.Duration

	// Logger for watcher activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		PollInterval: 2 * time.Second,
		Logger:       log.New(os.Stderr, "[kv-watch] ", log.LstdFlags),
	}
}

// Watcher turns writes by other processes to a SQLite backend into Changes.
// It uses fsnotify on the database directory to notice the database and its
// WAL being written, then reads the change log past the last seen sequence.
type Watcher struct {
	db      *SQLite
	config  *WatcherConfig
	watcher *fsnotify.Watcher
	changes chan Change
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	lastSeq int64
}

// NewWatcher creates a Watcher for db. Start must be called before it
// emits changes.
func NewWatcher(db *SQLite, config *WatcherConfig) (*Watcher, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if config == nil {
		config = DefaultWatcherConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[kv-watch] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		db:      db,
		config:  config,
		watcher: watcher,
		changes: make(chan Change, changeBuffer),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. Changes already in the log when Start is called
// are not replayed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	seq, err := w.db.LatestSeq(ctx)
	if err != nil {
		return err
	}
	w.lastSeq = seq

	dir := filepath.Dir(w.db.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch database directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and closes the Changes and Errors channels.
// It blocks until the event loop has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()

	close(w.changes)
	close(w.errors)

	return nil
}

// Changes implements ChangeSource.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors returns the channel that emits watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	var tick <-chan time.Time
	if w.config.PollInterval > 0 {
		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.poll()
			}

		case <-tick:
			w.poll()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

// relevant reports whether event touches the database or its WAL.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return strings.HasPrefix(filepath.Base(event.Name), filepath.Base(w.db.Path()))
}

func (w *Watcher) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes, err := w.db.ChangesSince(ctx, w.lastSeq)
	if err != nil {
		w.report(err)
		return
	}

	for _, c := range changes {
		select {
		case w.changes <- c:
			w.lastSeq = c.Seq
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) report(err error) {
	select {
	case w.errors <- err:
	default:
		w.config.Logger.Printf("Watcher error (dropped): %v", err)
	}
}
