package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/timeline/internal/metrics"
	"github.com/clipforge/timeline/internal/timeline/events"
	"github.com/clipforge/timeline/internal/timeline/kv"
	"github.com/clipforge/timeline/internal/timeline/schema"
	"github.com/clipforge/timeline/internal/timeline/store"
	"github.com/clipforge/timeline/internal/timeline/validate"
)

// Options configures a Manager.
type Options struct {
	// Strategy applied when no resolver picks one (default: merge)
	Strategy Strategy

	// Timeout bounds each conflict resolution (default: 5s)
	Timeout time.Duration

	// ConflictWindow is how close two saves must be to count as
	// concurrent (default: 5s)
	ConflictWindow time.Duration

	// Detector overrides the default HeuristicDetector.
	Detector Detector

	// Changes delivers writes made by other processes. Optional.
	Changes kv.ChangeSource

	// Logger for sync activity (default: stderr logger)
	Logger *log.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Strategy:       StrategyMerge,
		Timeout:        5 * time.Second,
		ConflictWindow: 5 * time.Second,
		Logger:         log.New(os.Stderr, "[sync] ", log.LstdFlags),
		Now:            time.Now,
	}
}

// Manager coordinates conflict detection and resolution for one process.
type Manager struct {
	store *store.Store
	bus   *events.Bus
	opts  *Options

	logger *log.Logger

	mu              sync.Mutex
	inFlight        map[string]bool
	lastKnown       map[string]*schema.Document
	resolvers       map[string]Resolver
	defaultResolver Resolver
	online          bool
	pending         []*schema.Conflict

	subs    []events.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Manager. It does nothing until Start is called.
func New(st *store.Store, bus *events.Bus, opts *Options) (*Manager, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if bus == nil {
		return nil, fmt.Errorf("bus cannot be nil")
	}

	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	if opts.Strategy == "" {
		opts.Strategy = defaults.Strategy
	}
	if _, err := ParseStrategy(string(opts.Strategy)); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.ConflictWindow <= 0 {
		opts.ConflictWindow = defaults.ConflictWindow
	}
	if opts.Detector == nil {
		opts.Detector = HeuristicDetector{Window: opts.ConflictWindow}
	}
	if opts.Logger == nil {
		opts.Logger = defaults.Logger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		store:     st,
		bus:       bus,
		opts:      opts,
		logger:    opts.Logger,
		inFlight:  make(map[string]bool),
		lastKnown: make(map[string]*schema.Document),
		resolvers: make(map[string]Resolver),
		online:    true,
		ctx:       context.Background(),
	}, nil
}

// Start subscribes to the bus and begins consuming cross-process changes.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("sync manager already running")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.subs = []events.Subscription{
		m.bus.Subscribe(events.KindSave, m.onSave),
		m.bus.Subscribe(events.KindLoad, m.onLoad),
		m.bus.Subscribe(events.KindDelete, m.onDelete),
	}
	if m.opts.Changes != nil {
		m.wg.Add(1)
		go m.consume(m.opts.Changes.Changes())
	}
	m.running = true

	m.logger.Printf("Sync manager started (strategy: %s, timeout: %v)", m.opts.Strategy, m.opts.Timeout)
	return nil
}

// Close unsubscribes and waits for the change consumer to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	subs := m.subs
	m.subs = nil
	m.cancel()
	m.mu.Unlock()

	for _, sub := range subs {
		m.bus.Unsubscribe(sub)
	}
	m.wg.Wait()

	m.logger.Printf("Sync manager stopped")
	return nil
}

// IsRunning returns whether the manager has been started and not closed.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SetResolver installs a resolver for one scene. A nil resolver removes it.
func (m *Manager) SetResolver(sceneID string, r Resolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == nil {
		delete(m.resolvers, sceneID)
		return
	}
	m.resolvers[sceneID] = r
}

// SetDefaultResolver installs the resolver used for scenes without their
// own. A nil resolver removes it.
func (m *Manager) SetDefaultResolver(r Resolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResolver = r
}

// IsOnline reports the current connectivity state.
func (m *Manager) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a connectivity transition. Going online drains the
// pending queue in order; conflicts that fail to resolve, or whose strategy
// is manual, stay queued.
func (m *Manager) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if online && !was {
		m.logger.Printf("Back online, draining pending conflicts")
		m.drain(ctx)
	} else if !online && was {
		m.logger.Printf("Offline, new conflicts will be queued")
	}
}

// Pending returns the queued conflicts in detection order.
func (m *Manager) Pending() []*schema.Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*schema.Conflict(nil), m.pending...)
}

// Resolve settles the oldest queued conflict for a scene with strategy.
func (m *Manager) Resolve(ctx context.Context, sceneID string, strategy Strategy) error {
	if strategy == StrategyManual {
		return fmt.Errorf("cannot resolve with the %s strategy", strategy)
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return err
	}

	var conflict *schema.Conflict
	m.mu.Lock()
	for _, c := range m.pending {
		if c.SceneID == sceneID {
			conflict = c
			break
		}
	}
	m.mu.Unlock()
	if conflict == nil {
		return fmt.Errorf("%w: %s", schema.ErrNoPendingConflict, sceneID)
	}

	if err := m.apply(ctx, conflict, strategy); err != nil {
		return err
	}
	m.dequeue(conflict.ID)
	return nil
}

func (m *Manager) onSave(n events.Notification) error {
	if n.Origin == events.OriginSystem {
		m.remember(n.SceneID, n.Document)
		return nil
	}
	m.detect(m.context(), n.SceneID, n.Document)
	return nil
}

func (m *Manager) onLoad(n events.Notification) error {
	m.remember(n.SceneID, n.Document)
	return nil
}

func (m *Manager) onDelete(n events.Notification) error {
	m.mu.Lock()
	delete(m.lastKnown, n.SceneID)
	m.mu.Unlock()
	return nil
}

func (m *Manager) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func (m *Manager) remember(sceneID string, doc *schema.Document) {
	if doc == nil {
		return
	}
	m.mu.Lock()
	m.lastKnown[sceneID] = doc.Clone()
	m.mu.Unlock()
}

// detect runs one detection pass for a scene. A pass already in flight for
// the same scene causes this one to be dropped.
func (m *Manager) detect(ctx context.Context, sceneID string, incoming *schema.Document) {
	m.mu.Lock()
	if m.inFlight[sceneID] {
		m.mu.Unlock()
		m.logger.Printf("Detection for %s already in flight, dropping", sceneID)
		return
	}
	m.inFlight[sceneID] = true
	local := m.lastKnown[sceneID]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inFlight, sceneID)
		m.mu.Unlock()
	}()

	if incoming == nil {
		res := m.store.Load(ctx, sceneID)
		if !res.OK {
			m.logger.Printf("Warning: cannot check %s for conflicts: %v", sceneID, res.Err)
			return
		}
		incoming = res.Document
	}

	if local == nil {
		m.remember(sceneID, incoming)
		return
	}

	kind, found := m.opts.Detector.Detect(local, incoming)
	if !found {
		m.remember(sceneID, incoming)
		return
	}

	conflict := &schema.Conflict{
		ID:         uuid.NewString(),
		SceneID:    sceneID,
		Local:      local.Clone(),
		Remote:     incoming.Clone(),
		Kind:       kind,
		DetectedAt: m.opts.Now(),
	}
	m.opts.Metrics.RecordConflict(string(kind))
	m.logger.Printf("Conflict %s detected for %s (%s)", conflict.ID, sceneID, kind)
	m.handle(ctx, conflict)
}

// handle resolves a fresh conflict or queues it.
func (m *Manager) handle(ctx context.Context, c *schema.Conflict) {
	if !m.IsOnline() {
		m.enqueue(c)
		m.publishConflict(c, nil, nil)
		return
	}

	strategy := m.strategyFor(c)
	if strategy == StrategyManual {
		m.enqueue(c)
		m.publishConflict(c, nil, nil)
		return
	}

	if err := m.apply(ctx, c, strategy); err != nil {
		m.logger.Printf("Warning: conflict %s left pending: %v", c.ID, err)
		m.enqueue(c)
	}
}

// drain retries queued conflicts in order. One failure does not stop the
// rest. A conflict whose scene has moved on since it was queued is dropped.
func (m *Manager) drain(ctx context.Context) {
	for _, c := range m.Pending() {
		strategy := m.strategyFor(c)
		if strategy == StrategyManual {
			continue
		}
		if m.superseded(c) {
			m.logger.Printf("Dropping conflict %s for %s: scene changed while it was queued", c.ID, c.SceneID)
			m.opts.Metrics.RecordResolution(string(strategy), "superseded")
			m.dequeue(c.ID)
			continue
		}
		if err := m.apply(ctx, c, strategy); err != nil {
			m.logger.Printf("Warning: conflict %s left pending: %v", c.ID, err)
			continue
		}
		m.dequeue(c.ID)
	}
}

// superseded reports whether the scene's latest known document is neither
// side of c, meaning a later save or a delete replaced both.
func (m *Manager) superseded(c *schema.Conflict) bool {
	m.mu.Lock()
	current := m.lastKnown[c.SceneID]
	m.mu.Unlock()

	if current == nil {
		return true
	}
	return !sameVersion(current, c.Local) && !sameVersion(current, c.Remote)
}

func sameVersion(a, b *schema.Document) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Metadata.SaveCount == b.Metadata.SaveCount &&
		validate.DocumentChecksum(a) == validate.DocumentChecksum(b)
}

func (m *Manager) strategyFor(c *schema.Conflict) Strategy {
	m.mu.Lock()
	perScene := m.resolvers[c.SceneID]
	fallback := m.defaultResolver
	m.mu.Unlock()

	for _, r := range []Resolver{perScene, fallback} {
		if r == nil {
			continue
		}
		if s := r(c); s != "" {
			return s
		}
	}
	return m.opts.Strategy
}

// apply writes the resolution for c through the store.
func (m *Manager) apply(ctx context.Context, c *schema.Conflict, strategy Strategy) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	var target *schema.Document
	switch strategy {
	case StrategyLocal:
		target = c.Local
	case StrategyRemote:
		target = c.Remote
	case StrategyMerge:
		target = Merge(c.Local, c.Remote)
	default:
		return fmt.Errorf("unknown resolution strategy %q", strategy)
	}

	res := m.store.Save(ctx, store.SaveRequest{
		Scene: schema.Scene{
			ID:               c.SceneID,
			Index:            target.SceneIndex,
			OriginalDuration: target.OriginalDuration,
		},
		Clips:    target.Clips,
		Playhead: target.Playhead,
		Edits:    target.Edits,
		Origin:   events.OriginSystem,
	})
	if !res.OK {
		err := res.Err
		if err == nil {
			err = errors.New("save rejected")
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", err, ctx.Err())
		}
		m.opts.Metrics.RecordResolution(string(strategy), "failed")
		m.publishConflict(c, nil, err)
		return fmt.Errorf("failed to apply %s resolution for %s: %w", strategy, c.SceneID, err)
	}

	m.opts.Metrics.RecordResolution(string(strategy), "ok")
	m.logger.Printf("Conflict %s for %s resolved with %s", c.ID, c.SceneID, strategy)
	m.publishConflict(c, res.Document, nil)
	return nil
}

func (m *Manager) enqueue(c *schema.Conflict) {
	m.mu.Lock()
	m.pending = append(m.pending, c)
	n := len(m.pending)
	m.mu.Unlock()
	m.opts.Metrics.SetPending(n)
}

func (m *Manager) dequeue(id string) {
	m.mu.Lock()
	for i, c := range m.pending {
		if c.ID == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	n := len(m.pending)
	m.mu.Unlock()
	m.opts.Metrics.SetPending(n)
}

// publishConflict announces a conflict outcome. doc is the resolved
// document, nil while the conflict is pending.
func (m *Manager) publishConflict(c *schema.Conflict, doc *schema.Document, err error) {
	_ = m.bus.Publish(events.Notification{
		Kind:      events.KindConflict,
		SceneID:   c.SceneID,
		Timestamp: m.opts.Now(),
		Origin:    events.OriginSystem,
		Document:  doc,
		Conflict:  c,
		Err:       err,
	})
}

// consume turns cross-process changes into external bus notifications.
func (m *Manager) consume(changes <-chan kv.Change) {
	defer m.wg.Done()

	ctx := m.context()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			m.ingest(change)
		}
	}
}

func (m *Manager) ingest(change kv.Change) {
	kind, sceneID := schema.ParseKey(change.Key)
	if kind != schema.KeyPrimary {
		return
	}

	at := change.At
	if at.IsZero() {
		at = m.opts.Now()
	}

	if change.Deleted {
		_ = m.bus.Publish(events.Notification{
			Kind:      events.KindDelete,
			SceneID:   sceneID,
			Timestamp: at,
			Origin:    events.OriginExternal,
		})
		return
	}

	raw, err := schema.ParseRaw(change.Value)
	if err != nil {
		m.logger.Printf("Warning: ignoring external change to %s: %v", change.Key, err)
		return
	}
	doc, _, err := validate.Decode(raw)
	if err != nil {
		m.logger.Printf("Warning: ignoring external change to %s: %v", change.Key, err)
		return
	}

	_ = m.bus.Publish(events.Notification{
		Kind:      events.KindSave,
		SceneID:   sceneID,
		Timestamp: at,
		Origin:    events.OriginExternal,
		Save: &events.SaveInfo{
			ClipCount: len(doc.Clips),
			Playhead:  doc.Playhead,
			SaveCount: doc.Metadata.SaveCount,
		},
		Document: doc,
	})
}
