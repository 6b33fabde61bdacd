// Package events is the in-process notification bus shared by the timeline
// store, the sync manager and any editing surface that wants to react to
// document changes.
//
// Delivery is synchronous and in registration order. A listener that
// returns an error or panics is logged and skipped; later listeners for the
// same notification still run.
package events

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/clipforge/timeline/internal/timeline/schema"
)

// Kind is the type of a notification.
type Kind string

const (
	KindSave     Kind = "save"
	KindLoad     Kind = "load"
	KindDelete   Kind = "delete"
	KindConflict Kind = "conflict"
)

// Kinds lists every notification kind.
var Kinds = []Kind{KindSave, KindLoad, KindDelete, KindConflict}

// Origin identifies who produced a notification.
type Origin string

const (
	// OriginSurfaceA and OriginSurfaceB are the two editing surfaces that
	// write timeline documents.
	OriginSurfaceA Origin = "surface-a"
	OriginSurfaceB Origin = "surface-b"

	// OriginSystem marks writes made by the engine itself, such as
	// conflict resolution or migration. They never trigger detection.
	OriginSystem Origin = "system"

	// OriginExternal marks changes observed from another process.
	OriginExternal Origin = "external"
)

// SaveInfo summarizes a successful save.
type SaveInfo struct {
	ClipCount int     `json:"clipCount"`
	Playhead  float64 `json:"playhead"`
	SaveCount int     `json:"saveCount"`
}

// Notification is the unit broadcast on the bus.
type Notification struct {
	Kind      Kind      `json:"type"`
	SceneID   string    `json:"sceneId"`
	Timestamp time.Time `json:"timestamp"`
	Origin    Origin    `json:"source"`

	Save     *SaveInfo        `json:"save,omitempty"`
	Document *schema.Document `json:"document,omitempty"`
	Conflict *schema.Conflict `json:"conflict,omitempty"`
	Err      error            `json:"-"`
}

// Listener handles a notification.
type Listener func(Notification) error

// Subscription identifies a registered listener.
type Subscription struct {
	kind Kind
	id   uint64
}

type entry struct {
	id       uint64
	listener Listener
}

// Bus is a typed, synchronous publish/subscribe hub.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Kind][]entry
	nextID    uint64
	logger    *log.Logger
}

// NewBus creates an empty bus. If logger is nil, a default logger writing
// to stderr is used.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(os.Stderr, "[events] ", log.LstdFlags)
	}
	return &Bus{
		listeners: make(map[Kind][]entry),
		logger:    logger,
	}
}

// Subscribe registers l for notifications of kind.
func (b *Bus) Subscribe(kind Kind, l Listener) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.listeners[kind] = append(b.listeners[kind], entry{id: b.nextID, listener: l})
	return Subscription{kind: kind, id: b.nextID}
}

// SubscribeAll registers l for every kind.
func (b *Bus) SubscribeAll(l Listener) []Subscription {
	subs := make([]Subscription, 0, len(Kinds))
	for _, kind := range Kinds {
		subs = append(subs, b.Subscribe(kind, l))
	}
	return subs
}

// Unsubscribe removes a listener. It reports whether the listener was
// registered.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.listeners[sub.kind]
	for i, e := range list {
		if e.id == sub.id {
			b.listeners[sub.kind] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// ListenerCount returns how many listeners are registered for kind.
func (b *Bus) ListenerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}

// Publish delivers n to every listener registered for n.Kind, in
// registration order. Listener failures are logged and returned joined;
// they never stop delivery.
func (b *Bus) Publish(n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	b.mu.RLock()
	list := make([]entry, len(b.listeners[n.Kind]))
	copy(list, b.listeners[n.Kind])
	b.mu.RUnlock()

	var errs []error
	for _, e := range list {
		if err := deliver(e.listener, n); err != nil {
			b.logger.Printf("Listener %d failed on %s %s: %v", e.id, n.Kind, n.SceneID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(l Listener, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l(n)
}
