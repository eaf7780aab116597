// Package notify provides change notification for rule updates.
//
// Two observer lists take part in every notification. A Bus holds the
// observers registered against one registry. A Hub holds the process-wide
// observers and is created once at startup and handed to every Bus that
// should reach them. Delivery is synchronous: instance observers run first
// in registration order, then hub observers in registration order.
//
// Observer lists are append-only. Registration copies the list, so a
// dispatch already in progress keeps iterating the snapshot it started with.
package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/rulebook/internal/rules/rule"
)

// Actor identifies who requested a change.
type Actor struct {
	// ID is a stable identifier (player id, user name, script path).
	ID string
	// Name is the display name.
	Name string
	// Console marks changes made from the server console or CLI.
	Console bool
	// Level is the operator permission level, 0 for regular players.
	Level int
}

// ConsoleActor is the actor used for operator changes.
var ConsoleActor = Actor{ID: "console", Name: "Console", Console: true, Level: 4}

// String returns the display name, falling back to the ID.
func (a Actor) String() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// Change describes one successful rule mutation.
type Change struct {
	// ID uniquely identifies this change.
	ID uuid.UUID
	// Namespace is the registry the rule belongs to.
	Namespace string
	// Actor requested the change.
	Actor Actor
	// Rule is the changed rule.
	Rule *rule.Rule
	// Input is the raw user input that was accepted.
	Input string
	// Previous is the value before the change.
	Previous rule.Value
	// Value is the committed value.
	Value rule.Value
	// Time is when the change was committed.
	Time time.Time
}

// NewChange stamps a change with a fresh ID and the current time.
func NewChange(namespace string, actor Actor, r *rule.Rule, input string, prev, next rule.Value) Change {
	return Change{
		ID:        uuid.New(),
		Namespace: namespace,
		Actor:     actor,
		Rule:      r,
		Input:     input,
		Previous:  prev,
		Value:     next,
		Time:      time.Now(),
	}
}

// Observer is notified after every successful rule mutation. Delivery
// happens while the changed rule is held for writing, so an observer must
// not change the rule it is being notified about; doing so deadlocks.
type Observer interface {
	RuleChanged(change Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(change Change)

// RuleChanged calls f(change).
func (f ObserverFunc) RuleChanged(change Change) {
	f(change)
}

// ObserverError reports an observer that panicked during delivery.
type ObserverError struct {
	// Scope is "instance" or "global".
	Scope string
	// Index is the observer's registration position within its scope.
	Index int
	// Rule is the rule being delivered.
	Rule string
	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e *ObserverError) Error() string {
	return fmt.Sprintf("%s observer %d failed on %s: %v", e.Scope, e.Index, e.Rule, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *ObserverError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// observerList is an append-only, copy-on-write observer slice.
type observerList struct {
	mu        sync.RWMutex
	observers []Observer
}

func (l *observerList) add(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Full slice expression forces a copy so live snapshots never change.
	l.observers = append(l.observers[:len(l.observers):len(l.observers)], o)
}

func (l *observerList) snapshot() []Observer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.observers
}

func (l *observerList) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.observers)
}

// deliver calls every observer, isolating panics.
func (l *observerList) deliver(scope string, change Change) []error {
	var errs []error
	for i, o := range l.snapshot() {
		if err := call(scope, i, o, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func call(scope string, index int, o Observer, change Change) (err error) {
	defer func() {
		if r := recover(); r != nil {
			name := ""
			if change.Rule != nil {
				name = change.Rule.Name()
			}
			err = &ObserverError{Scope: scope, Index: index, Rule: name, Value: r}
		}
	}()
	o.RuleChanged(change)
	return nil
}

// Hub holds the process-wide observers.
type Hub struct {
	list observerList
}

// NewHub creates an empty hub. A process normally creates exactly one.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers a process-wide observer.
func (h *Hub) Subscribe(o Observer) {
	h.list.add(o)
}

// SubscribeFunc registers a function as a process-wide observer.
func (h *Hub) SubscribeFunc(fn func(Change)) {
	h.Subscribe(ObserverFunc(fn))
}

// Len returns the number of process-wide observers.
func (h *Hub) Len() int {
	return h.list.len()
}

// Bus delivers changes for one registry.
type Bus struct {
	hub  *Hub
	list observerList
}

// NewBus creates a bus. hub may be nil when no process-wide observers
// should be reached.
func NewBus(hub *Hub) *Bus {
	return &Bus{hub: hub}
}

// Subscribe registers an instance observer.
func (b *Bus) Subscribe(o Observer) {
	b.list.add(o)
}

// Len returns the number of instance observers.
func (b *Bus) Len() int {
	return b.list.len()
}

// Hub returns the process-wide hub, or nil.
func (b *Bus) Hub() *Hub {
	return b.hub
}

// Dispatch delivers change to every instance observer and then to every
// hub observer. A panicking observer does not stop delivery; the failures
// are returned joined.
func (b *Bus) Dispatch(change Change) error {
	errs := b.list.deliver("instance", change)
	if b.hub != nil {
		errs = append(errs, b.hub.list.deliver("global", change)...)
	}
	return errors.Join(errs...)
}
