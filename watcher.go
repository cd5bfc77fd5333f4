package dbus

import (
	"context"
	"errors"
	"strings"
	"sync"

	godbus "github.com/godbus/dbus/v5"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/mds/queue"
)

const maxWatcherQueue = 20

const propertiesChangedMember = "PropertiesChanged"

// A Watcher delivers signal and property-change notifications
// received from the bus that satisfy at least one of its registered
// Matches.
type Watcher struct {
	conn     *Conn
	wakePump chan struct{}

	notifications chan *Notification
	pumpStopped   chan struct{}

	mu      sync.Mutex
	closed  bool
	queue   queue.Queue[*Notification]
	matches mapset.Set[*Match]
}

// Notification is a signal or property change received from a bus
// peer, already unboxed into host Values.
type Notification struct {
	Sender    string
	Path      ObjectPath
	Interface string
	Member    string
	Args      []Value
	// Overflow reports that the Watcher discarded some notifications
	// that followed this one because the caller wasn't draining Chan()
	// fast enough.
	Overflow bool
}

// Watch begins watching the bus for notifications. A newly created
// Watcher delivers nothing until at least one Match is registered via
// Watcher.Match.
func (c *Conn) Watch() (*Watcher, error) {
	w := &Watcher{
		conn:          c,
		notifications: make(chan *Notification),
		wakePump:      make(chan struct{}, 1),
		pumpStopped:   make(chan struct{}),
		matches:       mapset.New[*Match](),
	}
	if err := c.addWatcher(w); err != nil {
		return nil, err
	}
	go w.pump()
	return w, nil
}

// Close shuts down the Watcher and removes all of its registered
// Matches from the bus.
func (w *Watcher) Close() {
	ms, shouldClose := w.clearMatches()
	if !shouldClose {
		return
	}
	close(w.wakePump)
	<-w.pumpStopped
	w.conn.removeWatcher(w)
	for m := range ms {
		w.conn.removeMatchRule(context.Background(), m.filterString())
	}
}

// Chan returns the channel notifications are delivered on. The caller
// must drain it promptly; a slow consumer loses notifications, marked
// by Overflow on the Notification immediately preceding the gap.
func (w *Watcher) Chan() <-chan *Notification {
	return w.notifications
}

// Match requests delivery of notifications satisfying m. Matches are
// additive: a notification is delivered if it satisfies any of the
// Watcher's registered Matches. The returned remove function undoes
// just this one registration.
func (w *Watcher) Match(m *Match) (remove func() error, err error) {
	if err = m.valid(); err != nil {
		return nil, &Error{Kind: MalformedSignature, Op: "Watcher.Match", Err: err}
	}
	if err = w.conn.addMatchRule(context.Background(), m.filterString()); err != nil {
		return nil, err
	}
	if err = w.addMatch(m); err != nil {
		rmErr := w.conn.removeMatchRule(context.Background(), m.filterString())
		return nil, errors.Join(err, rmErr)
	}
	return func() error {
		if !w.removeMatch(m) {
			return nil
		}
		return w.conn.removeMatchRule(context.Background(), m.filterString())
	}, nil
}

func (w *Watcher) addMatch(m *Match) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return &Error{Kind: Disconnected, Op: "Watcher.Match"}
	}
	w.matches.Add(m)
	return nil
}

func (w *Watcher) removeMatch(m *Match) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	delete(w.matches, m)
	return true
}

func (w *Watcher) clearMatches() (mapset.Set[*Match], bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, false
	}
	ret := w.matches
	w.closed = true
	w.matches = nil
	w.queue.Clear()
	return ret, true
}

func (w *Watcher) deliver(n *Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	want := false
	for m := range w.matches {
		if m.matchesNotification(n) {
			want = true
			break
		}
	}
	if !want {
		return
	}
	w.enqueueLocked(n)
}

func (w *Watcher) enqueueLocked(n *Notification) {
	if w.queue.Len() >= maxWatcherQueue {
		last, _ := w.queue.Peek(-1)
		last.Overflow = true
		return
	}
	w.queue.Add(n)
	if w.queue.Len() == 1 {
		select {
		case w.wakePump <- struct{}{}:
		default:
		}
	}
}

func (w *Watcher) popNotification() *Notification {
	w.mu.Lock()
	defer w.mu.Unlock()
	ret, _ := w.queue.Pop()
	return ret
}

func (w *Watcher) pump() {
	defer close(w.pumpStopped)
	defer close(w.notifications)
	for {
		n := w.popNotification()
		if n == nil {
			if _, ok := <-w.wakePump; !ok {
				return
			}
			continue
		}
	deliver:
		for {
			select {
			case w.notifications <- n:
				break deliver
			case _, ok := <-w.wakePump:
				if !ok {
					return
				}
				continue
			}
		}
	}
}

// notificationFromSignal converts a raw transport signal into a
// Notification, unboxing its body into host Values. A
// PropertiesChanged signal (the standard
// org.freedesktop.DBus.Properties member) is reported with Member set
// to the interface it describes, so a Match on a property's interface
// name is sufficient without special-casing the wrapper signal
// itself; Args[0] then holds the changed properties as a dict Value
// (property name to value), followed by the wrapper's remaining body
// elements.
func notificationFromSignal(sig *godbus.Signal) *Notification {
	iface, member := splitMember(sig.Name)
	args := make([]Value, len(sig.Body))
	for i, v := range sig.Body {
		args[i] = unboxWireValue(v)
	}
	if iface == propertiesInterface && member == propertiesChangedMember && len(args) > 0 {
		if changed, ok := args[0].(string); ok {
			member = changed
			args = args[1:]
		}
	}
	return &Notification{
		Sender:    sig.Sender,
		Path:      ObjectPath(sig.Path),
		Interface: iface,
		Member:    member,
		Args:      args,
	}
}

func splitMember(name string) (iface, member string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// unboxWireValue converts a raw value decoded by the transport binding
// into the bridge's host Value vocabulary, mirroring Argument.Unbox
// but working from a Go value alone since an arriving signal carries
// no a-priori Argument tree to unbox against.
func unboxWireValue(v any) Value {
	switch x := v.(type) {
	case godbus.Variant:
		return unboxWireValue(x.Value())
	case godbus.ObjectPath:
		return ObjectPath(x)
	case godbus.Signature:
		return Signature(x.String())
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = unboxWireValue(e)
		}
		return out
	case map[string]godbus.Variant:
		out := make(map[string]Value, len(x))
		for k, e := range x {
			out[k] = unboxWireValue(e.Value())
		}
		return out
	case map[string]any:
		out := make(map[string]Value, len(x))
		for k, e := range x {
			out[k] = unboxWireValue(e)
		}
		return out
	default:
		return v
	}
}
