package dbus

import (
	"testing"
	"time"

	"github.com/creachadair/mds/mapset"
	godbus "github.com/godbus/dbus/v5"
	"github.com/google/go-cmp/cmp"
)

func TestSplitMember(t *testing.T) {
	tests := []struct {
		in            string
		iface, member string
	}{
		{"org.example.Foo.Changed", "org.example.Foo", "Changed"},
		{"Changed", "", "Changed"},
		{"a.b", "a", "b"},
	}
	for _, tc := range tests {
		iface, member := splitMember(tc.in)
		if iface != tc.iface || member != tc.member {
			t.Errorf("splitMember(%q) = (%q, %q), want (%q, %q)", tc.in, iface, member, tc.iface, tc.member)
		}
	}
}

func TestMatchFilterString(t *testing.T) {
	m := NewMatch().
		Sender("org.example.Svc").
		Object("/org/example/Obj").
		Interface("org.example.Foo").
		Member("Changed").
		ArgStr(0, "hello")
	want := "type='signal',sender='org.example.Svc',path='/org/example/Obj',interface='org.example.Foo',member='Changed',arg0='hello'"
	if got := m.filterString(); got != want {
		t.Errorf("filterString = %q, want %q", got, want)
	}
}

func TestMatchObjectPrefixFilterString(t *testing.T) {
	m := NewMatch().ObjectPrefix("/org/example")
	want := "type='signal',path_namespace='/org/example'"
	if got := m.filterString(); got != want {
		t.Errorf("filterString = %q, want %q", got, want)
	}
}

func TestMatchValidRequiresMemberForArgRestrictions(t *testing.T) {
	if err := NewMatch().ArgStr(0, "x").valid(); err == nil {
		t.Error("ArgStr without Member should be invalid")
	}
	if err := NewMatch().Arg0Namespace("org.example").valid(); err == nil {
		t.Error("Arg0Namespace without Member should be invalid")
	}
	if err := NewMatch().Member("Changed").ArgStr(0, "x").valid(); err != nil {
		t.Errorf("ArgStr with Member should be valid, got %v", err)
	}
}

func TestMatchesNotification(t *testing.T) {
	n := &Notification{
		Sender:    ":1.7",
		Path:      "/org/example/a/b",
		Interface: "org.example.Foo",
		Member:    "Changed",
		Args:      []Value{"org.example.sub", int64(3)},
	}
	tests := []struct {
		name string
		m    *Match
		want bool
	}{
		{"empty match accepts all", NewMatch(), true},
		{"sender match", NewMatch().Sender(":1.7"), true},
		{"sender mismatch", NewMatch().Sender(":1.8"), false},
		{"interface match", NewMatch().Interface("org.example.Foo"), true},
		{"interface mismatch", NewMatch().Interface("org.example.Bar"), false},
		{"member match", NewMatch().Member("Changed"), true},
		{"object exact", NewMatch().Object("/org/example/a/b"), true},
		{"object mismatch", NewMatch().Object("/org/example/a"), false},
		{"object prefix", NewMatch().ObjectPrefix("/org/example"), true},
		{"object prefix root", NewMatch().ObjectPrefix("/"), true},
		{"object prefix non-boundary", NewMatch().ObjectPrefix("/org/exam"), false},
		{"argstr match", NewMatch().Member("Changed").ArgStr(0, "org.example.sub"), true},
		{"argstr mismatch", NewMatch().Member("Changed").ArgStr(0, "nope"), false},
		{"argstr non-string index", NewMatch().Member("Changed").ArgStr(1, "3"), false},
		{"argstr out of range", NewMatch().Member("Changed").ArgStr(5, "x"), false},
		{"arg0 namespace exact", NewMatch().Member("Changed").Arg0Namespace("org.example.sub"), true},
		{"arg0 namespace prefix", NewMatch().Member("Changed").Arg0Namespace("org.example"), true},
		{"arg0 namespace non-boundary", NewMatch().Member("Changed").Arg0Namespace("org.exam"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.m.matchesNotification(n); got != tc.want {
				t.Errorf("matchesNotification = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUnboxWireValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"plain string", "hi", "hi"},
		{"object path", godbus.ObjectPath("/a"), ObjectPath("/a")},
		{"variant unwraps", godbus.MakeVariant(int64(5)), int64(5)},
		{"slice recurses", []any{godbus.ObjectPath("/a"), "b"}, []Value{ObjectPath("/a"), "b"}},
		{"string-variant map", map[string]godbus.Variant{"k": godbus.MakeVariant("v")}, map[string]Value{"k": "v"}},
		{"generic map", map[string]any{"k": int64(1)}, map[string]Value{"k": int64(1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, unboxWireValue(tc.in)); diff != "" {
				t.Errorf("unboxWireValue mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNotificationFromSignal(t *testing.T) {
	n := notificationFromSignal(&godbus.Signal{
		Sender: ":1.9",
		Path:   "/org/example/Obj",
		Name:   "org.example.Foo.Changed",
		Body:   []any{"x", int64(2)},
	})
	if n.Interface != "org.example.Foo" || n.Member != "Changed" {
		t.Errorf("notification = %s.%s, want org.example.Foo.Changed", n.Interface, n.Member)
	}
	if diff := cmp.Diff([]Value{"x", int64(2)}, n.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

// TestNotificationFromSignalPropertiesChanged checks the
// PropertiesChanged rewrite: the wrapper signal's first body element
// (the interface whose properties changed) becomes the Member, and the
// changed-property dict shifts down to Args[0].
func TestNotificationFromSignalPropertiesChanged(t *testing.T) {
	n := notificationFromSignal(&godbus.Signal{
		Sender: ":1.9",
		Path:   "/org/example/Obj",
		Name:   "org.freedesktop.DBus.Properties.PropertiesChanged",
		Body: []any{
			"org.example.Foo",
			map[string]godbus.Variant{"Count": godbus.MakeVariant(int64(4))},
			[]any{},
		},
	})
	if n.Member != "org.example.Foo" {
		t.Errorf("Member = %q, want the changed interface name", n.Member)
	}
	changed, ok := n.Args[0].(map[string]Value)
	if !ok {
		t.Fatalf("Args[0] = %T, want the changed-property dict", n.Args[0])
	}
	if diff := cmp.Diff(map[string]Value{"Count": int64(4)}, changed); diff != "" {
		t.Errorf("changed dict mismatch (-want +got):\n%s", diff)
	}
}

// newTestWatcher builds a Watcher with no Conn behind it, enough to
// exercise deliver/pump/overflow without a bus.
func newTestWatcher() *Watcher {
	w := &Watcher{
		notifications: make(chan *Notification),
		wakePump:      make(chan struct{}, 1),
		pumpStopped:   make(chan struct{}),
		matches:       mapset.New[*Match](),
	}
	go w.pump()
	return w
}

func stopTestWatcher(w *Watcher) {
	w.mu.Lock()
	w.closed = true
	w.queue.Clear()
	w.mu.Unlock()
	close(w.wakePump)
	<-w.pumpStopped
}

func TestWatcherDeliverFiltersOnMatches(t *testing.T) {
	w := newTestWatcher()
	defer stopTestWatcher(w)
	w.matches.Add(NewMatch().Interface("org.example.Foo"))

	w.deliver(&Notification{Interface: "org.example.Bar", Member: "Nope"})
	w.deliver(&Notification{Interface: "org.example.Foo", Member: "Yes"})

	select {
	case n := <-w.Chan():
		if n.Member != "Yes" {
			t.Errorf("delivered %q, want the matching notification only", n.Member)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestWatcherOverflowMarksLastQueued(t *testing.T) {
	w := newTestWatcher()
	defer stopTestWatcher(w)
	w.matches.Add(NewMatch())

	// Fill past the queue bound without draining; the pump takes one
	// notification out and blocks trying to hand it over, so the queue
	// itself retains up to maxWatcherQueue entries before overflowing.
	total := maxWatcherQueue + 5
	for i := 0; i < total; i++ {
		w.deliver(&Notification{Member: "M"})
	}

	got := 0
	sawOverflow := false
	for {
		select {
		case n := <-w.Chan():
			got++
			if n.Overflow {
				sawOverflow = true
			}
		case <-time.After(time.Second):
			if got >= total {
				t.Errorf("received all %d notifications, expected some to be dropped", got)
			}
			if !sawOverflow {
				t.Error("expected the notification before the gap to carry Overflow")
			}
			return
		}
	}
}

func TestWatcherDeliverAfterCloseIsDropped(t *testing.T) {
	w := newTestWatcher()
	stopTestWatcher(w)
	// Must not panic or enqueue.
	w.deliver(&Notification{Member: "M"})
}
