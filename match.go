package dbus

import (
	"fmt"
	"strings"

	"github.com/creachadair/mds/value"
)

// Match is a filter selecting which signals and property-change
// notifications a Watcher delivers. An unset field imposes no
// restriction; Matches are conjunctive across fields but, per Watcher
// semantics, a notification is delivered if it satisfies any one of
// the Watcher's registered Matches.
type Match struct {
	sender       value.Maybe[string]
	object       value.Maybe[ObjectPath]
	objectPrefix value.Maybe[ObjectPath]
	iface        value.Maybe[string]
	member       value.Maybe[string]
	argStr       map[int]string
	arg0NS       value.Maybe[string]
}

// NewMatch returns a Match that matches every signal and property
// change.
func NewMatch() *Match { return &Match{} }

// Sender restricts the Match to notifications from a single bus name.
func (m *Match) Sender(name string) *Match {
	m.sender = value.Just(name)
	return m
}

// Interface restricts the Match to a single interface name.
func (m *Match) Interface(name string) *Match {
	m.iface = value.Just(name)
	return m
}

// Member restricts the Match to a single signal name. For a
// property-change notification the member compared is the name of
// the interface whose properties changed.
func (m *Match) Member(name string) *Match {
	m.member = value.Just(name)
	return m
}

// Object restricts the Match to a single object path.
func (m *Match) Object(path ObjectPath) *Match {
	m.objectPrefix = value.Absent[ObjectPath]()
	m.object = value.Just(path)
	return m
}

// ObjectPrefix restricts the Match to objects rooted at path.
func (m *Match) ObjectPrefix(path ObjectPath) *Match {
	m.object = value.Absent[ObjectPath]()
	m.objectPrefix = value.Just(path)
	return m
}

// ArgStr restricts the Match to signals whose i-th boxed argument is
// the string val. Requires Member to also be set.
func (m *Match) ArgStr(i int, val string) *Match {
	if m.argStr == nil {
		m.argStr = map[int]string{}
	}
	m.argStr[i] = val
	return m
}

// Arg0Namespace restricts the Match to signals whose first argument is
// a dot-separated name in the val namespace (val itself, or prefixed
// by "val."). Requires Member to also be set.
func (m *Match) Arg0Namespace(val string) *Match {
	m.arg0NS = value.Just(val)
	return m
}

func (m *Match) valid() error {
	if (len(m.argStr) > 0 || m.arg0NS.Present()) && !m.member.Present() {
		return fmt.Errorf("matches on ArgStr or Arg0Namespace must also restrict Member")
	}
	return nil
}

// filterString renders m in the syntax org.freedesktop.DBus.AddMatch
// expects.
func (m *Match) filterString() string {
	ms := []string{"type='signal'"}
	kv := func(k, v string) { ms = append(ms, fmt.Sprintf("%s=%s", k, escapeMatchArg(v))) }
	if s, ok := m.sender.GetOK(); ok {
		kv("sender", s)
	}
	if o, ok := m.object.GetOK(); ok {
		kv("path", string(o))
	}
	if p, ok := m.objectPrefix.GetOK(); ok {
		ms = append(ms, "path_namespace="+escapeMatchArg(string(p)))
	}
	if i, ok := m.iface.GetOK(); ok {
		kv("interface", i)
	}
	if me, ok := m.member.GetOK(); ok {
		kv("member", me)
	}
	for i := 0; i < 8; i++ {
		if v, ok := m.argStr[i]; ok {
			kv(fmt.Sprintf("arg%d", i), v)
		}
	}
	if n, ok := m.arg0NS.GetOK(); ok {
		kv("arg0namespace", n)
	}
	return strings.Join(ms, ",")
}

// matchesNotification reports whether n satisfies every restriction m
// imposes.
func (m *Match) matchesNotification(n *Notification) bool {
	if s, ok := m.sender.GetOK(); ok && s != n.Sender {
		return false
	}
	if o, ok := m.object.GetOK(); ok && o != n.Path {
		return false
	}
	if p, ok := m.objectPrefix.GetOK(); ok && !pathHasPrefix(n.Path, p) {
		return false
	}
	if i, ok := m.iface.GetOK(); ok && i != n.Interface {
		return false
	}
	if me, ok := m.member.GetOK(); ok && me != n.Member {
		return false
	}
	for i, want := range m.argStr {
		if i >= len(n.Args) {
			return false
		}
		got, ok := n.Args[i].(string)
		if !ok || got != want {
			return false
		}
	}
	if n0, ok := m.arg0NS.GetOK(); ok {
		if len(n.Args) == 0 {
			return false
		}
		got, ok := n.Args[0].(string)
		if !ok || (got != n0 && !strings.HasPrefix(got, n0+".")) {
			return false
		}
	}
	return true
}

func pathHasPrefix(path, prefix ObjectPath) bool {
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return true
	}
	return strings.HasPrefix(string(path), string(prefix)+"/")
}

func escapeMatchArg(s string) string {
	s = strings.ReplaceAll(s, "'", `'\''`)
	return "'" + s + "'"
}
