// Package dbustest launches an isolated dbus-daemon instance for
// tests that need a real bus round-trip rather than a hand-built
// mock.
package dbustest

import (
	"context"
	"errors"
	"fmt"
	_ "embed"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dbus "github.com/gnustep/dbuskit"
)

//go:embed dbus.config
var dbusConfigTemplate string

// Available reports whether dbus-daemon is on PATH, so tests can skip
// rather than fail outright on a machine without one installed.
func Available() bool {
	_, err := exec.LookPath("dbus-daemon")
	return err == nil
}

// Bus is a private dbus-daemon instance dedicated to one test.
type Bus struct {
	proc *exec.Cmd
	sock string

	stop    chan struct{}
	stopped chan struct{}
}

// New launches a dbus-daemon bound to a private Unix socket under
// t.TempDir(), registers t.Cleanup to tear it down, and returns once
// the socket is accepting connections. It calls t.Skip if dbus-daemon
// is not available.
func New(t *testing.T) *Bus {
	t.Helper()
	if !Available() {
		t.Skip("dbus-daemon not available, cannot run test bus")
	}

	tmp := t.TempDir()
	svc := filepath.Join(tmp, "services")
	if err := os.Mkdir(svc, 0o700); err != nil {
		t.Fatalf("creating service dir: %v", err)
	}
	sock := filepath.Join(tmp, "bus.sock")

	cfg := strings.NewReplacer(
		"__SOCKET__", sock,
		"__SERVICEDIR__", svc,
	).Replace(dbusConfigTemplate)
	cfgPath := filepath.Join(tmp, "bus.config")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("writing bus config: %v", err)
	}

	b := &Bus{
		sock:    sock,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	b.proc = exec.Command("dbus-daemon", "--config-file="+cfgPath, "--nofork", "--nopidfile", "--nosyslog")
	b.proc.Stdout = os.Stderr
	b.proc.Stderr = os.Stderr
	if err := b.proc.Start(); err != nil {
		t.Fatalf("starting dbus-daemon: %v", err)
	}
	t.Cleanup(b.close)

	go func() {
		defer close(b.stopped)
		err := b.proc.Wait()
		select {
		case <-b.stop:
		default:
			log.Printf("test bus exited prematurely: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for ctx.Err() == nil {
		if _, err := os.Stat(sock); err == nil {
			return b
		} else if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("waiting for bus socket: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("bus failed to start: %v", ctx.Err())
	return nil
}

func (b *Bus) close() {
	close(b.stop)
	_ = b.proc.Process.Kill()
	select {
	case <-b.stopped:
	case <-time.After(10 * time.Second):
		log.Print("timed out waiting for test bus to stop")
	}
}

// Socket returns the path to the bus's Unix socket.
func (b *Bus) Socket() string { return b.sock }

// Addr returns the bus address string dbus.Dial expects.
func (b *Bus) Addr() string { return fmt.Sprintf("unix:path=%s", b.sock) }

// MustConn dials a connection to the test bus, failing the test
// immediately via t.Fatal on error.
func (b *Bus) MustConn(t *testing.T) *dbus.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := dbus.Dial(ctx, b.Addr())
	if err != nil {
		t.Fatalf("connecting to test bus: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
