package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/device"
	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
	"github.com/nerrad567/gray-logic-devserver/internal/server"
)

func TestParseArgs(t *testing.T) {
	t.Setenv("DEVSERVER_CONFIG", "")

	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "worker only",
			args: []string{"Simulated"},
			want: options{workerName: "Simulated", configPath: defaultConfigPath},
		},
		{
			name: "flags after worker",
			args: []string{"Simulated", "--port", "2000", "--debug"},
			want: options{workerName: "Simulated", port: 2000, portSet: true, debug: true, configPath: defaultConfigPath},
		},
		{
			name: "flags before worker",
			args: []string{"-p", "2001", "-d", "ValuesWorker"},
			want: options{workerName: "ValuesWorker", port: 2001, portSet: true, debug: true, configPath: defaultConfigPath},
		},
		{
			name: "explicit config",
			args: []string{"--config", "/etc/devserver.yaml", "Simulated"},
			want: options{workerName: "Simulated", configPath: "/etc/devserver.yaml", configExplicit: true},
		},
		{name: "missing worker", args: nil, wantErr: true},
		{name: "extra argument", args: []string{"Simulated", "Other"}, wantErr: true},
		{name: "bad port", args: []string{"Simulated", "--port", "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args, io.Discard)
			if tt.wantErr {
				if !errors.Is(err, errUsage) {
					t.Fatalf("parseArgs() error = %v, want errUsage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgs() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseArgs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseArgs_EnvConfig(t *testing.T) {
	t.Setenv("DEVSERVER_CONFIG", "/tmp/from-env.yaml")

	got, err := parseArgs([]string{"Simulated"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs() error = %v", err)
	}
	if got.configPath != "/tmp/from-env.yaml" || !got.configExplicit {
		t.Errorf("config = %q explicit=%v", got.configPath, got.configExplicit)
	}
}

func TestParseArgs_Help(t *testing.T) {
	var out bytes.Buffer
	_, err := parseArgs([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("parseArgs(-h) error = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(out.String(), "Usage: devserver <workerName>") {
		t.Errorf("usage output = %q", out.String())
	}
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func writeConfig(t *testing.T, port int, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devserver.yaml")
	content := fmt.Sprintf(`
server:
  host: "127.0.0.1"
  port: %d
  port_retries: 0

updater:
  interval: 3600

logging:
  level: error
  format: text
  output: stderr
%s`, port, extra)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// lockedBuffer is a bytes.Buffer safe for the console and worker to share.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_MissingExplicitConfig(t *testing.T) {
	opts := options{workerName: "Simulated", configPath: "/nonexistent/devserver.yaml", configExplicit: true}
	if err := run(t.Context(), opts, strings.NewReader(""), io.Discard); err == nil {
		t.Fatal("run() should fail with a missing explicit config")
	}
}

func TestRun_UnknownWorker(t *testing.T) {
	opts := options{workerName: "NoSuchWorker", configPath: writeConfig(t, freePort(t), ""), configExplicit: true}
	err := run(t.Context(), opts, strings.NewReader(""), io.Discard)
	if !errors.Is(err, device.ErrUnknownAdapter) {
		t.Fatalf("run() error = %v, want ErrUnknownAdapter", err)
	}
}

func TestRun_InvalidPortOverride(t *testing.T) {
	opts := options{workerName: "Simulated", port: 70000, portSet: true, configPath: writeConfig(t, freePort(t), ""), configExplicit: true}
	if err := run(t.Context(), opts, strings.NewReader(""), io.Discard); err == nil {
		t.Fatal("run() should reject port 70000")
	}
}

func TestRun_BindFailureIsFatal(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	opts := options{workerName: "Simulated", configPath: writeConfig(t, port, ""), configExplicit: true}
	err = run(t.Context(), opts, strings.NewReader(""), io.Discard)
	if !errors.Is(err, server.ErrBindExhausted) {
		t.Fatalf("run() error = %v, want ErrBindExhausted", err)
	}
}

func TestRun_ConsoleKill(t *testing.T) {
	opts := options{workerName: "Simulated", configPath: writeConfig(t, freePort(t), ""), configExplicit: true}
	out := &lockedBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- run(t.Context(), opts, strings.NewReader("HELP\nKILL\n"), out)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after KILL")
	}
	if !strings.Contains(out.String(), "DEVICESTATUS") {
		t.Errorf("console output %q missing help text", out.String())
	}
}

func TestRun_ServesClientsUntilCancelled(t *testing.T) {
	port := freePort(t)
	opts := options{
		workerName:     "Simulated",
		configPath:     writeConfig(t, port, "console:\n  enabled: false\n"),
		configExplicit: true,
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, opts, strings.NewReader(""), io.Discard)
	}()

	var conn net.Conn
	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			conn = c
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never accepted: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	frame, err := protocol.ReadFrame(conn, protocol.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("reading initial snapshot: %v", err)
	}
	msg, err := protocol.ParseStatus(string(frame))
	if err != nil {
		t.Fatalf("parsing status: %v", err)
	}
	if msg.Header != protocol.HeaderStatus {
		t.Errorf("first header = %q, want STATUS", msg.Header)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
