package server

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

// recordingSubmitter captures submitted task lines.
type recordingSubmitter struct {
	lines chan string
}

func newRecordingSubmitter() *recordingSubmitter {
	return &recordingSubmitter{lines: make(chan string, 256)}
}

func (r *recordingSubmitter) Submit(line string) error {
	r.lines <- line
	return nil
}

func (r *recordingSubmitter) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-r.lines:
		if got != want {
			t.Fatalf("submitted %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// fakeConsole feeds lines to Run and quits on "KILL".
type fakeConsole struct {
	lines   chan string
	handled atomic.Int32
}

func (c *fakeConsole) Lines() <-chan string { return c.lines }

func (c *fakeConsole) Handle(line string) bool {
	c.handled.Add(1)
	return line == "KILL"
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           0,
		ReadBufferSize: 8192,
		SendQueueSize:  16,
		WriteTimeout:   5,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startBroadcaster(t *testing.T, sub Submitter, console Console) (*Broadcaster, <-chan error) {
	t.Helper()
	b := New(testServerConfig(), sub)
	if err := b.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx, console) }()

	t.Cleanup(func() {
		cancel()
		b.Shutdown()
	})
	return b, runErr
}

func readLine(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test
	payload, err := protocol.ReadFrame(conn, protocol.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	return string(payload)
}

func TestBindAttempts(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		retries int
		want    int
	}{
		{"default port retries", config.DefaultPort, 10, 11},
		{"default port no retries", config.DefaultPort, 0, 1},
		{"other port never retries", 15000, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bindAttempts(tt.port, tt.retries); got != tt.want {
				t.Errorf("bindAttempts(%d, %d) = %d, want %d", tt.port, tt.retries, got, tt.want)
			}
		})
	}
}

func TestListen_RetryStopsAfterAttempts(t *testing.T) {
	first, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	port := first.Addr().(*net.TCPAddr).Port

	second, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port+1))
	if err != nil {
		t.Skipf("port %d not available: %v", port+1, err)
	}
	defer second.Close()

	_, _, err = listen("127.0.0.1", port, 2, noopLogger{})
	if !errors.Is(err, ErrBindExhausted) {
		t.Fatalf("listen() error = %v, want ErrBindExhausted", err)
	}
}

func TestListen_RetryFindsNextPort(t *testing.T) {
	first, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	port := first.Addr().(*net.TCPAddr).Port

	l, got, err := listen("127.0.0.1", port, 2, noopLogger{})
	if err != nil {
		t.Skipf("port %d not available: %v", port+1, err)
	}
	defer l.Close()
	if got != port+1 {
		t.Errorf("bound port = %d, want %d", got, port+1)
	}
}

func TestBroadcaster_ThreeClientsOneDisconnects(t *testing.T) {
	sub := newRecordingSubmitter()
	b, _ := startBroadcaster(t, sub, nil)

	var clients []net.Conn
	for range 3 {
		conn, err := net.Dial("tcp", b.Addr())
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer conn.Close()
		clients = append(clients, conn)
	}
	waitFor(t, "three clients", func() bool { return b.ClientCount() == 3 })
	for range 3 {
		sub.expect(t, protocol.TypeUpdate)
	}

	clients[0].Close()
	waitFor(t, "disconnect", func() bool { return b.ClientCount() == 2 })

	b.Broadcast([]byte("STATUS 1.000000 {}"))
	for _, c := range clients[1:] {
		if got := readLine(t, c); got != "STATUS 1.000000 {}" {
			t.Errorf("client received %q", got)
		}
	}

	if stats := b.Stats(); stats.Clients != 2 || stats.Broadcasts != 1 {
		t.Errorf("Stats() = %+v, want 2 clients and 1 broadcast", stats)
	}
}

func TestBroadcaster_ClientLinesReachSubmitter(t *testing.T) {
	sub := newRecordingSubmitter()
	b, _ := startBroadcaster(t, sub, nil)

	conn, err := net.Dial("tcp", b.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	sub.expect(t, protocol.TypeUpdate)

	if _, err := conn.Write([]byte("VOLT 1 5.0\r\nREAD\n")); err != nil {
		t.Fatal(err)
	}
	sub.expect(t, "VOLT 1 5.0")
	sub.expect(t, "READ")
}

func TestBroadcaster_RunReturnsOnConsoleQuit(t *testing.T) {
	console := &fakeConsole{lines: make(chan string, 2)}
	_, runErr := startBroadcaster(t, newRecordingSubmitter(), console)

	console.lines <- "STATUS"
	console.lines <- "KILL"

	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after KILL")
	}
	if got := console.handled.Load(); got != 2 {
		t.Errorf("handled %d console lines, want 2", got)
	}
}

func TestBroadcaster_RunRequiresListen(t *testing.T) {
	b := New(testServerConfig(), newRecordingSubmitter())
	if err := b.Run(context.Background(), nil); !errors.Is(err, ErrNotListening) {
		t.Errorf("Run() error = %v, want ErrNotListening", err)
	}
}

func TestBroadcaster_ShutdownClosesClients(t *testing.T) {
	sub := newRecordingSubmitter()
	b, _ := startBroadcaster(t, sub, nil)

	conn, err := net.Dial("tcp", b.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	waitFor(t, "client", func() bool { return b.ClientCount() == 1 })

	b.Shutdown()
	b.Shutdown()

	if b.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Shutdown, want 0", b.ClientCount())
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("client connection still open after Shutdown")
	}
	if err := b.Register(&stubSession{id: "late"}); !errors.Is(err, ErrShutdown) {
		t.Errorf("Register() after Shutdown error = %v, want ErrShutdown", err)
	}
}

// stubSession is a Session that only records Send calls.
type stubSession struct {
	id    string
	mu    sync.Mutex
	sent  [][]byte
	full  bool
	kills atomic.Int32
}

func (s *stubSession) ID() string         { return s.id }
func (s *stubSession) Transport() string  { return "stub" }
func (s *stubSession) RemoteAddr() string { return "stub:" + s.id }
func (s *stubSession) Wait()              {}
func (s *stubSession) Kill()              { s.kills.Add(1) }

func (s *stubSession) Send(line []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.sent = append(s.sent, line)
	return true
}

func TestBroadcaster_PublishReachesRegisteredSessions(t *testing.T) {
	b := New(testServerConfig(), newRecordingSubmitter())
	a, full := &stubSession{id: "a"}, &stubSession{id: "b", full: true}
	for _, s := range []*stubSession{a, full} {
		if err := b.Register(s); err != nil {
			t.Fatal(err)
		}
	}

	msg, err := protocol.NewStatus(protocol.HeaderStatus, time.Unix(5, 0), map[string]int{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	b.Publish(msg)

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) != 1 || string(a.sent[0]) != `STATUS 5.000000 {"x":1}` {
		t.Errorf("session a received %q", a.sent)
	}

	b.Unregister(full)
	b.Unregister(full)
	if got := b.Stats(); got.Clients != 1 || got.DeadClients != 1 {
		t.Errorf("Stats() = %+v, want 1 live and 1 dead", got)
	}
}
