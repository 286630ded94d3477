package server

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

func newPipeSession(t *testing.T, sub Submitter, queueSize int, onKill func(Session)) (*tcpSession, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	s := newTCPSession(serverSide, sub, sessionConfig{
		readBufferSize: 8192,
		sendQueueSize:  queueSize,
		writeTimeout:   time.Second,
	}, onKill, noopLogger{})
	t.Cleanup(func() {
		clientSide.Close()
		s.Kill()
		s.Wait()
	})
	return s, clientSide
}

func TestSession_ReceiveSplitsLines(t *testing.T) {
	sub := newRecordingSubmitter()
	s, client := newPipeSession(t, sub, 4, nil)
	s.start()
	sub.expect(t, protocol.TypeUpdate)

	if _, err := client.Write([]byte("CURR 1 0.5\r\nOUTPUT 1 on\r\n")); err != nil {
		t.Fatal(err)
	}
	sub.expect(t, "CURR 1 0.5")
	sub.expect(t, "OUTPUT 1 on")
}

func TestSession_SendWritesFrames(t *testing.T) {
	s, client := newPipeSession(t, newRecordingSubmitter(), 4, nil)
	s.start()

	if !s.Send([]byte("METHODS 1.000000 []")) {
		t.Fatal("Send() = false on a healthy session")
	}
	if got := readLine(t, client); got != "METHODS 1.000000 []" {
		t.Errorf("frame payload = %q", got)
	}
}

func TestSession_EOFKillsOnce(t *testing.T) {
	var kills atomic.Int32
	s, client := newPipeSession(t, newRecordingSubmitter(), 4, func(Session) { kills.Add(1) })
	s.start()

	client.Close()
	s.Wait()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Kill()
		}()
	}
	wg.Wait()

	if got := kills.Load(); got != 1 {
		t.Errorf("onKill called %d times, want 1", got)
	}
	if s.Send([]byte("late")) {
		t.Error("Send() = true after Kill")
	}
}

func TestSession_FullBufferKills(t *testing.T) {
	var kills atomic.Int32
	s, _ := newPipeSession(t, newRecordingSubmitter(), 1, func(Session) { kills.Add(1) })
	// Only the writer runs; nobody reads the pipe, so writes stall.
	s.wg.Add(1)
	go s.writeLoop()

	evicted := false
	for range 10 {
		if !s.Send([]byte("STATUS 1.000000 {}")) {
			evicted = true
			break
		}
	}
	if !evicted {
		t.Fatal("Send() never reported a full buffer")
	}
	if got := kills.Load(); got != 1 {
		t.Errorf("onKill called %d times, want 1", got)
	}
}

func TestSession_SnapshotQueuedBeforeFirstTask(t *testing.T) {
	sub := newRecordingSubmitter()
	s, client := newPipeSession(t, sub, 4, nil)

	written := make(chan error, 1)
	go func() {
		_, err := client.Write([]byte("READ\n"))
		written <- err
	}()
	s.start()

	sub.expect(t, protocol.TypeUpdate)
	sub.expect(t, "READ")
	if err := <-written; err != nil {
		t.Fatalf("client write: %v", err)
	}
}
