package main

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

// echoServer answers every task line with one framed status message and
// hangs up when the client half-closes.
func echoServer(t *testing.T) (addr string, received <-chan []string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	lines := make(chan []string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var got []string
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			got = append(got, scanner.Text())
			reply := "STATUS 1718000000.000000 {\"task\": \"" + scanner.Text() + "\"}"
			if err := protocol.WriteFrame(conn, []byte(reply)); err != nil {
				break
			}
		}
		lines <- got
	}()
	return l.Addr().String(), lines
}

func TestRun_SendsLinesAndPrintsFrames(t *testing.T) {
	addr, received := echoServer(t)
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	if err := run(ctx, addr, strings.NewReader("READ\nVOLT 1 5.0\n"), &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	select {
	case got := <-received:
		if strings.Join(got, "|") != "READ|VOLT 1 5.0" {
			t.Errorf("server received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never finished")
	}

	want := "STATUS 1718000000.000000 {\"task\": \"READ\"}\n" +
		"STATUS 1718000000.000000 {\"task\": \"VOLT 1 5.0\"}\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestRun_DialFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	if err := run(t.Context(), addr, strings.NewReader(""), &bytes.Buffer{}); err == nil {
		t.Fatal("run() should fail when nothing is listening")
	}
}

func TestReceive_StopsAtEOF(t *testing.T) {
	var stream bytes.Buffer
	for _, msg := range []string{"A 1.000000 1", "B 2.000000 2"} {
		if err := protocol.WriteFrame(&stream, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}
	var out bytes.Buffer
	if err := receive(&stream, &out); err != nil {
		t.Fatalf("receive() error = %v", err)
	}
	if out.String() != "A 1.000000 1\nB 2.000000 2\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestReceive_TruncatedFrame(t *testing.T) {
	frame, err := protocol.EncodeFrame([]byte("STATUS 1.000000 {}"))
	if err != nil {
		t.Fatal(err)
	}
	if err := receive(bytes.NewReader(frame[:len(frame)-3]), &bytes.Buffer{}); err == nil {
		t.Error("receive() should report a truncated frame")
	}
}
