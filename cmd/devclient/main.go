// devclient - line client for devserver
//
// devclient sends each line read from stdin to a devserver as a task and
// prints every status frame the server broadcasts:
//
//	devclient --addr 127.0.0.1:12345
//	> READ
//	STATUS 1718000000.123456 {"READ": 4.2}
//
// It exits when stdin ends or the server closes the connection.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

func main() {
	fs := flag.NewFlagSet("devclient", flag.ContinueOnError)
	addr := fs.String("addr", "127.0.0.1:12345", "devserver address (host:port)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addr, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run connects to addr, forwards stdin lines and prints decoded frames.
//
// Parameters:
//   - ctx: Cancelling it closes the connection
//   - addr: Server address
//   - in: Task lines, one per line
//   - out: Receives one rendered status message per line
//
// Returns:
//   - error: nil when either side ends cleanly
func run(ctx context.Context, addr string, in io.Reader, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	received := make(chan error, 1)
	go func() {
		received <- receive(conn, out)
	}()

	sent := make(chan error, 1)
	go func() {
		sent <- send(conn, in)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-received:
		return err
	case err := <-sent:
		if err != nil {
			return err
		}
		// stdin ended; let the server see EOF and wait for it to hang up.
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.CloseWrite() //nolint:errcheck // Best effort half-close
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-received:
			return err
		}
	}
}

// send writes each input line to w, newline terminated.
func send(w io.Writer, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if _, err := fmt.Fprintf(w, "%s\n", scanner.Text()); err != nil {
			return fmt.Errorf("sending task: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// receive prints frames from r until the connection ends.
func receive(r io.Reader, out io.Writer) error {
	br := bufio.NewReader(r)
	for {
		frame, err := protocol.ReadFrame(br, protocol.DefaultMaxFrameSize)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading frame: %w", err)
		}
		fmt.Fprintln(out, string(frame))
	}
}
