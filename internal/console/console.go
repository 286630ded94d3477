package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

// Operator commands.
const (
	CmdHelp         = "HELP"
	CmdStatus       = "STATUS"
	CmdDeviceStatus = "DEVICESTATUS"
	CmdCommand      = "CMD"
	CmdKill         = "KILL"
)

const helpText = `The available commands are:
	HELP
	STATUS
	DEVICESTATUS
	CMD <task>
	KILL`

// Worker is the part of the worker the console drives.
type Worker interface {
	Submit(line string) error
	QueueLen() int
}

// Clients reports on the client listener.
type Clients interface {
	Addr() string
	ClientCount() int
}

// Config holds console construction options.
type Config struct {
	// Name is shown in the prompt, e.g. "SimulatedWorker> ".
	Name string

	// In is read line by line (usually os.Stdin).
	In io.Reader

	// Out receives the prompt and command output (usually os.Stdout).
	Out io.Writer
}

// Console reads operator lines and executes them.
//
// Thread Safety:
//   - Lines may be consumed from any goroutine.
//   - Output writes are serialized, so Handle may run alongside other
//     writers sharing Out through Writer.
type Console struct {
	name    string
	in      io.Reader
	out     io.Writer
	outMu   sync.Mutex
	lines   chan string
	worker  Worker
	clients Clients

	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a console. Call Start to begin reading.
func New(cfg Config, worker Worker, clients Clients) *Console {
	return &Console{
		name:    cfg.Name,
		in:      cfg.In,
		out:     cfg.Out,
		lines:   make(chan string),
		done:    make(chan struct{}),
		worker:  worker,
		clients: clients,
	}
}

// Start prints the banner and launches the reader goroutine. The reader
// exits at EOF or after Stop, closing the Lines channel; a blocked read on
// a terminal cannot be interrupted, so it is not joined.
func (c *Console) Start() {
	c.startOnce.Do(func() {
		c.printf("Launching console for %s...\n\nEnter HELP for a list of commands\n", c.name)
		c.prompt()
		go c.readLoop()
	})
}

func (c *Console) readLoop() {
	defer close(c.lines)

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case c.lines <- scanner.Text():
		case <-c.done:
			return
		}
	}
}

// Stop tells the reader to discard further input. KILL calls it; the
// owner calls it when the server stops for any other reason.
func (c *Console) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Lines delivers operator input one line at a time.
func (c *Console) Lines() <-chan string {
	return c.lines
}

// Handle executes one operator line and reports whether the server
// should shut down.
func (c *Console) Handle(line string) bool {
	word, rest, _ := strings.Cut(strings.TrimSpace(line), " ")

	switch strings.ToUpper(word) {
	case "":
	case CmdHelp:
		c.printf("%s\n", helpText)
	case CmdStatus:
		c.printf("Server running on %s\n", c.clients.Addr())
		c.printf("Current number of connected clients: %d\n", c.clients.ClientCount())
		c.printf("Tasks waiting for the worker: %d\n", c.worker.QueueLen())
	case CmdDeviceStatus:
		c.printf("Current device state:\n")
		c.submit(protocol.TypePrintUpdate)
	case CmdCommand:
		task := strings.TrimSpace(rest)
		if task == "" {
			c.printf("Usage: CMD <task>\n")
			break
		}
		c.submit(task)
	case CmdKill:
		c.printf("Shutting down...\n")
		c.Stop()
		return true
	default:
		c.printf("Command not recognized, enter HELP to see the list of available commands.\n")
	}

	c.prompt()
	return false
}

func (c *Console) submit(task string) {
	if err := c.worker.Submit(task); err != nil {
		c.printf("Task not accepted: %v\n", err)
	}
}

func (c *Console) prompt() {
	c.printf("%s> ", c.name)
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...) //nolint:errcheck // Terminal output is best effort
}

// Writer returns an io.Writer that shares the console's output lock, so
// worker PUPDATE output does not interleave with the prompt mid-line.
func (c *Console) Writer() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		c.outMu.Lock()
		defer c.outMu.Unlock()
		return c.out.Write(p)
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
