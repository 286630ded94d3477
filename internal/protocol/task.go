package protocol

import "strings"

// Reserved task types handled by the worker itself rather than the device.
const (
	TypeUpdate           = "UPDATE"
	TypeMethodsAvailable = "METHODSAVAILABLE"
	TypeUpdateInterval   = "UPDATEINTERVAL"
	TypePrintUpdate      = "PUPDATE"

	// PrefixPlot marks a refresh-and-report task; the full type becomes
	// the reply header (PLOT7 -> PLOT7).
	PrefixPlot = "PLOT"

	// PrefixSpecialRequest marks a batch of read accessors separated by ';'.
	PrefixSpecialRequest = "SPECIALREQUEST"
)

// Status message headers produced by the worker.
const (
	HeaderStatus  = "STATUS"
	HeaderMethods = "METHODS"
)

// minTaskLength is the longest trimmed line that is still ignored.
const minTaskLength = 3

// Task is one parsed client request.
type Task struct {
	// Type is the first space-separated token. It may be empty when the
	// line starts with a space.
	Type string

	// Args are the remaining tokens. Consecutive spaces produce empty
	// arguments.
	Args []string

	// Raw is the line with trailing whitespace removed.
	Raw string
}

// ParseTask parses a task line.
//
// Trailing whitespace is removed first; lines of three characters or fewer
// are not tasks and ok is false. The rest is split on single spaces.
func ParseTask(line string) (task Task, ok bool) {
	raw := strings.TrimRight(line, " \t\r\n\v\f")
	if len(raw) <= minTaskLength {
		return Task{}, false
	}

	parts := strings.Split(raw, " ")
	return Task{
		Type: parts[0],
		Args: parts[1:],
		Raw:  raw,
	}, true
}

// IsPlot reports whether the task is a PLOT<id> request.
func (t Task) IsPlot() bool {
	return strings.HasPrefix(t.Type, PrefixPlot)
}

// IsSpecialRequest reports whether the task is a SPECIALREQUEST<id> batch.
func (t Task) IsSpecialRequest() bool {
	return strings.HasPrefix(t.Type, PrefixSpecialRequest)
}

// IsReserved reports whether name is handled by the worker and therefore
// cannot be a device capability.
func IsReserved(name string) bool {
	switch name {
	case TypeMethodsAvailable, TypeUpdateInterval, TypePrintUpdate:
		return true
	}
	return strings.HasPrefix(name, PrefixPlot) || strings.HasPrefix(name, PrefixSpecialRequest)
}

// SplitLines splits a chunk received from a client into task lines.
//
// Trailing CR/LF is removed from the chunk, the remainder is split on '\n'
// and a trailing '\r' is removed from every line. Empty lines are kept so
// the caller sees exactly what was sent; ParseTask drops them.
func SplitLines(chunk string) []string {
	chunk = strings.TrimRight(chunk, "\r\n")
	if chunk == "" {
		return nil
	}
	lines := strings.Split(chunk, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
