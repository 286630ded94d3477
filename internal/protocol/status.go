package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StatusMessage is a server-to-client notification.
type StatusMessage struct {
	Header  string
	Time    time.Time
	Payload json.RawMessage
}

// NewStatus builds a StatusMessage, rendering payload as JSON.
// Maps render with sorted keys, so equal snapshots give equal bytes.
func NewStatus(header string, t time.Time, payload any) (StatusMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return StatusMessage{}, fmt.Errorf("rendering %s payload: %w", header, err)
	}
	return StatusMessage{Header: header, Time: t, Payload: data}, nil
}

// FormatTimestamp renders t as decimal Unix seconds with six fractional
// digits, e.g. 1718000000.123456.
func FormatTimestamp(t time.Time) string {
	us := t.UnixMicro()
	sign := ""
	if us < 0 {
		sign, us = "-", -us
	}
	return fmt.Sprintf("%s%d.%06d", sign, us/1_000_000, us%1_000_000)
}

// ParseTimestamp is the inverse of FormatTimestamp. The sign applies to
// the whole value, so "-1.500000" is one and a half seconds before the epoch.
func ParseTimestamp(s string) (time.Time, error) {
	malformed := fmt.Errorf("%w: timestamp %q", ErrMalformedStatus, s)

	secStr, fracStr, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(secStr, "-")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}, malformed
	}
	if sec < 0 {
		sec = -sec
	}

	var frac int64
	if fracStr != "" {
		if strings.ContainsFunc(fracStr, func(r rune) bool { return r < '0' || r > '9' }) {
			return time.Time{}, malformed
		}
		if len(fracStr) > 6 {
			fracStr = fracStr[:6]
		}
		fracStr += strings.Repeat("0", 6-len(fracStr))
		if frac, err = strconv.ParseInt(fracStr, 10, 64); err != nil {
			return time.Time{}, malformed
		}
	}

	us := sec*1_000_000 + frac
	if neg {
		us = -us
	}
	return time.UnixMicro(us), nil
}

// String renders the message as HEADER TIMESTAMP PAYLOAD.
func (m StatusMessage) String() string {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return m.Header + " " + FormatTimestamp(m.Time) + " " + string(payload)
}

// Bytes is String as a byte slice, ready for EncodeFrame.
func (m StatusMessage) Bytes() []byte {
	return []byte(m.String())
}

// ParseStatus parses a HEADER TIMESTAMP PAYLOAD line. The payload is
// everything after the second space and is not validated as JSON.
func ParseStatus(line string) (StatusMessage, error) {
	header, rest, ok := strings.Cut(line, " ")
	if !ok || header == "" {
		return StatusMessage{}, fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}
	ts, payload, ok := strings.Cut(rest, " ")
	if !ok {
		return StatusMessage{}, fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}
	t, err := ParseTimestamp(ts)
	if err != nil {
		return StatusMessage{}, err
	}
	return StatusMessage{Header: header, Time: t, Payload: json.RawMessage(payload)}, nil
}
