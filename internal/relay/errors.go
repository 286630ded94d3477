package relay

import "errors"

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("relay: already started")
