package events

import "errors"

var ErrBusClosed = errors.New("event bus closed")
