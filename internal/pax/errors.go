package pax

import "errors"

// Connection errors are retried internally per the reconnect policy and only
// surfaced once the retry budget is spent. Session errors surface
// immediately.
var (
	ErrConnectTimeout   = errors.New("pax: connect timed out")
	ErrTransportFailure = errors.New("pax: transport failure")

	ErrNotConnected = errors.New("pax: not connected")
	ErrWriteFailed  = errors.New("pax: characteristic write failed")
	ErrAwaitTimeout = errors.New("pax: timed out waiting for state")
	ErrClosed       = errors.New("pax: session closed")

	ErrWrongManufacturer = errors.New("pax: device is not a Pax vaporizer")
)
