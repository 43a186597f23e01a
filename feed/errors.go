package feed

import "errors"

// Failure taxonomy for the ingestion engine. Nothing here is process-fatal:
// every condition degrades to "wait and retry" or "drop this message".
var (
	// ErrTransportConnect: socket/TLS/handshake failure while dialing the
	// streaming endpoint. Retried after the reconnect delay.
	ErrTransportConnect = errors.New("transport connect failed")

	// ErrFrameRead: mid-session read failure or close frame. Forces the
	// stream back to disconnected, then retried.
	ErrFrameRead = errors.New("frame read failed")

	// ErrParse: malformed or unexpected JSON shape. The offending message
	// is dropped and logged; the connection stays up.
	ErrParse = errors.New("malformed message")

	// ErrSync: order-book continuity broken beyond recovery. Forces a full
	// disconnect and a fresh snapshot on reconnect.
	ErrSync = errors.New("order book out of sync")

	// ErrFetch: a REST call failed. The dependent resync or backfill is
	// skipped this cycle and retried on the next trigger.
	ErrFetch = errors.New("rest fetch failed")
)
