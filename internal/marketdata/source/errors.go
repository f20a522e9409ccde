package source

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a market data failure so callers can decide whether
// to keep retrying.
type ErrorKind int

const (
	KindInvalid     ErrorKind = iota // malformed pair, payload or candle data
	KindRateLimited                  // HTTP 429 from the upstream API
	KindTimeout                      // request or context deadline exceeded
	KindUnavailable                  // transport failure or unexpected status
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// DataError is the error type returned by the market data source.
type DataError struct {
	Kind ErrorKind
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("marketdata (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("marketdata (%s): %s", e.Kind, e.Msg)
}

func (e *DataError) Unwrap() error { return e.Err }

func dataErr(kind ErrorKind, msg string, err error) *DataError {
	return &DataError{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the ErrorKind from err, defaulting to KindUnavailable
// for errors that did not originate here.
func KindOf(err error) ErrorKind {
	var de *DataError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnavailable
}
