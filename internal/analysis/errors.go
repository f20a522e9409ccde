package analysis

import "fmt"

// ErrorKind classifies an analysis failure.
type ErrorKind int

const (
	KindInsufficientData ErrorKind = iota // fewer than MinCandles candles
	KindInvalidPrice                      // non-positive or non-finite close/high/low
)

func (k ErrorKind) String() string {
	switch k {
	case KindInsufficientData:
		return "insufficient_data"
	case KindInvalidPrice:
		return "invalid_price"
	default:
		return "unknown"
	}
}

// AnalysisError is the error type returned by Analyze.
type AnalysisError struct {
	Kind ErrorKind
	Msg  string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis (%s): %s", e.Kind, e.Msg)
}

func analysisErr(kind ErrorKind, format string, args ...interface{}) *AnalysisError {
	return &AnalysisError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
