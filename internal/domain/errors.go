package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownElement is matched by every *UnknownElementError.
var ErrUnknownElement = errors.New("unknown element")

// ParseError describes a fixed-width field that could not be decoded.
type ParseError struct {
	Field  string
	Offset int
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s at offset %d (%q): %v", e.Field, e.Offset, e.Raw, e.Err)
	}
	return fmt.Sprintf("parse %s at offset %d (%q)", e.Field, e.Offset, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnknownElementError reports an element code the layout does not recognise.
type UnknownElementError struct {
	Code string
}

func (e *UnknownElementError) Error() string {
	return fmt.Sprintf("unknown element %q", e.Code)
}

func (e *UnknownElementError) Is(target error) bool { return target == ErrUnknownElement }

// JoinGap reports a measurement whose station is absent from the station table.
type JoinGap struct {
	StationID string
}

func (e *JoinGap) Error() string {
	return fmt.Sprintf("station %q not in station table", e.StationID)
}

// SourceFailure reports that a variant's input could not be retrieved,
// decompressed or parsed well enough to trust.
type SourceFailure struct {
	Variant DatasetVariant
	Source  string
	Err     error
}

func (e *SourceFailure) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s source: %v", e.Variant, e.Err)
	}
	return fmt.Sprintf("%s source %s: %v", e.Variant, e.Source, e.Err)
}

func (e *SourceFailure) Unwrap() error { return e.Err }

// SinkFailure reports that a variant's output could not be written.
type SinkFailure struct {
	Variant DatasetVariant
	Err     error
}

func (e *SinkFailure) Error() string {
	return fmt.Sprintf("%s sink: %v", e.Variant, e.Err)
}

func (e *SinkFailure) Unwrap() error { return e.Err }
