package media

import (
	"errors"
	"fmt"
)

// Error classes. Structured errors below unwrap to one of these plus their
// cause, so callers can test the class with errors.Is.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceEmpty       = errors.New("source returned no items")
	ErrEnrichment        = errors.New("enrichment failed")
	ErrDelivery          = errors.New("delivery failed")
	ErrConfigInvalid     = errors.New("config invalid")
)

// SourceError is a failure of one source adapter.
type SourceError struct {
	Source string
	Kind   Kind
	Class  error // ErrSourceUnavailable or ErrSourceEmpty
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s): %v", e.Source, e.Kind, e.Class)
	}
	return fmt.Sprintf("%s (%s): %v: %v", e.Source, e.Kind, e.Class, e.Err)
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

// Unavailable wraps err as a SourceUnavailable failure.
func Unavailable(source string, kind Kind, err error) error {
	return &SourceError{Source: source, Kind: kind, Class: ErrSourceUnavailable, Err: err}
}

// Empty reports a source that returned zero results.
func Empty(source string, kind Kind) error {
	return &SourceError{Source: source, Kind: kind, Class: ErrSourceEmpty}
}

// EnrichError is a failed enrichment concern for one item.
type EnrichError struct {
	ItemID  string
	Kind    Kind
	Concern string // "details" or "watchers"
	Err     error
}

func (e *EnrichError) Error() string {
	return fmt.Sprintf("enrich %s %s/%s: %v", e.Concern, e.Kind, e.ItemID, e.Err)
}

func (e *EnrichError) Unwrap() []error { return []error{ErrEnrichment, e.Err} }

// DeliveryError is a failed delivery call. Chunk is -1 for the group heading.
type DeliveryError struct {
	Destination string
	Heading     string
	Chunk       int
	Size        int
	Err         error
}

func (e *DeliveryError) Error() string {
	if e.Chunk < 0 {
		return fmt.Sprintf("%s: heading %q: %v", e.Destination, e.Heading, e.Err)
	}
	return fmt.Sprintf("%s: %q chunk %d (%d cards): %v", e.Destination, e.Heading, e.Chunk, e.Size, e.Err)
}

func (e *DeliveryError) Unwrap() []error { return []error{ErrDelivery, e.Err} }

// ConfigError marks a configuration value that makes a cycle impossible.
// Err is the optional underlying cause.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfigInvalid}
	}
	return []error{ErrConfigInvalid, e.Err}
}

// Misconfigured reports err as a bad value of field.
func Misconfigured(field string, err error) error {
	return &ConfigError{Field: field, Reason: err.Error(), Err: err}
}
