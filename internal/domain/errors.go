package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyPayload is returned when a snapshot carries no listings container.
// That points at an upstream contract change rather than a quiet market.
var ErrEmptyPayload = errors.New("titans-insider: snapshot has no data container")

// ConfigError reports a missing or malformed startup setting.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FetchError reports an upstream call that failed in transport, status or decoding.
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a chunk insert that failed for a reason other than a key
// conflict. Chunks before Chunk are committed; Inserted counts their rows.
type WriteError struct {
	Chunk    int
	Inserted int64
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write chunk %d (inserted %d before failure): %v", e.Chunk, e.Inserted, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
