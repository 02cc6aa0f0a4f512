package buffer

import (
	"errors"
	"fmt"
	"log"
)

// Error kinds surfaced by the storage core. Callers unwrap with errors.Is.
var (
	// ErrBufferFull is returned by Fix when every resident frame is pinned.
	ErrBufferFull = errors.New("buffer: pool is full")
	// ErrIO is returned when an underlying file operation fails or a block
	// falls outside the file.
	ErrIO = errors.New("buffer: I/O error")
	// ErrSchemaParse is returned when a persisted schema document cannot be
	// decoded.
	ErrSchemaParse = errors.New("buffer: schema parse error")
	// ErrInvariantViolation marks an internal consistency check that failed.
	// It is never returned to a caller for recovery; see Invariant.
	ErrInvariantViolation = errors.New("buffer: invariant violation")
)

// Invariant logs err and aborts the process. It is called only when an
// internal consistency check fails, a condition the design treats as
// fatal and unrecoverable, never as a retryable error.
func Invariant(format string, args ...any) {
	err := fmt.Errorf("%w: "+format, append([]any{ErrInvariantViolation}, args...)...)
	log.Printf("FATAL invariant violation: %v", err)
	panic(err)
}
