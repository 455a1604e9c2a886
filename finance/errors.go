/*
errors.go - Error types for project-controls

ERROR CATEGORIES:
  1. NotFound      - the requested project (or record) does not exist
  2. FetchFailure  - a collection read from the store failed
  3. Invalid input - rejected by API validation
  4. Conflict      - a state transition lost a race or is not allowed

  Malformed monetary data is NOT an error: it is coerced to zero
  (see money.go).

USAGE:
    if errors.Is(err, finance.ErrProjectNotFound) { ... 404 ... }
    var fe *finance.FetchError
    if errors.As(err, &fe) { ... 502 ... }
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrProjectNotFound is returned when a referenced project doesn't exist.
	ErrProjectNotFound = fmt.Errorf("project %w", ErrNotFound)

	// ErrFetchFailed marks a failed read from the backing store.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrInvalidInput is returned when client input fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a record is no longer in the state an
	// update requires (e.g. approving a request that was already rejected).
	ErrConflict = errors.New("conflict")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// FetchError describes which read failed and for which project.
type FetchError struct {
	Op        string // e.g. "purchase_requests"
	ProjectID string
	Err       error
}

func (e *FetchError) Error() string {
	if e.ProjectID == "" {
		return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fetch %s for project %s: %v", e.Op, e.ProjectID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFetchFailure returns true if the error came from a failed store read.
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrFetchFailed)
}
