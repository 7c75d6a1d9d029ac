// Package tunererr collects the error values the index tuner subsystem
// returns or logs, grouped by the concern that raises them.
package tunererr

import "errors"

// Write-path errors. These propagate to the caller's transaction boundary.
var (
	ErrWriteConflict = errors.New("indextuner: write conflict acquiring slot ownership")
	ErrRowNotFound   = errors.New("indextuner: no live row at that item pointer")
	ErrTableNotFound = errors.New("indextuner: no such table")
)

// Catalog errors. DuplicateSchema is swallowed by the Tuner as a no-op;
// the others are programmer errors surfaced for tests and tooling.
var (
	ErrDuplicateSchema = errors.New("indextuner: an active index with this key schema and kind already exists")
	ErrIndexNotFound   = errors.New("indextuner: no such index")
	ErrNonIncreasingP  = errors.New("indextuner: indexed-prefix length must increase monotonically")
)

// Builder / background errors. Recovered locally: logged and the index
// that raised them is retired, the loop continues.
var (
	ErrIndexCorruption = errors.New("indextuner: structural index failure")
)

// Control-plane errors.
var (
	ErrShutdown       = errors.New("indextuner: stop signal observed")
	ErrAlreadyRunning = errors.New("indextuner: tuner loop already running")
	ErrNotRunning     = errors.New("indextuner: tuner loop is not running")
)

// SampleOverflow is counted in metrics, not returned; kept here so
// callers that want to observe it explicitly (tests, tooling) can.
var ErrSampleOverflow = errors.New("indextuner: sample ring overflowed, oldest sample dropped")
