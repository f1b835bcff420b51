package observer

import "errors"

// ErrInvalidObserver is returned by host code validating an Observer before
// registration; the observer package itself never returns it (Register
// silently drops nil rather than erroring).
var ErrInvalidObserver = errors.New("invalid observer")
