package vmm

import "errors"

// Sentinel causes carried by fatal errors. Match them with errors.Is.
var (
	ErrNoContext           = errors.New("no device context; initialize the device runtime first")
	ErrGranularityMismatch = errors.New("physical granularity does not match page size")
	ErrNoLargePageBackend  = errors.New("page size requires the large-page backend but none is configured")
	ErrNotInitialized      = errors.New("manager not initialized")
	ErrMisaligned          = errors.New("offset is not page aligned")
	ErrInvalidHandle       = errors.New("invalid page handle")
	ErrInvalidAddress      = errors.New("invalid virtual address")
	ErrAccessDescriptor    = errors.New("access descriptor corrupted")
)

// fatalError marks a failure the caller must not recover from: the mapping
// state of the device is misconfigured or a caller contract was broken.
type fatalError struct {
	op  string
	err error
}

func (e *fatalError) Error() string { return "vmm: fatal: " + e.op + ": " + e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

func fatal(op string, err error) error { return &fatalError{op: op, err: err} }

// IsFatal reports whether err must terminate the worker.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
