package profile

import "errors"

// Registry and accessor failures. These indicate a broken integration and are
// always returned to the caller, wrapped with the offending name.
var (
	ErrFieldNotFound    = errors.New("field not found")
	ErrMethodNotFound   = errors.New("method not found")
	ErrInvalidIndex     = errors.New("invalid index")
	ErrInvalidValue     = errors.New("invalid value")
	ErrArgMismatch      = errors.New("argument mismatch")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrOffsetOutOfRange = errors.New("offset out of range")
	ErrRegistrySealed   = errors.New("registry is sealed")
	ErrEmptySlotStack   = errors.New("active slot stack is empty")
)

// ErrTruncatedFile is returned when a profile file is shorter than its format.
var ErrTruncatedFile = errors.New("truncated profile file")
