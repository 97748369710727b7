package tiersearch

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way §7 of the design requires: callers can
// switch on Kind to distinguish corruption from cancellation from
// out-of-memory, independent of the wrapped message.
type Kind string

const (
	// KindInvalidOption: an option value is missing or out of range.
	KindInvalidOption Kind = "invalid_option"
	// KindCorruptFormat: magic/version mismatch, impossible offset, broken chain.
	// Always fatal to the current query; always logged at WARNING.
	KindCorruptFormat Kind = "corrupt_format"
	// KindTransientIO: a page read failed once; retried at the buffer layer.
	KindTransientIO Kind = "transient_io"
	// KindOutOfMemory: an arena allocation failed. Fatal to the transaction.
	KindOutOfMemory Kind = "out_of_memory"
	// KindConflict: the index was dropped concurrently with an in-flight query.
	KindConflict Kind = "conflict"
	// KindNotFound: term or doc-ref absent. Not surfaced as an error by callers
	// that check for it explicitly; returned as a typed sentinel for callers
	// that want to log or count misses.
	KindNotFound Kind = "not_found"
	// KindCanceled: a host-interrupt checkpoint tripped mid-operation.
	KindCanceled Kind = "canceled"
)

// IndexError wraps an underlying error with a Kind and, for CorruptFormat,
// the offending block number so a WARNING log can name it.
type IndexError struct {
	Kind    Kind
	Block   uint32 // valid only when HasBlock is true
	HasBlock bool
	Err     error
}

func (e *IndexError) Error() string {
	if e.HasBlock {
		return fmt.Sprintf("%s (block %d): %v", e.Kind, e.Block, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// NewError wraps err with a Kind.
func NewError(kind Kind, err error) *IndexError {
	return &IndexError{Kind: kind, Err: err}
}

// NewCorruptError wraps err with KindCorruptFormat and a block number, for
// the "structural corruption always yields a WARNING with the offending
// block number" propagation rule.
func NewCorruptError(block uint32, err error) *IndexError {
	return &IndexError{Kind: KindCorruptFormat, Block: block, HasBlock: true, Err: err}
}

// KindOf extracts the Kind from err, walking the Unwrap chain. Returns
// ("", false) if neither err nor anything it wraps is an *IndexError.
func KindOf(err error) (Kind, bool) {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return "", false
}

// Sentinel errors for conditions recovered locally without ever becoming an
// IndexError — these are the "not an error" outcomes of §7's NotFound row.
var (
	ErrTermNotFound   = errors.New("term not present in data source")
	ErrDocNotFound    = errors.New("doc_ref not present in field-norm table")
	ErrEmptyMemtable  = errors.New("memtable has no pending documents")
	ErrIndexNotFound  = errors.New("index_id not registered")
	ErrAlreadyLocked  = errors.New("per-index lock already held by this backend")
	ErrLockNotHeld    = errors.New("per-index lock not held")
)
