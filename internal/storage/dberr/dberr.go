// Package dberr defines the enumerated error taxonomy shared by every
// storage layer (paged file, record engine, B+ tree). Operations never
// panic or use exception-like control flow; they return a *dberr.Error
// (or one of the iteration sentinels) that callers switch on by Kind.
package dberr

import "fmt"

// Kind enumerates the error categories a storage operation can report.
type Kind int

const (
	// Precondition errors: the caller asked for something that cannot be
	// satisfied given the current state of a handle or argument.
	FileNotFound Kind = iota + 1
	FileAlreadyExists
	HandleAlreadyInitialized
	HandleNotInitialized
	PageNumInvalid
	RecordSizeInvalid

	// Structural errors: on-disk state does not match what this build
	// expects to find.
	FileCorrupt
	HeaderSizeCorrupt
	HeaderVersionMismatch
	HeaderPageSizeMismatch
	HeaderFreespaceListsMismatch
	PageCannotBeOrganized

	// Semantic errors: the request was well-formed but refers to a record
	// in a state that forbids the operation.
	RecordDeleted
	RecordIsAnchor
	RecordExceedsPageSize
	AttributeInvalidType
	AttributeLengthInvalid

	// B+ tree errors.
	BTreeIndexPageFull // internal only: triggers a split, never returned externally
	BTreeIndexLeafEntryNotFound
	BTreeKeyTooLarge
	BTreeCannotFindLeaf
	BTreeCannotMergePagesTooFull // reserved: merge/underflow handling is a non-goal

	// Resource errors.
	OutOfMemory
	FileSeekFailed
	FileCouldNotDelete
)

var kindNames = map[Kind]string{
	FileNotFound:                 "FileNotFound",
	FileAlreadyExists:            "FileAlreadyExists",
	HandleAlreadyInitialized:     "HandleAlreadyInitialized",
	HandleNotInitialized:         "HandleNotInitialized",
	PageNumInvalid:               "PageNumInvalid",
	RecordSizeInvalid:            "RecordSizeInvalid",
	FileCorrupt:                  "FileCorrupt",
	HeaderSizeCorrupt:            "HeaderSizeCorrupt",
	HeaderVersionMismatch:        "HeaderVersionMismatch",
	HeaderPageSizeMismatch:       "HeaderPageSizeMismatch",
	HeaderFreespaceListsMismatch: "HeaderFreespaceListsMismatch",
	PageCannotBeOrganized:        "PageCannotBeOrganized",
	RecordDeleted:                "RecordDeleted",
	RecordIsAnchor:               "RecordIsAnchor",
	RecordExceedsPageSize:        "RecordExceedsPageSize",
	AttributeInvalidType:         "AttributeInvalidType",
	AttributeLengthInvalid:       "AttributeLengthInvalid",
	BTreeIndexPageFull:           "BTreeIndexPageFull",
	BTreeIndexLeafEntryNotFound:  "BTreeIndexLeafEntryNotFound",
	BTreeKeyTooLarge:             "BTreeKeyTooLarge",
	BTreeCannotFindLeaf:          "BTreeCannotFindLeaf",
	BTreeCannotMergePagesTooFull: "BTreeCannotMergePagesTooFull",
	OutOfMemory:                  "OutOfMemory",
	FileSeekFailed:               "FileSeekFailed",
	FileCouldNotDelete:           "FileCouldNotDelete",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the concrete error type returned by every storage operation.
// Op names the failing operation (e.g. "pf.OpenFile"); Err, if set,
// wraps the underlying cause (an os error, a shorter read, etc).
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a kind-only error for op.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// WithPath attaches a file path to the error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Wrap builds an error of kind for op that wraps cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err carries the given Kind, so callers can write
// `if dberr.Is(err, dberr.RecordDeleted)`.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Sentinel iteration markers. These are not *Error values: they signal
// "no more results" from a scan and are deliberately distinct from the
// error taxonomy above, so a drained iterator never reads as a failure.
var (
	// IndexEOF is returned by an IndexIterator once the scan's upper bound
	// has been passed.
	IndexEOF = &eofSentinel{name: "IX_EOF"}
	// RecordEOF is returned by a RecordIterator once every matching page
	// has been scanned.
	RecordEOF = &eofSentinel{name: "RBFM_EOF"}
)

type eofSentinel struct{ name string }

func (s *eofSentinel) Error() string { return s.name }
