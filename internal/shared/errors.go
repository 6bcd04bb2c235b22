package shared

import "errors"

// Error taxonomy shared by every domain package. Domain errors wrap one of
// these so the HTTP and job layers can classify them with errors.Is.
var (
	// ErrValidation indicates malformed input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrImbalance indicates a journal entry whose debits and credits differ.
	ErrImbalance = errors.New("journal entry does not balance")
	// ErrConflict indicates a lost race on a unique resource such as a document number.
	ErrConflict = errors.New("conflict")
	// ErrReference indicates a reference to a missing account, material, contact or document.
	ErrReference = errors.New("referenced record does not exist")
	// ErrAlreadyPosted indicates the business event already has a journal entry.
	ErrAlreadyPosted = errors.New("event already posted")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)
