package library

import "errors"

// Negotiated failures. Callers match them with errors.Is; the catalog is left
// unchanged whenever one of these is returned.
var (
	ErrBookNotFound    = errors.New("book not found")
	ErrMemberNotFound  = errors.New("member not found")
	ErrDuplicateISBN   = errors.New("a book with this ISBN already exists")
	ErrAlreadyBorrowed = errors.New("book is already borrowed")
	ErrLimitExceeded   = errors.New("borrow limit exceeded")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrPoolClosed      = errors.New("task pool is closed")

	// ErrNotBorrowedByMember also matches ErrBookNotFound.
	ErrNotBorrowedByMember error = notBorrowedError{}
)

type notBorrowedError struct{}

func (notBorrowedError) Error() string { return "book not found or not borrowed by this member" }

func (notBorrowedError) Is(target error) bool { return target == ErrBookNotFound }
