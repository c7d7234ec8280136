package library

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultLowStockThreshold is the available-book count at or below which a
// successful borrow raises a low-stock warning.
const DefaultLowStockThreshold = 2

const lowStockMessage = "Warning: Library stock is running low!"

// Loan describes one completed borrow or return.
type Loan struct {
	ID         uuid.UUID `json:"id"`
	Kind       EventKind `json:"kind"`
	MemberID   string    `json:"member_id"`
	MemberName string    `json:"member_name"`
	ISBN       string    `json:"isbn"`
	Title      string    `json:"title"`
	At         time.Time `json:"at"`
}

// Message is the notification text for the transition.
func (l Loan) Message() string {
	return fmt.Sprintf("Notification: %s %s '%s'.", l.MemberName, l.Kind, l.Title)
}

// Circulation moves books between the shelf and members.
type Circulation struct {
	catalog   *Catalog
	notifier  *Notifier
	threshold int
	now       func() time.Time
}

// NewCirculation wires the borrowing workflow over catalog.
// A threshold below zero disables the low-stock warning.
func NewCirculation(catalog *Catalog, notifier *Notifier, threshold int) *Circulation {
	return &Circulation{
		catalog:   catalog,
		notifier:  notifier,
		threshold: threshold,
		now:       time.Now,
	}
}

// Borrow lends the book with the given ISBN to the member.
//
// Checks run in order and stop at the first failure:
//   - member and book must exist (ErrMemberNotFound, ErrBookNotFound)
//   - the book must be on the shelf (ErrAlreadyBorrowed)
//   - the member must be below their tier limit (ErrLimitExceeded)
//
// Validation and mutation happen under one write lock, so two concurrent
// borrows of the same book never both succeed.
func (c *Circulation) Borrow(memberID, isbn string) (Loan, error) {
	cat := c.catalog
	cat.mu.Lock()

	m := cat.memberLocked(memberID)
	if m == nil {
		cat.mu.Unlock()
		return Loan{}, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	b, ok := cat.books[isbn]
	if !ok {
		cat.mu.Unlock()
		return Loan{}, fmt.Errorf("%w: %s", ErrBookNotFound, isbn)
	}
	if b.Borrowed {
		cat.mu.Unlock()
		return Loan{}, fmt.Errorf("%w: '%s'", ErrAlreadyBorrowed, b.Title)
	}
	if limit := m.Tier.Limit(); len(m.borrowed) >= limit {
		cat.mu.Unlock()
		return Loan{}, fmt.Errorf("%w: %s can borrow a maximum of %d books", ErrLimitExceeded, m.Name, limit)
	}

	b.Borrowed = true
	m.borrowed = append(m.borrowed, b)

	loan := c.newLoan(EventBorrowed, m, b)
	lowStock := c.threshold >= 0 && cat.availableLocked() <= c.threshold
	cat.mu.Unlock()

	c.notifier.Publish(EventBorrowed, loan.Message())
	if lowStock {
		c.notifier.Publish(EventLowStock, lowStockMessage)
	}
	return loan, nil
}

// Return takes the book back from the member. Only the member's own loans are
// searched, so returning a book held by someone else fails with
// ErrNotBorrowedByMember.
func (c *Circulation) Return(memberID, isbn string) (Loan, error) {
	cat := c.catalog
	cat.mu.Lock()

	m := cat.memberLocked(memberID)
	if m == nil {
		cat.mu.Unlock()
		return Loan{}, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	i := m.findBorrowed(isbn)
	if i < 0 {
		cat.mu.Unlock()
		return Loan{}, fmt.Errorf("%w: %s", ErrNotBorrowedByMember, isbn)
	}

	b := m.borrowed[i]
	b.Borrowed = false
	m.borrowed = append(m.borrowed[:i:i], m.borrowed[i+1:]...)

	loan := c.newLoan(EventReturned, m, b)
	cat.mu.Unlock()

	c.notifier.Publish(EventReturned, loan.Message())
	return loan, nil
}

func (c *Circulation) newLoan(kind EventKind, m *Member, b *Book) Loan {
	return Loan{
		ID:         uuid.New(),
		Kind:       kind,
		MemberID:   m.ID,
		MemberName: m.Name,
		ISBN:       b.ISBN,
		Title:      b.Title,
		At:         c.now().UTC(),
	}
}
