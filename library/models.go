package library

import (
	"fmt"
	"strings"
)

// Author is the writer of a book. Every Book carries its own copy.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Book represents a catalogued title and its current availability.
// ISBN is the catalog key and never changes after the book is added.
type Book struct {
	Title           string `json:"title"`
	Author          Author `json:"author"`
	ISBN            string `json:"isbn"`
	PublicationYear int    `json:"publication_year"`
	Borrowed        bool   `json:"borrowed"`
}

// NewBook builds an available book.
func NewBook(title string, author Author, isbn string, year int) *Book {
	return &Book{Title: title, Author: author, ISBN: isbn, PublicationYear: year}
}

// Tier is the membership category of a Member.
type Tier int

const (
	TierRegular Tier = iota
	TierPremium
)

var tierLimits = map[Tier]int{
	TierRegular: 3,
	TierPremium: 10,
}

// Limit is the maximum number of books a member of this tier may hold at once.
func (t Tier) Limit() int { return tierLimits[t] }

func (t Tier) String() string {
	switch t {
	case TierRegular:
		return "Regular"
	case TierPremium:
		return "Premium"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// ParseTier maps "regular" or "premium" (any case) to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "regular":
		return TierRegular, nil
	case "premium":
		return TierPremium, nil
	}
	return 0, fmt.Errorf("unknown membership type %q", s)
}

// Member represents a registered library member.
type Member struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Tier Tier   `json:"tier"`

	borrowed     []*Book
	passcodeHash []byte
}

// NewMember creates a member with no books on loan.
func NewMember(name, id string, tier Tier) *Member {
	return &Member{Name: name, ID: id, Tier: tier}
}

// BorrowedBooks returns the member's loans in the order they were made.
// The returned slice is a copy; the books themselves are shared with the catalog.
func (m *Member) BorrowedBooks() []*Book {
	out := make([]*Book, len(m.borrowed))
	copy(out, m.borrowed)
	return out
}

// BorrowedCount is the number of books the member currently holds.
func (m *Member) BorrowedCount() int { return len(m.borrowed) }

func (m *Member) findBorrowed(isbn string) int {
	for i, b := range m.borrowed {
		if b.ISBN == isbn {
			return i
		}
	}
	return -1
}
