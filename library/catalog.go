package library

import (
	"fmt"
	"slices"
	"sync"
)

// Catalog owns the books and members of one library. All reads return
// detached copies so callers never observe a half-applied transition.
type Catalog struct {
	mu sync.RWMutex

	books   map[string]*Book
	order   []string // ISBNs in insertion order
	members []*Member
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{books: make(map[string]*Book)}
}

// NewCatalogWithSeed returns a catalog holding the demo books and members.
func NewCatalogWithSeed() *Catalog {
	c := NewCatalog()
	_ = c.AddBook(NewBook("book1", Author{Name: "author1", Email: "author1@email.com"}, "1111", 2001))
	_ = c.AddBook(NewBook("book2", Author{Name: "author2", Email: "author2@email.com"}, "2222", 2005))
	c.AddMember(NewMember("RMember1", "RM01", TierRegular))
	c.AddMember(NewMember("PMember2", "PM02", TierPremium))
	return c
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

// AddBook inserts book unless its ISBN is already catalogued.
func (c *Catalog) AddBook(book *Book) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.books[book.ISBN]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateISBN, book.ISBN)
	}
	b := *book
	c.books[b.ISBN] = &b
	c.order = append(c.order, book.ISBN)
	return nil
}

// UpdateBookTitle replaces the title and reports whether the book exists.
func (c *Catalog) UpdateBookTitle(isbn, title string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.books[isbn]
	if !ok {
		return false
	}
	b.Title = title
	return true
}

// DeleteBook removes the book with the given ISBN and reports whether one was removed.
// A member holding the book keeps it in their loans and may still return it.
func (c *Catalog) DeleteBook(isbn string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.books[isbn]; !ok {
		return false
	}
	delete(c.books, isbn)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == isbn })
	return true
}

// SearchBook looks a book up by ISBN.
func (c *Catalog) SearchBook(isbn string) (Book, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.books[isbn]
	if !ok {
		return Book{}, false
	}
	return *b, true
}

// Books returns every book in insertion order.
func (c *Catalog) Books() []Book {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Book, 0, len(c.order))
	for _, isbn := range c.order {
		out = append(out, *c.books[isbn])
	}
	return out
}

// AvailableCount is the number of catalogued books not on loan.
func (c *Catalog) AvailableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.availableLocked()
}

func (c *Catalog) availableLocked() int {
	n := 0
	for _, b := range c.books {
		if !b.Borrowed {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// AddMember appends member with an empty loan list. Member IDs are not
// checked for uniqueness; lookups resolve to the first member added with a
// given ID.
func (c *Catalog) AddMember(member *Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = append(c.members, &Member{
		Name:         member.Name,
		ID:           member.ID,
		Tier:         member.Tier,
		passcodeHash: member.passcodeHash,
	})
}

// RemoveMember removes every member with the given ID and returns how many were removed.
func (c *Catalog) RemoveMember(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.members)
	c.members = slices.DeleteFunc(c.members, func(m *Member) bool { return m.ID == id })
	return before - len(c.members)
}

// SearchMember looks a member up by ID.
func (c *Catalog) SearchMember(id string) (*Member, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m := c.memberLocked(id)
	if m == nil {
		return nil, false
	}
	return m.snapshot(), true
}

// Members returns every member in insertion order.
func (c *Catalog) Members() []*Member {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Member, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m.snapshot())
	}
	return out
}

func (c *Catalog) memberLocked(id string) *Member {
	for _, m := range c.members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// snapshot copies m together with its loans.
func (m *Member) snapshot() *Member {
	cp := &Member{Name: m.Name, ID: m.ID, Tier: m.Tier, passcodeHash: m.passcodeHash}
	cp.borrowed = make([]*Book, len(m.borrowed))
	for i, b := range m.borrowed {
		bc := *b
		cp.borrowed[i] = &bc
	}
	return cp
}
