package library

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type recorder struct {
	mu     sync.Mutex
	events map[EventKind][]string
}

func listen(n *Notifier) *recorder {
	r := &recorder{events: make(map[EventKind][]string)}
	for _, kind := range []EventKind{EventBorrowed, EventReturned, EventLowStock} {
		n.Subscribe(kind, func(msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events[kind] = append(r.events[kind], msg)
		})
	}
	return r
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[kind])
}

func newCirculation(t *testing.T, c *Catalog) (*Circulation, *recorder) {
	t.Helper()
	n := NewNotifier()
	return NewCirculation(c, n, DefaultLowStockThreshold), listen(n)
}

func catalogWithBooks(t *testing.T, n int) *Catalog {
	t.Helper()
	c := NewCatalog()
	for i := 0; i < n; i++ {
		isbn := fmt.Sprintf("%04d", i)
		require.NoError(t, c.AddBook(NewBook("Book "+isbn, author("a"), isbn, 2000+i)))
	}
	return c
}

func TestBorrowAndReturn(t *testing.T) {
	c := NewCatalogWithSeed()
	circ, rec := newCirculation(t, c)

	loan, err := circ.Borrow("RM01", "1111")
	require.NoError(t, err)
	assert.Equal(t, EventBorrowed, loan.Kind)
	assert.Equal(t, "Notification: RMember1 borrowed 'book1'.", loan.Message())

	b, _ := c.SearchBook("1111")
	assert.True(t, b.Borrowed)
	m, _ := c.SearchMember("RM01")
	require.Len(t, m.BorrowedBooks(), 1)
	assert.Equal(t, "1111", m.BorrowedBooks()[0].ISBN)

	loan, err = circ.Return("RM01", "1111")
	require.NoError(t, err)
	assert.Equal(t, "Notification: RMember1 returned 'book1'.", loan.Message())

	b, _ = c.SearchBook("1111")
	assert.False(t, b.Borrowed)
	m, _ = c.SearchMember("RM01")
	assert.Empty(t, m.BorrowedBooks())

	_, err = circ.Return("RM01", "1111")
	require.ErrorIs(t, err, ErrNotBorrowedByMember)
	require.ErrorIs(t, err, ErrBookNotFound)

	assert.Equal(t, []string{"Notification: RMember1 borrowed 'book1'."}, rec.events[EventBorrowed])
	assert.Equal(t, []string{"Notification: RMember1 returned 'book1'."}, rec.events[EventReturned])
}

func TestBorrowFailures(t *testing.T) {
	testCases := []struct {
		name     string
		memberID string
		isbn     string
		prepare  func(t *testing.T, circ *Circulation)
		want     error
	}{
		{name: "unknown member", memberID: "XX00", isbn: "1111", want: ErrMemberNotFound},
		{name: "unknown book", memberID: "RM01", isbn: "0000", want: ErrBookNotFound},
		{name: "unknown member and book", memberID: "XX00", isbn: "0000", want: ErrMemberNotFound},
		{
			name:     "already borrowed by someone else",
			memberID: "RM01",
			isbn:     "1111",
			prepare: func(t *testing.T, circ *Circulation) {
				_, err := circ.Borrow("PM02", "1111")
				require.NoError(t, err)
			},
			want: ErrAlreadyBorrowed,
		},
		{
			name:     "already borrowed by the same member",
			memberID: "RM01",
			isbn:     "1111",
			prepare: func(t *testing.T, circ *Circulation) {
				_, err := circ.Borrow("RM01", "1111")
				require.NoError(t, err)
			},
			want: ErrAlreadyBorrowed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			c := NewCatalogWithSeed()
			circ, _ := newCirculation(t, c)
			if tc.prepare != nil {
				tc.prepare(t, circ)
			}
			before := c.Books()
			membersBefore := c.Members()

			// act
			_, err := circ.Borrow(tc.memberID, tc.isbn)

			// assert
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, c.Books())
			assert.Equal(t, membersBefore, c.Members())
		})
	}
}

func TestBorrowLimitPerTier(t *testing.T) {
	c := catalogWithBooks(t, 5)
	c.AddMember(NewMember("Reg", "R1", TierRegular))
	c.AddMember(NewMember("Prem", "P1", TierPremium))
	circ, _ := newCirculation(t, c)

	for i := 0; i < 3; i++ {
		_, err := circ.Borrow("R1", fmt.Sprintf("%04d", i))
		require.NoError(t, err)
	}

	_, err := circ.Borrow("R1", "0003")
	require.ErrorIs(t, err, ErrLimitExceeded)
	assert.Contains(t, err.Error(), "Reg can borrow a maximum of 3 books")

	m, _ := c.SearchMember("R1")
	assert.Equal(t, 3, m.BorrowedCount())
	b, _ := c.SearchBook("0003")
	assert.False(t, b.Borrowed)

	// the same three loans held by a premium member leave room for more
	for i := 0; i < 3; i++ {
		_, err := circ.Return("R1", fmt.Sprintf("%04d", i))
		require.NoError(t, err)
		_, err = circ.Borrow("P1", fmt.Sprintf("%04d", i))
		require.NoError(t, err)
	}
	_, err = circ.Borrow("P1", "0003")
	require.NoError(t, err)
}

func TestPremiumLimit(t *testing.T) {
	c := catalogWithBooks(t, 11)
	c.AddMember(NewMember("Prem", "P1", TierPremium))
	circ, _ := newCirculation(t, c)

	for i := 0; i < 10; i++ {
		_, err := circ.Borrow("P1", fmt.Sprintf("%04d", i))
		require.NoError(t, err)
	}
	_, err := circ.Borrow("P1", "0010")
	require.ErrorIs(t, err, ErrLimitExceeded)
}

func TestLowStockFiresOnlyAtThreshold(t *testing.T) {
	c := NewCatalogWithSeed()
	circ, rec := newCirculation(t, c)

	// two books, threshold two: one left is already low
	_, err := circ.Borrow("RM01", "1111")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(EventLowStock))

	_, err = circ.Borrow("RM01", "2222")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count(EventLowStock))

	// failed borrows and returns stay quiet
	_, err = circ.Borrow("PM02", "2222")
	require.Error(t, err)
	_, err = circ.Return("RM01", "2222")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count(EventLowStock))
}

func TestLowStockAfterSecondOfFourBorrows(t *testing.T) {
	c := catalogWithBooks(t, 4)
	c.AddMember(NewMember("Reg", "RM01", TierRegular))
	circ, rec := newCirculation(t, c)

	_, err := circ.Borrow("RM01", "0000")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.count(EventLowStock), "3 of 4 available")

	_, err = circ.Borrow("RM01", "0001")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(EventLowStock), "2 of 4 available")
	assert.Equal(t, []string{lowStockMessage}, rec.events[EventLowStock])
}

func TestLowStockDisabled(t *testing.T) {
	c := NewCatalogWithSeed()
	n := NewNotifier()
	rec := listen(n)
	circ := NewCirculation(c, n, -1)

	_, err := circ.Borrow("RM01", "1111")
	require.NoError(t, err)
	_, err = circ.Borrow("RM01", "2222")
	require.NoError(t, err)
	assert.Zero(t, rec.count(EventLowStock))
}

func TestReturnOnlySearchesMembersLoans(t *testing.T) {
	c := NewCatalogWithSeed()
	circ, rec := newCirculation(t, c)

	_, err := circ.Borrow("PM02", "1111")
	require.NoError(t, err)

	_, err = circ.Return("RM01", "1111")
	require.ErrorIs(t, err, ErrNotBorrowedByMember)
	_, err = circ.Return("XX00", "1111")
	require.ErrorIs(t, err, ErrMemberNotFound)

	b, _ := c.SearchBook("1111")
	assert.True(t, b.Borrowed)
	assert.Zero(t, rec.count(EventReturned))
}

func TestReturnDeletedBook(t *testing.T) {
	c := NewCatalogWithSeed()
	circ, _ := newCirculation(t, c)

	_, err := circ.Borrow("RM01", "1111")
	require.NoError(t, err)
	require.True(t, c.DeleteBook("1111"))

	_, err = circ.Return("RM01", "1111")
	require.NoError(t, err)
	m, _ := c.SearchMember("RM01")
	assert.Zero(t, m.BorrowedCount())
}

func TestConcurrentBorrowsOfOneBook(t *testing.T) {
	c := catalogWithBooks(t, 1)
	for i := 0; i < 20; i++ {
		c.AddMember(NewMember(fmt.Sprintf("M%d", i), fmt.Sprintf("M%02d", i), TierRegular))
	}
	circ, rec := newCirculation(t, c)

	var (
		mu       sync.Mutex
		winners  int
		rejected int
	)
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("M%02d", i)
		g.Go(func() error {
			_, err := circ.Borrow(id, "0000")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case IsNegotiated(err):
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, winners)
	assert.Equal(t, 19, rejected)
	assert.Equal(t, 1, rec.count(EventBorrowed))

	holders := 0
	for _, m := range c.Members() {
		holders += m.BorrowedCount()
	}
	assert.Equal(t, 1, holders)
}

func TestListenersRunInOrderAndMayReadCatalog(t *testing.T) {
	c := NewCatalogWithSeed()
	n := NewNotifier()
	circ := NewCirculation(c, n, DefaultLowStockThreshold)

	var calls []string
	n.Subscribe(EventBorrowed, func(string) { calls = append(calls, "first") })
	n.Subscribe(EventBorrowed, func(string) {
		b, _ := c.SearchBook("1111")
		calls = append(calls, fmt.Sprintf("second:%t", b.Borrowed))
	})

	_, err := circ.Borrow("RM01", "1111")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second:true"}, calls)
}
