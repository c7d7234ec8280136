package library

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
)

// LibraryManager is a thin façade over the catalog, the circulation workflow
// and the loan ledger, keeping CLI code simple.
type LibraryManager struct {
	catalog     *Catalog
	notifier    *Notifier
	circulation *Circulation
	pool        *TaskPool
	ledger      *Ledger

	mu            sync.RWMutex
	onLedgerError func(Loan, error)
}

// NewLibraryManager assembles a library from cfg.
func NewLibraryManager(cfg Config) (*LibraryManager, error) {
	ledger, err := OpenLedger(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}

	catalog := NewCatalog()
	if cfg.Seed {
		catalog = NewCatalogWithSeed()
	}
	notifier := NewNotifier()

	return &LibraryManager{
		catalog:     catalog,
		notifier:    notifier,
		circulation: NewCirculation(catalog, notifier, cfg.LowStockThreshold),
		pool:        NewTaskPool(cfg.BorrowDelay),
		ledger:      ledger,
	}, nil
}

// Close waits for pending circulation tasks and closes the ledger.
func (lm *LibraryManager) Close() error {
	lm.pool.Close()
	return lm.ledger.Close()
}

// Catalog exposes the underlying store.
func (lm *LibraryManager) Catalog() *Catalog { return lm.catalog }

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(title string, author Author, isbn string, year int) error {
	return lm.catalog.AddBook(NewBook(title, author, isbn, year))
}

func (lm *LibraryManager) UpdateBookTitle(isbn, title string) bool {
	return lm.catalog.UpdateBookTitle(isbn, title)
}

func (lm *LibraryManager) DeleteBook(isbn string) bool            { return lm.catalog.DeleteBook(isbn) }
func (lm *LibraryManager) SearchBook(isbn string) (Book, bool)    { return lm.catalog.SearchBook(isbn) }
func (lm *LibraryManager) GetAllBooks() []Book                    { return lm.catalog.Books() }
func (lm *LibraryManager) AvailableCount() int                    { return lm.catalog.AvailableCount() }
func (lm *LibraryManager) SearchMember(id string) (*Member, bool) { return lm.catalog.SearchMember(id) }

// ------------------ Member helpers ------------------

// AddMember registers a member and, when passcode is not empty, protects
// their loans with it.
func (lm *LibraryManager) AddMember(name, id string, tier Tier, passcode string) error {
	m := NewMember(name, id, tier)
	hash, err := hashPasscode(passcode)
	if err != nil {
		return err
	}
	m.passcodeHash = hash
	lm.catalog.AddMember(m)
	return nil
}

func (lm *LibraryManager) RemoveMember(id string) int { return lm.catalog.RemoveMember(id) }
func (lm *LibraryManager) GetAllMembers() []*Member   { return lm.catalog.Members() }

func (lm *LibraryManager) ResetPasscode(id, passcode string) error {
	return lm.catalog.SetPasscode(id, passcode)
}

func (lm *LibraryManager) AuthenticateMember(id, passcode string) error {
	return lm.catalog.Authenticate(id, passcode)
}

// ------------------ Notifications ------------------

func (lm *LibraryManager) OnBookBorrowed(l Listener) { lm.notifier.Subscribe(EventBorrowed, l) }
func (lm *LibraryManager) OnBookReturned(l Listener) { lm.notifier.Subscribe(EventReturned, l) }
func (lm *LibraryManager) OnLowStock(l Listener)     { lm.notifier.Subscribe(EventLowStock, l) }

// OnLedgerError sets the callback for loans that completed but could not be
// written to the ledger.
func (lm *LibraryManager) OnLedgerError(fn func(Loan, error)) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.onLedgerError = fn
}

// ------------------ Circulation ------------------

// BorrowBookAsync schedules a borrow; the result is available from the returned Pending.
func (lm *LibraryManager) BorrowBookAsync(memberID, isbn string) *Pending {
	return lm.pool.Submit(func() (Loan, error) {
		return lm.record(lm.circulation.Borrow(memberID, isbn))
	})
}

// ReturnBookAsync schedules a return; the result is available from the returned Pending.
func (lm *LibraryManager) ReturnBookAsync(memberID, isbn string) *Pending {
	return lm.pool.Submit(func() (Loan, error) {
		return lm.record(lm.circulation.Return(memberID, isbn))
	})
}

// BorrowBook borrows and waits for the result.
func (lm *LibraryManager) BorrowBook(memberID, isbn string) (Loan, error) {
	return lm.BorrowBookAsync(memberID, isbn).Wait()
}

// ReturnBook returns and waits for the result.
func (lm *LibraryManager) ReturnBook(memberID, isbn string) (Loan, error) {
	return lm.ReturnBookAsync(memberID, isbn).Wait()
}

func (lm *LibraryManager) record(loan Loan, err error) (Loan, error) {
	if err != nil {
		return loan, err
	}
	if lerr := lm.ledger.Record(context.Background(), loan); lerr != nil {
		lm.mu.RLock()
		fn := lm.onLedgerError
		lm.mu.RUnlock()
		if fn != nil {
			fn(loan, lerr)
		}
	}
	return loan, nil
}

// ------------------ History ------------------

func (lm *LibraryManager) LoanHistory(ctx context.Context, memberID string) ([]Loan, error) {
	return lm.ledger.History(ctx, memberID)
}

func (lm *LibraryManager) OpenLoans(ctx context.Context) ([]Loan, error) {
	return lm.ledger.OpenLoans(ctx)
}

// ------------------ Reports ------------------

func (lm *LibraryManager) BooksByYear(order SortOrder) iter.Seq[Book] {
	return BooksByYear(lm.catalog.Books(), order)
}

func (lm *LibraryManager) BooksByAuthor() iter.Seq[Group] { return BooksByAuthor(lm.catalog.Books()) }

func (lm *LibraryManager) MembersByTier() iter.Seq[Group] {
	return MembersByTier(lm.catalog.Members())
}

func (lm *LibraryManager) FilterByTitle(keyword string) iter.Seq[Book] {
	return FilterByTitle(lm.catalog.Books(), keyword)
}

func (lm *LibraryManager) BorrowCounts() iter.Seq2[string, int] {
	return BorrowCounts(lm.catalog.Members())
}

func (lm *LibraryManager) AuthorsWithMultipleBooks() iter.Seq[Group] {
	return AuthorsWithMultipleBooks(lm.catalog.Books())
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b Book) string {
	return fmt.Sprintf("%-10s %-30s %-20s %-6d %-8t", b.ISBN, b.Title, b.Author.Name, b.PublicationYear, b.Borrowed)
}

// PrettyMember formats a member for lists.
func PrettyMember(m *Member) string {
	return fmt.Sprintf("%-8s %-25s %-8s %d/%d", m.ID, m.Name, m.Tier, m.BorrowedCount(), m.Tier.Limit())
}

// TruncateString shortens s to at most maxLen runes, marking the cut with "...".
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(maxLen, 0)])
	}
	return string(r[:maxLen-3]) + "..."
}

// IsNegotiated reports whether err is an expected circulation outcome rather
// than a fault.
func IsNegotiated(err error) bool {
	for _, target := range []error{
		ErrBookNotFound, ErrMemberNotFound, ErrDuplicateISBN,
		ErrAlreadyBorrowed, ErrLimitExceeded, ErrAuthFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
