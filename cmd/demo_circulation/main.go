package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"library-catalog/library"
)

type bookMeta struct {
	title  string
	author string
	year   int
}

// Catalog to import (ISBN -> metadata).
var bookMetadata = map[string]bookMeta{
	"9780451524935": {"1984", "George Orwell", 1949},
	"9780451526342": {"Animal Farm", "George Orwell", 1945},
	"9780553296983": {"The Diary of a Young Girl", "Anne Frank", 1947},
	"9781590302255": {"The Art of War", "Sun Tzu", -500},
	"9780547928210": {"The Fellowship of the Ring", "J.R.R. Tolkien", 1954},
	"9780547928203": {"The Two Towers", "J.R.R. Tolkien", 1954},
	"9780547928197": {"The Return of the King", "J.R.R. Tolkien", 1955},
	"9780743477116": {"Romeo and Juliet", "William Shakespeare", 1597},
	"9780140449266": {"The Three Musketeers", "Alexandre Dumas", 1844},
}

var members = []struct {
	name string
	id   string
	tier library.Tier
}{
	{"Alice", "RM01", library.TierRegular},
	{"Bob", "RM02", library.TierRegular},
	{"Carol", "PM01", library.TierPremium},
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := library.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.Seed = false

	manager, err := library.NewLibraryManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating library: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	var lowStock atomic.Int32
	manager.OnBookBorrowed(func(msg string) { fmt.Println(msg) })
	manager.OnBookReturned(func(msg string) { fmt.Println(msg) })
	manager.OnLowStock(func(msg string) {
		lowStock.Add(1)
		fmt.Println(msg)
	})

	fmt.Println("Importing books...")
	successCount, errorCount := 0, 0
	for isbn, meta := range bookMetadata {
		author := library.Author{Name: meta.author, Email: emailFor(meta.author)}
		if err := manager.AddBook(meta.title, author, isbn, meta.year); err != nil {
			fmt.Printf("ERROR - %s: %v\n", meta.title, err)
			errorCount++
			continue
		}
		successCount++
	}
	fmt.Printf("Imported: %d books, errors: %d\n", successCount, errorCount)

	for _, m := range members {
		if err := manager.AddMember(m.name, m.id, m.tier, ""); err != nil {
			fmt.Fprintf(os.Stderr, "Error adding member %s: %v\n", m.id, err)
			os.Exit(1)
		}
	}

	// Every member asks for every book at once; the catalog decides who gets what.
	fmt.Println("\nRunning concurrent borrows...")
	start := time.Now()

	var (
		mu       sync.Mutex
		lent     int
		refusals = make(map[string]int)
	)
	var g errgroup.Group
	for _, m := range members {
		for isbn := range bookMetadata {
			pending := manager.BorrowBookAsync(m.id, isbn)
			g.Go(func() error {
				_, err := pending.Wait()
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					lent++
				case library.IsNegotiated(err):
					refusals[reason(err)]++
				default:
					return err
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		slog.Error("borrow run failed", "err", err)
		os.Exit(1)
	}
	slog.Info("borrow run finished", "lent", lent, "took", time.Since(start).Round(time.Millisecond))

	for r, n := range refusals {
		fmt.Printf("Refused (%s): %d\n", r, n)
	}
	fmt.Printf("Low-stock warnings: %d\n", lowStock.Load())

	// Regular members bring everything back.
	for _, m := range manager.GetAllMembers() {
		if m.Tier != library.TierRegular {
			continue
		}
		for _, b := range m.BorrowedBooks() {
			if _, err := manager.ReturnBook(m.ID, b.ISBN); err != nil {
				slog.Warn("return failed", "member", m.ID, "isbn", b.ISBN, "err", err)
			}
		}
	}

	fmt.Println("\nMembers:")
	fmt.Printf("%-8s %-25s %-8s %s\n", "ID", "Name", "Tier", "Borrowed")
	fmt.Println(strings.Repeat("-", 55))
	for _, m := range manager.GetAllMembers() {
		fmt.Println(library.PrettyMember(m))
	}

	fmt.Println("\nBooks by year:")
	for b := range manager.BooksByYear(library.SortAscending) {
		fmt.Printf("%-6d %-30s %-20s borrowed=%t\n", b.PublicationYear, library.TruncateString(b.Title, 30), b.Author.Name, b.Borrowed)
	}

	fmt.Println("\nAuthors with multiple books:")
	for grp := range manager.AuthorsWithMultipleBooks() {
		fmt.Printf("%s: %s\n", grp.Key, strings.Join(grp.Titles, ", "))
	}

	open, err := manager.OpenLoans(context.Background())
	if err != nil {
		slog.Error("open loans", "err", err)
		os.Exit(1)
	}
	fmt.Printf("\nBooks still on loan according to the ledger: %d\n", len(open))
}

func reason(err error) string {
	for _, target := range []error{library.ErrAlreadyBorrowed, library.ErrLimitExceeded, library.ErrBookNotFound, library.ErrMemberNotFound} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func emailFor(name string) string {
	return strings.ToLower(strings.NewReplacer(" ", ".", "'", "").Replace(name)) + "@example.com"
}
