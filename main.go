package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-catalog/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type options struct {
	cfg      library.Config
	jsonOut  bool
	keyword  string
	memberID string
	open     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cfg, envErr := library.ConfigFromEnv()
	opts.cfg = cfg

	root := &cobra.Command{
		Use:           "library",
		Short:         "In-memory library catalog with borrowing and reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			slog.SetDefault(newLogger(opts.cfg.LogLevel))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(opts, func(mgr *library.LibraryManager) error {
				runMenu(bufio.NewScanner(os.Stdin), mgr)
				return nil
			})
		},
	}

	flags := root.PersistentFlags()
	flags.DurationVar(&opts.cfg.BorrowDelay, "delay", cfg.BorrowDelay, "pause before a borrow or return completes")
	flags.IntVar(&opts.cfg.LowStockThreshold, "low-stock", cfg.LowStockThreshold, "available-book count that triggers a low-stock warning")
	flags.StringVar(&opts.cfg.LedgerPath, "ledger", cfg.LedgerPath, "SQLite file for loan history (empty: in memory)")
	flags.BoolVar(&opts.cfg.Seed, "seed", cfg.Seed, "start with the demo books and members")
	flags.StringVar(&opts.cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.BoolVar(&opts.jsonOut, "json", false, "print listings as JSON")

	root.AddCommand(newBooksCmd(opts), newMembersCmd(opts), newReportCmd(opts), newHistoryCmd(opts))
	root.SetOut(os.Stdout)
	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func withManager(opts *options, fn func(*library.LibraryManager) error) error {
	mgr, err := library.NewLibraryManager(opts.cfg)
	if err != nil {
		slog.Error("open library", "err", err)
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			slog.Warn("close library", "err", err)
		}
	}()

	mgr.OnBookBorrowed(func(msg string) { fmt.Println(msg) })
	mgr.OnBookReturned(func(msg string) { fmt.Println(msg) })
	mgr.OnLowStock(func(msg string) { fmt.Println(msg) })
	mgr.OnLedgerError(func(loan library.Loan, err error) {
		slog.Warn("loan not written to ledger", "loan", loan.ID, "err", err)
	})

	slog.Debug("library ready",
		"books", len(mgr.GetAllBooks()),
		"members", len(mgr.GetAllMembers()),
		"delay", opts.cfg.BorrowDelay,
	)
	return fn(mgr)
}

// ---------------------------------------------------------------------------
// One-shot commands
// ---------------------------------------------------------------------------

func newBooksCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(opts, func(mgr *library.LibraryManager) error {
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), mgr.GetAllBooks())
				}
				handleListBooks(mgr)
				return nil
			})
		},
	}
}

func newMembersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List members",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(opts, func(mgr *library.LibraryManager) error {
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), mgr.GetAllMembers())
				}
				handleListMembers(mgr)
				return nil
			})
		},
	}
}

func newReportCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the catalog reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(opts, func(mgr *library.LibraryManager) error {
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), collectReport(mgr, opts.keyword))
				}
				printReport(mgr, opts.keyword)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.keyword, "keyword", "", "title keyword to filter by")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the loan ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(opts, func(mgr *library.LibraryManager) error {
				var (
					loans []library.Loan
					err   error
				)
				if opts.open {
					loans, err = mgr.OpenLoans(cmd.Context())
				} else {
					loans, err = mgr.LoanHistory(cmd.Context(), opts.memberID)
				}
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), loans)
				}
				if opts.open {
					fmt.Println("Borrows without a matching return in the ledger (may include earlier sessions):")
				}
				printLoans(loans)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.memberID, "member", "", "only this member's loans")
	cmd.Flags().BoolVar(&opts.open, "open", false, "only borrows that were never returned")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ---------------------------------------------------------------------------
// Interactive menu
// ---------------------------------------------------------------------------

func runMenu(sc *bufio.Scanner, mgr *library.LibraryManager) {
	fmt.Println("Library Management System")
	fmt.Println("Available commands:")
	fmt.Println("  Books: list books, add book, update title, delete book, search book")
	fmt.Println("  Members: list members, add member, remove member, search member, reset passcode")
	fmt.Println("  Circulation: borrow, return, history")
	fmt.Println("  Reports: report")
	fmt.Println("  System: exit")

	for {
		fmt.Print("\n> ")
		if !sc.Scan() {
			break
		}
		cmd := strings.TrimSpace(sc.Text())

		switch cmd {
		case "list books":
			handleListBooks(mgr)
		case "list members":
			handleListMembers(mgr)
		case "add book":
			handleAddBook(sc, mgr)
		case "update title":
			handleUpdateTitle(sc, mgr)
		case "delete book":
			handleDeleteBook(sc, mgr)
		case "search book":
			handleSearchBook(sc, mgr)
		case "add member":
			handleAddMember(sc, mgr)
		case "remove member":
			handleRemoveMember(sc, mgr)
		case "search member":
			handleSearchMember(sc, mgr)
		case "reset passcode":
			handleResetPasscode(sc, mgr)
		case "borrow":
			handleBorrow(sc, mgr)
		case "return":
			handleReturn(sc, mgr)
		case "history":
			handleHistory(sc, mgr)
		case "report":
			handleReport(sc, mgr)
		case "exit":
			fmt.Println("Exiting Library Management System.")
			return
		case "":
		default:
			fmt.Println("Unknown command. Type one of the available commands listed above.")
		}
	}
}

func prompt(sc *bufio.Scanner, label string) (string, bool) {
	fmt.Print(label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

// readPasscode reads a passcode with masking when stdin is a terminal.
func readPasscode(sc *bufio.Scanner, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		v, _ := prompt(sc, label)
		return v, nil
	}
	fmt.Print(label)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// authenticate asks for the member's passcode when one is set.
func authenticate(sc *bufio.Scanner, mgr *library.LibraryManager, memberID string) error {
	m, ok := mgr.SearchMember(memberID)
	if !ok || !m.HasPasscode() {
		return nil
	}
	passcode, err := readPasscode(sc, "Enter passcode: ")
	if err != nil {
		return fmt.Errorf("failed to read passcode: %w", err)
	}
	return mgr.AuthenticateMember(memberID, passcode)
}

func handleListBooks(mgr *library.LibraryManager) {
	books := mgr.GetAllBooks()
	if len(books) == 0 {
		fmt.Println("No books in library.")
		return
	}
	fmt.Printf("%-10s %-30s %-20s %-6s %-8s\n", "ISBN", "Title", "Author", "Year", "Borrowed")
	fmt.Println(strings.Repeat("-", 80))
	for _, b := range books {
		b.Title = library.TruncateString(b.Title, 30)
		b.Author.Name = library.TruncateString(b.Author.Name, 20)
		fmt.Println(library.PrettyBook(b))
	}
}

func handleListMembers(mgr *library.LibraryManager) {
	members := mgr.GetAllMembers()
	if len(members) == 0 {
		fmt.Println("No members registered.")
		return
	}
	fmt.Printf("%-8s %-25s %-8s %s\n", "ID", "Name", "Tier", "Borrowed")
	fmt.Println(strings.Repeat("-", 55))
	for _, m := range members {
		fmt.Println(library.PrettyMember(m))
	}
}

func handleAddBook(sc *bufio.Scanner, mgr *library.LibraryManager) {
	title, ok := prompt(sc, "Enter book title: ")
	if !ok {
		return
	}
	authorName, ok := prompt(sc, "Enter author name: ")
	if !ok {
		return
	}
	authorEmail, ok := prompt(sc, "Enter author email: ")
	if !ok {
		return
	}
	isbn, ok := prompt(sc, "Enter ISBN: ")
	if !ok {
		return
	}
	yearStr, ok := prompt(sc, "Enter publication year: ")
	if !ok {
		return
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		fmt.Println("Invalid year. Please enter a number.")
		return
	}

	if err := mgr.AddBook(title, library.Author{Name: authorName, Email: authorEmail}, isbn, year); err != nil {
		fmt.Printf("Error adding book: %v\n", err)
		return
	}
	fmt.Println("Book added successfully.")
}

func handleUpdateTitle(sc *bufio.Scanner, mgr *library.LibraryManager) {
	isbn, ok := prompt(sc, "Enter ISBN of book to update: ")
	if !ok {
		return
	}
	title, ok := prompt(sc, "Enter new title: ")
	if !ok {
		return
	}
	if !mgr.UpdateBookTitle(isbn, title) {
		fmt.Println("Book not found.")
		return
	}
	fmt.Println("Book title updated successfully.")
}

func handleDeleteBook(sc *bufio.Scanner, mgr *library.LibraryManager) {
	isbn, ok := prompt(sc, "Enter ISBN of the book to delete: ")
	if !ok {
		return
	}
	if !mgr.DeleteBook(isbn) {
		fmt.Println("Book not found.")
		return
	}
	fmt.Println("Book deleted successfully.")
}

func handleSearchBook(sc *bufio.Scanner, mgr *library.LibraryManager) {
	isbn, ok := prompt(sc, "Enter ISBN to search for a book: ")
	if !ok {
		return
	}
	b, found := mgr.SearchBook(isbn)
	if !found {
		fmt.Println("Book not found. Please enter a valid ISBN.")
		return
	}
	fmt.Printf("Found Book: %s, Author: %s\n", b.Title, b.Author.Name)
}

func handleAddMember(sc *bufio.Scanner, mgr *library.LibraryManager) {
	name, ok := prompt(sc, "Enter member name: ")
	if !ok {
		return
	}
	id, ok := prompt(sc, "Enter member ID: ")
	if !ok {
		return
	}
	tierStr, ok := prompt(sc, "Enter membership type (Regular/Premium): ")
	if !ok {
		return
	}
	tier, err := library.ParseTier(tierStr)
	if err != nil {
		fmt.Println("Invalid membership type.")
		return
	}
	if _, exists := mgr.SearchMember(id); exists {
		fmt.Printf("Note: member ID %s is already in use.\n", id)
	}
	passcode, err := readPasscode(sc, "Enter passcode (optional): ")
	if err != nil {
		fmt.Printf("Error reading passcode: %v\n", err)
		return
	}

	if err := mgr.AddMember(name, id, tier, passcode); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Added %s member '%s' with ID %s\n", tier, name, id)
}

func handleRemoveMember(sc *bufio.Scanner, mgr *library.LibraryManager) {
	id, ok := prompt(sc, "Enter Member ID to remove: ")
	if !ok {
		return
	}
	if mgr.RemoveMember(id) == 0 {
		fmt.Println("Member not found.")
		return
	}
	fmt.Println("Member removed successfully.")
}

func handleSearchMember(sc *bufio.Scanner, mgr *library.LibraryManager) {
	id, ok := prompt(sc, "Enter Member ID to search: ")
	if !ok {
		return
	}
	m, found := mgr.SearchMember(id)
	if !found {
		fmt.Println("Member not found. Please enter a valid Member ID.")
		return
	}
	fmt.Printf("Found Member: %s, Borrowed Books: %d\n", m.Name, m.BorrowedCount())
}

func handleResetPasscode(sc *bufio.Scanner, mgr *library.LibraryManager) {
	id, ok := prompt(sc, "Member ID: ")
	if !ok {
		return
	}
	m, found := mgr.SearchMember(id)
	if !found {
		fmt.Printf("Error: Member with ID %s not found\n", id)
		return
	}
	if err := authenticate(sc, mgr, id); err != nil {
		fmt.Printf("Authentication failed: %v\n", err)
		return
	}
	passcode, err := readPasscode(sc, fmt.Sprintf("Enter new passcode for %s (empty clears it): ", m.Name))
	if err != nil {
		fmt.Printf("Error reading passcode: %v\n", err)
		return
	}
	if err := mgr.ResetPasscode(id, passcode); err != nil {
		fmt.Printf("Error resetting passcode: %v\n", err)
		return
	}
	fmt.Printf("Passcode updated for %s (ID: %s)\n", m.Name, id)
}

func handleBorrow(sc *bufio.Scanner, mgr *library.LibraryManager) {
	memberID, ok := prompt(sc, "Enter member ID: ")
	if !ok {
		return
	}
	isbn, ok := prompt(sc, "Enter book ISBN to borrow: ")
	if !ok {
		return
	}
	if err := authenticate(sc, mgr, memberID); err != nil {
		fmt.Printf("Authentication failed: %v\n", err)
		return
	}

	fmt.Println("Processing...")
	loan, err := mgr.BorrowBook(memberID, isbn)
	if err != nil {
		reportCirculationError("borrowing", err)
		return
	}
	fmt.Printf("Success! %s has borrowed '%s'.\n", loan.MemberName, loan.Title)
}

func handleReturn(sc *bufio.Scanner, mgr *library.LibraryManager) {
	memberID, ok := prompt(sc, "Enter member ID: ")
	if !ok {
		return
	}
	isbn, ok := prompt(sc, "Enter book ISBN to return: ")
	if !ok {
		return
	}
	if err := authenticate(sc, mgr, memberID); err != nil {
		fmt.Printf("Authentication failed: %v\n", err)
		return
	}

	fmt.Println("Processing...")
	loan, err := mgr.ReturnBook(memberID, isbn)
	if err != nil {
		reportCirculationError("returning", err)
		return
	}
	fmt.Printf("Success! %s has returned '%s'.\n", loan.MemberName, loan.Title)
}

func reportCirculationError(action string, err error) {
	if library.IsNegotiated(err) {
		fmt.Printf("Sorry: %v\n", err)
		return
	}
	slog.Error("circulation failed", "action", action, "err", err)
	fmt.Printf("Unexpected error %s book: %v\n", action, err)
}

func handleHistory(sc *bufio.Scanner, mgr *library.LibraryManager) {
	memberID, ok := prompt(sc, "Member ID (or press Enter for everyone): ")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	loans, err := mgr.LoanHistory(ctx, memberID)
	if err != nil {
		fmt.Printf("Error retrieving history: %v\n", err)
		return
	}
	printLoans(loans)
}

func printLoans(loans []library.Loan) {
	if len(loans) == 0 {
		fmt.Println("No loans recorded.")
		return
	}
	fmt.Printf("%-20s %-9s %-8s %-20s %-10s %s\n", "When", "Kind", "Member", "Name", "ISBN", "Title")
	fmt.Println(strings.Repeat("-", 100))
	for _, l := range loans {
		fmt.Printf("%-20s %-9s %-8s %-20s %-10s %s\n",
			l.At.Local().Format("2006-01-02 15:04:05"),
			l.Kind,
			l.MemberID,
			library.TruncateString(l.MemberName, 20),
			l.ISBN,
			l.Title)
	}
}

func handleReport(sc *bufio.Scanner, mgr *library.LibraryManager) {
	keyword, ok := prompt(sc, "Enter keyword to search for books: ")
	if !ok {
		return
	}
	printReport(mgr, keyword)
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

type borrowCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type reportData struct {
	Keyword      string          `json:"keyword"`
	Ascending    []library.Book  `json:"books_by_year_asc"`
	Descending   []library.Book  `json:"books_by_year_desc"`
	ByAuthor     []library.Group `json:"books_by_author"`
	Matching     []library.Book  `json:"matching_books"`
	ByTier       []library.Group `json:"members_by_tier"`
	BorrowCounts []borrowCount   `json:"borrow_counts"`
	MultiAuthors []library.Group `json:"authors_with_multiple_books"`
	OnLoan       int             `json:"on_loan"`
}

func collectReport(mgr *library.LibraryManager, keyword string) reportData {
	r := reportData{Keyword: keyword}
	for b := range mgr.BooksByYear(library.SortAscending) {
		r.Ascending = append(r.Ascending, b)
	}
	for b := range mgr.BooksByYear(library.SortDescending) {
		r.Descending = append(r.Descending, b)
	}
	for g := range mgr.BooksByAuthor() {
		r.ByAuthor = append(r.ByAuthor, g)
	}
	for b := range mgr.FilterByTitle(keyword) {
		r.Matching = append(r.Matching, b)
	}
	for g := range mgr.MembersByTier() {
		r.ByTier = append(r.ByTier, g)
	}
	for name, n := range mgr.BorrowCounts() {
		r.BorrowCounts = append(r.BorrowCounts, borrowCount{Name: name, Count: n})
	}
	for g := range mgr.AuthorsWithMultipleBooks() {
		r.MultiAuthors = append(r.MultiAuthors, g)
	}
	r.OnLoan = len(mgr.GetAllBooks()) - mgr.AvailableCount()
	return r
}

func printReport(mgr *library.LibraryManager, keyword string) {
	fmt.Println("\nBooks Sorted by Publication Year (Ascending):")
	for b := range mgr.BooksByYear(library.SortAscending) {
		fmt.Printf("%s (%d)\n", b.Title, b.PublicationYear)
	}

	fmt.Println("\nBooks Sorted by Publication Year (Descending):")
	for b := range mgr.BooksByYear(library.SortDescending) {
		fmt.Printf("%s (%d)\n", b.Title, b.PublicationYear)
	}

	fmt.Println("\nBooks Grouped by Author:")
	for g := range mgr.BooksByAuthor() {
		fmt.Printf("%s: %d books\n", g.Key, g.Count)
	}

	fmt.Printf("\nBooks matching %q:\n", keyword)
	for b := range mgr.FilterByTitle(keyword) {
		fmt.Println(b.Title)
	}

	fmt.Println("\nLibrary Members Grouped by Type:")
	for g := range mgr.MembersByTier() {
		fmt.Printf("%s: %d members\n", g.Key, g.Count)
	}

	fmt.Println("\nTotal Books Borrowed per Member:")
	for name, n := range mgr.BorrowCounts() {
		fmt.Printf("%s borrowed %d books\n", name, n)
	}

	fmt.Println("\nAuthors with Multiple Books:")
	for g := range mgr.AuthorsWithMultipleBooks() {
		fmt.Printf("%s has written multiple books:\n", g.Key)
		for _, title := range g.Titles {
			fmt.Printf("  - %s\n", title)
		}
	}

	fmt.Printf("\nBooks currently on loan: %d\n", len(mgr.GetAllBooks())-mgr.AvailableCount())
}
