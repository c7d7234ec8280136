package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Ledger keeps the loan history in SQLite. It records what happened; the
// catalog never reads its state back from here.
type Ledger struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

type loanRow struct {
	Seq        int64     `db:"seq"`
	ID         uuid.UUID `db:"id"`
	Kind       string    `db:"kind"`
	MemberID   string    `db:"member_id"`
	MemberName string    `db:"member_name"`
	ISBN       string    `db:"isbn"`
	Title      string    `db:"title"`
	At         time.Time `db:"at"`
}

var loanColumns = []any{"seq", "id", "kind", "member_id", "member_name", "isbn", "title", "at"}

// OpenLedger opens the ledger at path, or a private in-memory database when
// path is empty or ":memory:".
func OpenLedger(path string) (*Ledger, error) {
	var dsn string
	switch path {
	case "", ":memory:":
		dsn = fmt.Sprintf("file:ledger-%s?mode=memory&cache=shared", uuid.NewString())
	default:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create ledger dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps an in-memory database alive and serialises writers.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return &Ledger{db: db, dialect: goqu.Dialect("sqlite3")}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS loans (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT NOT NULL UNIQUE,
            kind TEXT NOT NULL,
            member_id TEXT NOT NULL,
            member_name TEXT NOT NULL,
            isbn TEXT NOT NULL,
            title TEXT NOT NULL,
            at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Record appends one completed transition.
func (l *Ledger) Record(ctx context.Context, loan Loan) error {
	query, args, err := l.dialect.
		Insert("loans").
		Rows(goqu.Record{
			"id":          loan.ID.String(),
			"kind":        loan.Kind.String(),
			"member_id":   loan.MemberID,
			"member_name": loan.MemberName,
			"isbn":        loan.ISBN,
			"title":       loan.Title,
			"at":          loan.At,
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record loan %s: %w", loan.ID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// History returns the member's transitions oldest first. An empty memberID
// returns the whole ledger.
func (l *Ledger) History(ctx context.Context, memberID string) ([]Loan, error) {
	ds := l.dialect.From("loans").Select(loanColumns...).Order(goqu.C("seq").Asc())
	if strings.TrimSpace(memberID) != "" {
		ds = ds.Where(goqu.C("member_id").Eq(memberID))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}
	return l.selectLoans(ctx, query, args...)
}

// OpenLoans returns the borrows that have no later matching return.
func (l *Ledger) OpenLoans(ctx context.Context) ([]Loan, error) {
	returned := l.dialect.
		From(goqu.T("loans").As("r")).
		Select(goqu.L("1")).
		Where(
			goqu.I("r.kind").Eq(EventReturned.String()),
			goqu.I("r.member_id").Eq(goqu.I("l.member_id")),
			goqu.I("r.isbn").Eq(goqu.I("l.isbn")),
			goqu.I("r.seq").Gt(goqu.I("l.seq")),
		)

	cols := make([]any, len(loanColumns))
	for i, c := range loanColumns {
		name := c.(string)
		cols[i] = goqu.I("l." + name).As(name)
	}

	query, args, err := l.dialect.
		From(goqu.T("loans").As("l")).
		Select(cols...).
		Where(
			goqu.I("l.kind").Eq(EventBorrowed.String()),
			goqu.L("NOT EXISTS ?", returned),
		).
		Order(goqu.I("l.seq").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build open loans query: %w", err)
	}
	return l.selectLoans(ctx, query, args...)
}

func (l *Ledger) selectLoans(ctx context.Context, query string, args ...any) ([]Loan, error) {
	var rows []loanRow
	if err := l.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}

	loans := make([]Loan, 0, len(rows))
	for _, r := range rows {
		kind, err := parseEventKind(r.Kind)
		if err != nil {
			return nil, err
		}
		loans = append(loans, Loan{
			ID:         r.ID,
			Kind:       kind,
			MemberID:   r.MemberID,
			MemberName: r.MemberName,
			ISBN:       r.ISBN,
			Title:      r.Title,
			At:         r.At,
		})
	}
	return loans, nil
}
