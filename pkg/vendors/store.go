// Package vendors is the internal vendor database. It backs the
// DATABASE_QUERY flow: the orchestrator hands over the names and
// categories an agent extracted and gets matching rows back.
package vendors

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/adityow/sourcedesk/pkg/errorsx"
	"github.com/adityow/sourcedesk/pkg/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS vendors (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL,
	category TEXT NOT NULL,
	region   TEXT NOT NULL DEFAULT '',
	rating   REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_vendors_category ON vendors(category);
`

// Store is a sqlite-backed vendor database. Implements
// session.VendorLookup.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (and migrates) the vendor database at path. Use ":memory:"
// for tests.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreOpen)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreOpen)
	}
	return &Store{db: db, log: log.With(slog.String("component", "vendors"))}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Seed inserts vendor rows; used by examples and tests.
func (s *Store) Seed(ctx context.Context, records []session.VendorRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreQuery)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vendors (name, category, region, rating) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreQuery)
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Name, r.Category, r.Region, r.Rating); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonStoreQuery)
		}
	}
	return tx.Commit()
}

// Query matches vendors case-insensitively by partial name or category.
// When both filters are present a row matching either passes; a single
// filter narrows on that filter alone; no filters returns everything.
func (s *Store) Query(ctx context.Context, names, categories []string) ([]session.VendorRecord, error) {
	names = cleanTerms(names)
	categories = cleanTerms(categories)

	var (
		where string
		args  []any
	)
	nameClause, nameArgs := likeClause("name", names)
	catClause, catArgs := likeClause("category", categories)
	switch {
	case nameClause != "" && catClause != "":
		where = fmt.Sprintf("WHERE (%s) OR (%s)", nameClause, catClause)
		args = append(nameArgs, catArgs...)
	case nameClause != "":
		where = "WHERE " + nameClause
		args = nameArgs
	case catClause != "":
		where = "WHERE " + catClause
		args = catArgs
	}

	query := fmt.Sprintf(
		`SELECT id, name, category, region, rating FROM vendors %s ORDER BY rating DESC, name ASC`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreQuery)
	}
	defer rows.Close()

	var out []session.VendorRecord
	for rows.Next() {
		var r session.VendorRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.Region, &r.Rating); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonStoreQuery)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreQuery)
	}
	s.log.Debug("vendor_query",
		"names", len(names),
		"categories", len(categories),
		"matches", len(out),
	)
	return out, nil
}

func likeClause(column string, terms []string) (string, []any) {
	if len(terms) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, fmt.Sprintf("LOWER(%s) LIKE ?", column))
		args = append(args, "%"+strings.ToLower(t)+"%")
	}
	return strings.Join(parts, " OR "), args
}

func cleanTerms(terms []string) []string {
	out := terms[:0:0]
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
