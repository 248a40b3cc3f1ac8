package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Kind names a record table.
type Kind string

const (
	KindValue   Kind = "value"
	KindMeasure Kind = "measure"
	KindGoal    Kind = "goal"
	KindAction  Kind = "action"
)

func (k Kind) table() (string, error) {
	switch k {
	case KindValue:
		return `"values"`, nil
	case KindMeasure:
		return "measures", nil
	case KindGoal:
		return "goals", nil
	case KindAction:
		return "actions", nil
	}
	return "", fmt.Errorf("unknown record kind %q", k)
}

// ArchiveTx marks a record archived. Archived records drop out of listings.
func (r Repo) ArchiveTx(ctx context.Context, tx *sql.Tx, k Kind, id, at string) error {
	table, err := k.table()
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET archived_at=? WHERE id=? AND archived_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func archivedClause(includeArchived bool) string {
	if includeArchived {
		return ""
	}
	return " WHERE archived_at IS NULL"
}
