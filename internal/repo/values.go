package repo

import (
	"context"
	"database/sql"
	"errors"

	"goalline/internal/domain"
)

const valueColumns = `id,title,level,priority,COALESCE(description,''),life_domain,COALESCE(notes,''),COALESCE(alignment_guidance,''),created_at,archived_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanValue(row scanner) (domain.Value, error) {
	var v domain.Value
	var archived sql.NullString
	err := row.Scan(&v.ID, &v.Title, &v.Level, &v.Priority, &v.Description, &v.LifeDomain, &v.Notes, &v.AlignmentGuidance, &v.CreatedAt, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	v.ArchivedAt = stringPtr(archived)
	return v, err
}

func (r Repo) InsertValueTx(ctx context.Context, tx *sql.Tx, v domain.Value) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO "values"(id,title,level,priority,description,life_domain,notes,alignment_guidance,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		v.ID, v.Title, v.Level, v.Priority, nullable(v.Description), v.LifeDomain, nullable(v.Notes), nullable(v.AlignmentGuidance), v.CreatedAt)
	return err
}

func (r Repo) GetValue(ctx context.Context, id string) (domain.Value, error) {
	return scanValue(r.DB.QueryRowContext(ctx, `SELECT `+valueColumns+` FROM "values" WHERE id=?`, id))
}

// ListValues returns values in insertion order.
func (r Repo) ListValues(ctx context.Context, includeArchived bool) ([]domain.Value, error) {
	return listValues(ctx, r.DB, includeArchived)
}

func (r Repo) ListValuesTx(ctx context.Context, tx *sql.Tx) ([]domain.Value, error) {
	return listValues(ctx, tx, false)
}

func listValues(ctx context.Context, q queryer, includeArchived bool) ([]domain.Value, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+valueColumns+` FROM "values"`+archivedClause(includeArchived)+` ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Value
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
