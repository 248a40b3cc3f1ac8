package repo

import (
	"context"
	"database/sql"
	"errors"

	"goalline/internal/domain"
)

const measureColumns = `id,unit,measure_type,COALESCE(description,''),created_at,archived_at`

func scanMeasure(row scanner) (domain.Measure, error) {
	var m domain.Measure
	var archived sql.NullString
	err := row.Scan(&m.ID, &m.Unit, &m.MeasureType, &m.Description, &m.CreatedAt, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	m.ArchivedAt = stringPtr(archived)
	return m, err
}

func (r Repo) InsertMeasureTx(ctx context.Context, tx *sql.Tx, m domain.Measure) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO measures(id,unit,measure_type,description,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.Unit, m.MeasureType, nullable(m.Description), m.CreatedAt)
	return err
}

func (r Repo) GetMeasure(ctx context.Context, id string) (domain.Measure, error) {
	return scanMeasure(r.DB.QueryRowContext(ctx, `SELECT `+measureColumns+` FROM measures WHERE id=?`, id))
}

func (r Repo) ListMeasures(ctx context.Context, includeArchived bool) ([]domain.Measure, error) {
	return listMeasures(ctx, r.DB, includeArchived)
}

func (r Repo) ListMeasuresTx(ctx context.Context, tx *sql.Tx) ([]domain.Measure, error) {
	return listMeasures(ctx, tx, false)
}

func listMeasures(ctx context.Context, q queryer, includeArchived bool) ([]domain.Measure, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+measureColumns+` FROM measures`+archivedClause(includeArchived)+` ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Measure
	for rows.Next() {
		m, err := scanMeasure(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
