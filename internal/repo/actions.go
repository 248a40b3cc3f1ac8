package repo

import (
	"context"
	"database/sql"
	"errors"

	"goalline/internal/domain"
)

const actionColumns = `id,title,occurred_at,duration_minutes,created_at,archived_at`

func scanAction(row scanner) (domain.Action, error) {
	var a domain.Action
	var duration sql.NullFloat64
	var archived sql.NullString
	err := row.Scan(&a.ID, &a.Title, &a.OccurredAt, &duration, &a.CreatedAt, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	a.DurationMinutes = floatPtr(duration)
	a.ArchivedAt = stringPtr(archived)
	return a, err
}

// InsertActionTx writes the action with its measured_actions and action_goal_contributions rows.
func (r Repo) InsertActionTx(ctx context.Context, tx *sql.Tx, a domain.Action, measurements []domain.MeasuredAction, contributions []domain.Contribution) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO actions(id,title,occurred_at,duration_minutes,created_at) VALUES (?,?,?,?,?)`,
		a.ID, a.Title, a.OccurredAt, nullableFloatPtr(a.DurationMinutes), a.CreatedAt); err != nil {
		return err
	}
	for _, m := range measurements {
		if _, err := tx.ExecContext(ctx, `INSERT INTO measured_actions(id,action_id,measure_id,value,created_at) VALUES (?,?,?,?,?)`,
			m.ID, m.ActionID, m.MeasureID, m.Value, m.CreatedAt); err != nil {
			return err
		}
	}
	for _, c := range contributions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO action_goal_contributions(id,action_id,goal_id,measure_id,contribution,created_at) VALUES (?,?,?,?,?,?) ON CONFLICT(action_id,goal_id) DO NOTHING`,
			c.ID, c.ActionID, c.GoalID, nullableStringPtr(c.MeasureID), nullableFloatPtr(c.Amount), c.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetAction(ctx context.Context, id string) (domain.Action, error) {
	a, err := scanAction(r.DB.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id=?`, id))
	if err != nil {
		return a, err
	}
	if err := fillAction(ctx, r.DB, &a); err != nil {
		return a, err
	}
	return a, nil
}

// ListActions returns actions newest first.
func (r Repo) ListActions(ctx context.Context, includeArchived bool, limit int) ([]domain.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions` + archivedClause(includeArchived) + ` ORDER BY occurred_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		if err := fillAction(ctx, r.DB, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func fillAction(ctx context.Context, q queryer, a *domain.Action) error {
	rows, err := q.QueryContext(ctx, `SELECT id,action_id,measure_id,value,created_at FROM measured_actions WHERE action_id=? ORDER BY rowid`, a.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var m domain.MeasuredAction
		if err := rows.Scan(&m.ID, &m.ActionID, &m.MeasureID, &m.Value, &m.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		a.Measurements = append(a.Measurements, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT goal_id FROM action_goal_contributions WHERE action_id=? ORDER BY rowid`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		a.GoalIDs = append(a.GoalIDs, id)
	}
	return rows.Err()
}

// ListContributions returns the contribution rows for one goal.
func (r Repo) ListContributions(ctx context.Context, goalID string) ([]domain.Contribution, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,action_id,goal_id,measure_id,contribution,created_at FROM action_goal_contributions WHERE goal_id=? ORDER BY rowid`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contribution
	for rows.Next() {
		var c domain.Contribution
		var measureID sql.NullString
		var amount sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.ActionID, &c.GoalID, &measureID, &amount, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.MeasureID = stringPtr(measureID)
		c.Amount = floatPtr(amount)
		res = append(res, c)
	}
	return res, rows.Err()
}
