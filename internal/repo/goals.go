package repo

import (
	"context"
	"database/sql"
	"errors"

	"goalline/internal/domain"
)

const goalColumns = `id,title,target_value,measure_id,start_date,target_date,COALESCE(action_plan,''),created_at,archived_at`

func scanGoal(row scanner) (domain.Goal, error) {
	var g domain.Goal
	var start, target, archived sql.NullString
	err := row.Scan(&g.ID, &g.Title, &g.TargetValue, &g.MeasureID, &start, &target, &g.ActionPlan, &g.CreatedAt, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	g.StartDate = stringPtr(start)
	g.TargetDate = stringPtr(target)
	g.ArchivedAt = stringPtr(archived)
	return g, err
}

// InsertGoalTx writes the goal and one goal_relevances row per value id.
func (r Repo) InsertGoalTx(ctx context.Context, tx *sql.Tx, g domain.Goal, relevances []domain.GoalRelevance) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO goals(id,title,target_value,measure_id,start_date,target_date,action_plan,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		g.ID, g.Title, g.TargetValue, g.MeasureID, nullableStringPtr(g.StartDate), nullableStringPtr(g.TargetDate), nullable(g.ActionPlan), g.CreatedAt); err != nil {
		return err
	}
	for _, rel := range relevances {
		if _, err := tx.ExecContext(ctx, `INSERT INTO goal_relevances(id,goal_id,value_id,created_at) VALUES (?,?,?,?) ON CONFLICT(goal_id,value_id) DO NOTHING`,
			rel.ID, rel.GoalID, rel.ValueID, rel.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetGoal(ctx context.Context, id string) (domain.Goal, error) {
	g, err := scanGoal(r.DB.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id=?`, id))
	if err != nil {
		return g, err
	}
	g.ValueIDs, err = goalValueIDs(ctx, r.DB, g.ID)
	return g, err
}

func (r Repo) ListGoals(ctx context.Context, includeArchived bool) ([]domain.Goal, error) {
	return listGoals(ctx, r.DB, includeArchived)
}

func (r Repo) ListGoalsTx(ctx context.Context, tx *sql.Tx) ([]domain.Goal, error) {
	return listGoals(ctx, tx, false)
}

func listGoals(ctx context.Context, q queryer, includeArchived bool) ([]domain.Goal, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals`+archivedClause(includeArchived)+` ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	var res []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		ids, err := goalValueIDs(ctx, q, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].ValueIDs = ids
	}
	return res, nil
}

func goalValueIDs(ctx context.Context, q queryer, goalID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT value_id FROM goal_relevances WHERE goal_id=? ORDER BY created_at, rowid`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GoalTracking is the measure and period an action is credited against.
type GoalTracking struct {
	MeasureID  string
	StartDate  *string
	TargetDate *string
}

func (r Repo) GoalTrackingTx(ctx context.Context, tx *sql.Tx, goalID string) (GoalTracking, error) {
	var g GoalTracking
	var start, target sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT measure_id,start_date,target_date FROM goals WHERE id=?`, goalID).Scan(&g.MeasureID, &start, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	g.StartDate, g.TargetDate = stringPtr(start), stringPtr(target)
	return g, err
}
