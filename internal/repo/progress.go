package repo

import (
	"context"
	"database/sql"

	"goalline/internal/domain"
)

// Only actions dated inside the goal's start and target dates are summed.
const progressQuery = `SELECT g.id, g.title, m.unit, g.target_value,
  COALESCE(SUM(CASE WHEN a.archived_at IS NULL
    AND (g.start_date IS NULL OR substr(a.occurred_at, 1, 10) >= g.start_date)
    AND (g.target_date IS NULL OR substr(a.occurred_at, 1, 10) <= g.target_date)
    THEN c.contribution END), 0),
  COUNT(CASE WHEN c.id IS NOT NULL AND a.archived_at IS NULL THEN 1 END)
FROM goals g
JOIN measures m ON m.id = g.measure_id
LEFT JOIN action_goal_contributions c ON c.goal_id = g.id
LEFT JOIN actions a ON a.id = c.action_id
WHERE 1=1`

// GoalProgress aggregates contributions of non-archived actions per goal.
// Contributions counts every linked action, credited or not.
func (r Repo) GoalProgress(ctx context.Context, goalID string) ([]domain.GoalProgress, error) {
	query := progressQuery
	var args []any
	if goalID != "" {
		query += ` AND g.id=?`
		args = append(args, goalID)
	} else {
		query += ` AND g.archived_at IS NULL`
	}
	query += ` GROUP BY g.id ORDER BY g.created_at, g.rowid`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GoalProgress
	for rows.Next() {
		var p domain.GoalProgress
		var total sql.NullFloat64
		if err := rows.Scan(&p.GoalID, &p.Title, &p.Unit, &p.Target, &total, &p.Contributions); err != nil {
			return nil, err
		}
		p.Total = total.Float64
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if goalID != "" && len(res) == 0 {
		return nil, ErrNotFound
	}
	return res, nil
}
