package domain

type Value struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Level             string  `json:"level" enum:"general,major,highest_order,life_area"`
	Priority          int     `json:"priority" minimum:"1" maximum:"100"`
	Description       string  `json:"description,omitempty"`
	LifeDomain        string  `json:"life_domain"`
	Notes             string  `json:"notes,omitempty"`
	AlignmentGuidance string  `json:"alignment_guidance,omitempty"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	ArchivedAt        *string `json:"archived_at,omitempty" format:"date-time"`
}

type Measure struct {
	ID          string  `json:"id"`
	Unit        string  `json:"unit"`
	MeasureType string  `json:"measure_type" example:"distance"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	ArchivedAt  *string `json:"archived_at,omitempty" format:"date-time"`
}

type Goal struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	TargetValue float64  `json:"target_value"`
	MeasureID   string   `json:"measure_id"`
	StartDate   *string  `json:"start_date,omitempty" format:"date"`
	TargetDate  *string  `json:"target_date,omitempty" format:"date"`
	ActionPlan  string   `json:"action_plan,omitempty"`
	ValueIDs    []string `json:"value_ids,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	ArchivedAt  *string  `json:"archived_at,omitempty" format:"date-time"`
}

type Action struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	OccurredAt      string           `json:"occurred_at" format:"date-time"`
	DurationMinutes *float64         `json:"duration_minutes,omitempty"`
	Measurements    []MeasuredAction `json:"measurements,omitempty"`
	GoalIDs         []string         `json:"goal_ids,omitempty"`
	CreatedAt       string           `json:"created_at" format:"date-time"`
	ArchivedAt      *string          `json:"archived_at,omitempty" format:"date-time"`
}

// GoalRelevance links a goal to a value it serves.
type GoalRelevance struct {
	ID        string `json:"id"`
	GoalID    string `json:"goal_id"`
	ValueID   string `json:"value_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// MeasuredAction records how much of a measure an action produced.
type MeasuredAction struct {
	ID        string  `json:"id"`
	ActionID  string  `json:"action_id"`
	MeasureID string  `json:"measure_id"`
	Value     float64 `json:"value"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// Contribution links an action to a goal. MeasureID and Amount are set when the
// action measured the goal's unit.
type Contribution struct {
	ID        string   `json:"id"`
	ActionID  string   `json:"action_id"`
	GoalID    string   `json:"goal_id"`
	MeasureID *string  `json:"measure_id,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type GoalProgress struct {
	GoalID        string  `json:"goal_id"`
	Title         string  `json:"title"`
	Unit          string  `json:"unit"`
	Target        float64 `json:"target"`
	Total         float64 `json:"total"`
	Percent       float64 `json:"percent"`
	Remaining     float64 `json:"remaining"`
	Complete      bool    `json:"complete"`
	Contributions int     `json:"contributions"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	PayloadJSON string `json:"payload_json"`
}
