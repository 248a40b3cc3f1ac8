package staging

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindValue   Kind = "value"
	KindMeasure Kind = "measure"
	KindGoal    Kind = "goal"
	KindAction  Kind = "action"
)

// Kinds lists entity kinds in dependency order.
var Kinds = []Kind{KindValue, KindMeasure, KindGoal, KindAction}

// ParseKind accepts singular or plural kind names.
func ParseKind(s string) (Kind, error) {
	k := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	switch Kind(k) {
	case KindValue, KindMeasure, KindGoal, KindAction:
		return Kind(k), nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

func (k Kind) prefix() string {
	return string(k[0])
}

type Status string

const (
	StatusNeedsResolution Status = "needs_resolution"
	StatusUserChoice      Status = "user_choice"
	StatusResolved        Status = "resolved"
)

type ValueLevel string

const (
	LevelGeneral      ValueLevel = "general"
	LevelMajor        ValueLevel = "major"
	LevelHighestOrder ValueLevel = "highest_order"
	LevelLifeArea     ValueLevel = "life_area"
)

// ParseLevel accepts the level names with spaces, dashes, underscores, or camel case.
func ParseLevel(s string) (ValueLevel, error) {
	compact := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch compact {
	case "", "general":
		return LevelGeneral, nil
	case "major":
		return LevelMajor, nil
	case "highestorder":
		return LevelHighestOrder, nil
	case "lifearea":
		return LevelLifeArea, nil
	}
	return "", fmt.Errorf("unknown value level %q", s)
}

type MeasureType string

const (
	MeasureTime     MeasureType = "time"
	MeasureCount    MeasureType = "count"
	MeasureDistance MeasureType = "distance"
	MeasureMass     MeasureType = "mass"
)

type StagedValue struct {
	LocalID           string     `json:"local_id"`
	Title             string     `json:"title" validate:"required"`
	Level             ValueLevel `json:"level" validate:"oneof=general major highest_order life_area"`
	Priority          int        `json:"priority" validate:"min=1,max=100"`
	Description       string     `json:"description,omitempty"`
	LifeDomain        string     `json:"life_domain,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	AlignmentGuidance string     `json:"alignment_guidance,omitempty"`
	Status            Status     `json:"status"`
	OriginalInput     string     `json:"original_input"`
	Row               int        `json:"row,omitempty"`
}

type StagedMeasure struct {
	LocalID       string      `json:"local_id"`
	Unit          string      `json:"unit" validate:"required"`
	MeasureType   MeasureType `json:"measure_type" validate:"required"`
	Description   string      `json:"description,omitempty"`
	Status        Status      `json:"status"`
	OriginalInput string      `json:"original_input"`
	Row           int         `json:"row,omitempty"`
}

type StagedGoal struct {
	LocalID       string      `json:"local_id"`
	Title         string      `json:"title" validate:"required"`
	TargetValue   float64     `json:"target_value" validate:"gt=0,finite"`
	Measure       Reference   `json:"measure"`
	Values        []Reference `json:"values,omitempty"`
	StartDate     *time.Time  `json:"start_date,omitempty"`
	TargetDate    *time.Time  `json:"target_date,omitempty"`
	ActionPlan    string      `json:"action_plan,omitempty"`
	Status        Status      `json:"status"`
	OriginalInput string      `json:"original_input"`
	Row           int         `json:"row,omitempty"`
}

type Measurement struct {
	Measure Reference `json:"measure"`
	Value   float64   `json:"value" validate:"gt=0,finite"`
}

type StagedAction struct {
	LocalID         string        `json:"local_id"`
	Title           string        `json:"title" validate:"required"`
	OccurredAt      time.Time     `json:"occurred_at" validate:"required"`
	DurationMinutes *float64      `json:"duration_minutes,omitempty" validate:"omitempty,gte=0,finite"`
	Measurements    []Measurement `json:"measurements,omitempty" validate:"dive"`
	Goals           []Reference   `json:"goals,omitempty"`
	Status          Status        `json:"status"`
	OriginalInput   string        `json:"original_input"`
	Row             int           `json:"row,omitempty"`
}

// RefPath addresses one reference field inside a staged entity.
// Field is measure, values, measurements, or goals; Index is ignored for measure.
type RefPath struct {
	Field string `json:"field" enum:"measure,values,measurements,goals"`
	Index int    `json:"index"`
}

func (p RefPath) String() string {
	if p.Field == "measure" {
		return p.Field
	}
	return fmt.Sprintf("%s[%d]", p.Field, p.Index)
}

// RefSlot is a live pointer to a reference plus the kind it must resolve to.
type RefSlot struct {
	Path   RefPath
	Target Kind
	Ref    *Reference
}

func (g *StagedGoal) Slots() []RefSlot {
	slots := []RefSlot{{Path: RefPath{Field: "measure"}, Target: KindMeasure, Ref: &g.Measure}}
	for i := range g.Values {
		slots = append(slots, RefSlot{Path: RefPath{Field: "values", Index: i}, Target: KindValue, Ref: &g.Values[i]})
	}
	return slots
}

func (a *StagedAction) Slots() []RefSlot {
	var slots []RefSlot
	for i := range a.Measurements {
		slots = append(slots, RefSlot{Path: RefPath{Field: "measurements", Index: i}, Target: KindMeasure, Ref: &a.Measurements[i].Measure})
	}
	for i := range a.Goals {
		slots = append(slots, RefSlot{Path: RefPath{Field: "goals", Index: i}, Target: KindGoal, Ref: &a.Goals[i]})
	}
	return slots
}

// DeriveStatus computes an entity status from its references.
func DeriveStatus(slots []RefSlot) Status {
	status := StatusResolved
	for _, s := range slots {
		if s.Ref.IsResolved() {
			continue
		}
		if len(s.Ref.Suggestions) == 0 {
			return StatusNeedsResolution
		}
		status = StatusUserChoice
	}
	return status
}
