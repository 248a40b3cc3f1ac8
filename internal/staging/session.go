package staging

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

// SchemaVersion is the draft file format version written by this build.
const SchemaVersion = 1

var ErrUnknownEntity = errors.New("unknown staged entity")

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionDraft      SessionStatus = "draft"
	SessionCompleted  SessionStatus = "completed"
)

type Step int

const (
	StepValues Step = iota + 1
	StepMeasures
	StepGoals
	StepActions
	StepReview
)

func (s Step) Valid() bool { return s >= StepValues && s <= StepReview }

type Issue struct {
	Kind    Kind   `json:"kind"`
	LocalID string `json:"local_id"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("%s %s: %s", i.Kind, i.LocalID, i.Message)
	}
	return fmt.Sprintf("%s %s %s: %s", i.Kind, i.LocalID, i.Field, i.Message)
}

// ValidationState is the outcome of the last validation pass. Errors block commit.
type ValidationState struct {
	Errors    []Issue    `json:"errors"`
	Warnings  []Issue    `json:"warnings"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}

func (v ValidationState) CanCommit() bool { return len(v.Errors) == 0 }

// CommitRecord maps session local ids to persisted ids after a successful commit.
type CommitRecord struct {
	CommittedAt time.Time         `json:"committed_at"`
	IDs         map[string]string `json:"ids"`
	// CreatedFromText maps "kind:normalized raw" to records created for create_new references.
	CreatedFromText map[string]string `json:"created_from_text,omitempty"`
}

type Session struct {
	SchemaVersion int             `json:"schema_version"`
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Step          Step            `json:"step"`
	Status        SessionStatus   `json:"status"`
	Dirty         bool            `json:"dirty"`
	Values        []StagedValue   `json:"values"`
	Measures      []StagedMeasure `json:"measures"`
	Goals         []StagedGoal    `json:"goals"`
	Actions       []StagedAction  `json:"actions"`
	Validation    ValidationState `json:"validation"`
	Committed     *CommitRecord   `json:"committed,omitempty"`
	Seq           map[Kind]int    `json:"seq"`
}

func NewSession(now time.Time) *Session {
	now = now.UTC()
	return &Session{
		SchemaVersion: SchemaVersion,
		ID:            ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Step:          StepValues,
		Status:        SessionInProgress,
		Seq:           map[Kind]int{},
	}
}

func (s *Session) nextID(k Kind) string {
	if s.Seq == nil {
		s.Seq = map[Kind]int{}
	}
	s.Seq[k]++
	return k.prefix() + strconv.Itoa(s.Seq[k])
}

// MarkDirty records a mutation; the last validation result no longer applies.
func (s *Session) MarkDirty(now time.Time) {
	s.Dirty = true
	s.UpdatedAt = now.UTC()
	s.Validation = ValidationState{}
	if s.Status == SessionDraft {
		s.Status = SessionInProgress
	}
}

// AddValues assigns local ids and stages the values, returning the ids.
func (s *Session) AddValues(items []StagedValue, now time.Time) []string {
	ids := make([]string, 0, len(items))
	for _, v := range items {
		v.LocalID = s.nextID(KindValue)
		v.Status = StatusResolved
		s.Values = append(s.Values, v)
		ids = append(ids, v.LocalID)
	}
	s.MarkDirty(now)
	return ids
}

func (s *Session) AddMeasures(items []StagedMeasure, now time.Time) []string {
	ids := make([]string, 0, len(items))
	for _, m := range items {
		m.LocalID = s.nextID(KindMeasure)
		m.Status = StatusResolved
		s.Measures = append(s.Measures, m)
		ids = append(ids, m.LocalID)
	}
	s.MarkDirty(now)
	return ids
}

func (s *Session) AddGoals(items []StagedGoal, now time.Time) []string {
	ids := make([]string, 0, len(items))
	for _, g := range items {
		g.LocalID = s.nextID(KindGoal)
		g.Status = DeriveStatus(g.Slots())
		s.Goals = append(s.Goals, g)
		ids = append(ids, g.LocalID)
	}
	s.MarkDirty(now)
	return ids
}

func (s *Session) AddActions(items []StagedAction, now time.Time) []string {
	ids := make([]string, 0, len(items))
	for _, a := range items {
		a.LocalID = s.nextID(KindAction)
		a.Status = DeriveStatus(a.Slots())
		s.Actions = append(s.Actions, a)
		ids = append(ids, a.LocalID)
	}
	s.MarkDirty(now)
	return ids
}

// Remove deletes a staged entity. References to it fall back to unresolved.
func (s *Session) Remove(k Kind, localID string, now time.Time) error {
	found := false
	switch k {
	case KindValue:
		for i := range s.Values {
			if s.Values[i].LocalID == localID {
				s.Values = append(s.Values[:i], s.Values[i+1:]...)
				found = true
				break
			}
		}
	case KindMeasure:
		for i := range s.Measures {
			if s.Measures[i].LocalID == localID {
				s.Measures = append(s.Measures[:i], s.Measures[i+1:]...)
				found = true
				break
			}
		}
	case KindGoal:
		for i := range s.Goals {
			if s.Goals[i].LocalID == localID {
				s.Goals = append(s.Goals[:i], s.Goals[i+1:]...)
				found = true
				break
			}
		}
	case KindAction:
		for i := range s.Actions {
			if s.Actions[i].LocalID == localID {
				s.Actions = append(s.Actions[:i], s.Actions[i+1:]...)
				found = true
				break
			}
		}
	}
	if !found {
		return fmt.Errorf("%w: %s %s", ErrUnknownEntity, k, localID)
	}
	s.EachSlot(func(_ Kind, _ string, slot RefSlot) {
		if slot.Target == k && slot.Ref.State == RefStaged && slot.Ref.ID == localID {
			*slot.Ref = Unresolved(slot.Ref.Raw)
		}
	})
	s.Refresh()
	s.MarkDirty(now)
	return nil
}

// Slots returns the reference slots of one goal or action.
func (s *Session) Slots(k Kind, localID string) ([]RefSlot, error) {
	switch k {
	case KindGoal:
		if g := s.Goal(localID); g != nil {
			return g.Slots(), nil
		}
	case KindAction:
		if a := s.Action(localID); a != nil {
			return a.Slots(), nil
		}
	case KindValue, KindMeasure:
		if s.Has(k, localID) {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnknownEntity, k, localID)
}

// SetReference replaces the reference at path and refreshes the owner's status.
func (s *Session) SetReference(k Kind, localID string, path RefPath, ref Reference, now time.Time) error {
	if err := ref.Check(); err != nil {
		return err
	}
	slots, err := s.Slots(k, localID)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.Path.Field != path.Field || (path.Field != "measure" && slot.Path.Index != path.Index) {
			continue
		}
		if ref.State == RefStaged && !s.Has(slot.Target, ref.ID) {
			return fmt.Errorf("%w: %s %s", ErrUnknownEntity, slot.Target, ref.ID)
		}
		*slot.Ref = ref
		s.Refresh()
		s.MarkDirty(now)
		return nil
	}
	return fmt.Errorf("%s %s has no reference %s", k, localID, path)
}

// Reference returns a copy of the reference at path.
func (s *Session) Reference(k Kind, localID string, path RefPath) (Reference, error) {
	slots, err := s.Slots(k, localID)
	if err != nil {
		return Reference{}, err
	}
	for _, slot := range slots {
		if slot.Path.Field == path.Field && (path.Field == "measure" || slot.Path.Index == path.Index) {
			return *slot.Ref, nil
		}
	}
	return Reference{}, fmt.Errorf("%s %s has no reference %s", k, localID, path)
}

// EachSlot visits every reference slot of every goal and action.
func (s *Session) EachSlot(fn func(owner Kind, localID string, slot RefSlot)) {
	for i := range s.Goals {
		for _, slot := range s.Goals[i].Slots() {
			fn(KindGoal, s.Goals[i].LocalID, slot)
		}
	}
	for i := range s.Actions {
		for _, slot := range s.Actions[i].Slots() {
			fn(KindAction, s.Actions[i].LocalID, slot)
		}
	}
}

// Refresh recomputes entity statuses from their references.
func (s *Session) Refresh() {
	for i := range s.Values {
		s.Values[i].Status = StatusResolved
	}
	for i := range s.Measures {
		s.Measures[i].Status = StatusResolved
	}
	for i := range s.Goals {
		s.Goals[i].Status = DeriveStatus(s.Goals[i].Slots())
	}
	for i := range s.Actions {
		s.Actions[i].Status = DeriveStatus(s.Actions[i].Slots())
	}
}

func (s *Session) Value(localID string) *StagedValue {
	for i := range s.Values {
		if s.Values[i].LocalID == localID {
			return &s.Values[i]
		}
	}
	return nil
}

func (s *Session) Measure(localID string) *StagedMeasure {
	for i := range s.Measures {
		if s.Measures[i].LocalID == localID {
			return &s.Measures[i]
		}
	}
	return nil
}

func (s *Session) Goal(localID string) *StagedGoal {
	for i := range s.Goals {
		if s.Goals[i].LocalID == localID {
			return &s.Goals[i]
		}
	}
	return nil
}

func (s *Session) Action(localID string) *StagedAction {
	for i := range s.Actions {
		if s.Actions[i].LocalID == localID {
			return &s.Actions[i]
		}
	}
	return nil
}

// Has reports whether a staged entity of kind k with localID exists.
func (s *Session) Has(k Kind, localID string) bool {
	switch k {
	case KindValue:
		return s.Value(localID) != nil
	case KindMeasure:
		return s.Measure(localID) != nil
	case KindGoal:
		return s.Goal(localID) != nil
	case KindAction:
		return s.Action(localID) != nil
	}
	return false
}

// Count returns the number of staged entities of kind k.
func (s *Session) Count(k Kind) int {
	switch k {
	case KindValue:
		return len(s.Values)
	case KindMeasure:
		return len(s.Measures)
	case KindGoal:
		return len(s.Goals)
	case KindAction:
		return len(s.Actions)
	}
	return 0
}

func (s *Session) Empty() bool {
	return len(s.Values)+len(s.Measures)+len(s.Goals)+len(s.Actions) == 0
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("clone session: %v", err))
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("clone session: %v", err))
	}
	return &out
}
