package staging

import (
	"fmt"
	"strings"
)

// RefState tags which variant a Reference holds.
type RefState string

const (
	RefExisting   RefState = "existing"
	RefStaged     RefState = "staged"
	RefUnresolved RefState = "unresolved"
	RefCreateNew  RefState = "create_new"
)

// Suggestion is a fuzzy candidate attached to an unresolved reference.
type Suggestion struct {
	CandidateID string   `json:"candidate_id"`
	Title       string   `json:"title"`
	Score       float64  `json:"score"`
	Pool        RefState `json:"pool" enum:"existing,staged"`
}

// Reference points from a staged entity to a value, measure, or goal.
// ID holds a persisted id for RefExisting and a session local id for RefStaged;
// it is empty otherwise. Raw always keeps the text the user typed.
type Reference struct {
	State        RefState     `json:"state" enum:"existing,staged,unresolved,create_new"`
	ID           string       `json:"id,omitempty"`
	Raw          string       `json:"raw"`
	Confidence   float64      `json:"confidence,omitempty"`
	ExactMatches int          `json:"exact_matches,omitempty"`
	Suggestions  []Suggestion `json:"suggestions,omitempty"`
}

func Unresolved(raw string) Reference {
	return Reference{State: RefUnresolved, Raw: strings.TrimSpace(raw)}
}

func Existing(id, raw string, confidence float64) Reference {
	return Reference{State: RefExisting, ID: id, Raw: raw, Confidence: confidence}
}

func Staged(localID, raw string, confidence float64) Reference {
	return Reference{State: RefStaged, ID: localID, Raw: raw, Confidence: confidence}
}

func CreateNew(raw string) Reference {
	return Reference{State: RefCreateNew, Raw: strings.TrimSpace(raw), Confidence: 1}
}

// IsResolved reports whether the reference carries a resolution the committer can act on.
func (r Reference) IsResolved() bool {
	switch r.State {
	case RefExisting, RefStaged, RefCreateNew:
		return true
	}
	return false
}

// Check rejects state/field combinations that cannot occur.
func (r Reference) Check() error {
	switch r.State {
	case RefExisting, RefStaged:
		if r.ID == "" {
			return fmt.Errorf("%s reference %q has no id", r.State, r.Raw)
		}
	case RefUnresolved, RefCreateNew:
		if r.ID != "" {
			return fmt.Errorf("%s reference %q must not carry an id", r.State, r.Raw)
		}
	default:
		return fmt.Errorf("unknown reference state %q", r.State)
	}
	if r.State != RefUnresolved && len(r.Suggestions) > 0 {
		return fmt.Errorf("resolved reference %q must not carry suggestions", r.Raw)
	}
	return nil
}

// Choose resolves the reference to its i-th suggestion.
func (r Reference) Choose(i int) (Reference, error) {
	if r.State != RefUnresolved {
		return r, fmt.Errorf("reference %q is already %s", r.Raw, r.State)
	}
	if i < 0 || i >= len(r.Suggestions) {
		return r, fmt.Errorf("suggestion %d out of range for %q (%d available)", i, r.Raw, len(r.Suggestions))
	}
	s := r.Suggestions[i]
	switch s.Pool {
	case RefExisting:
		return Existing(s.CandidateID, r.Raw, s.Score), nil
	case RefStaged:
		return Staged(s.CandidateID, r.Raw, s.Score), nil
	}
	return r, fmt.Errorf("suggestion %d has unknown pool %q", i, s.Pool)
}

// NormalizeKey is the comparison form of a natural key: trimmed, lowercased, single-spaced.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
