package resolve

import (
	"context"
	"sort"

	"goalline/internal/staging"
)

const (
	DefaultThreshold      = 0.3
	DefaultMaxSuggestions = 5
)

// Candidate is a record a reference may point at, keyed by its natural key
// (value title, measure unit, goal title).
type Candidate struct {
	ID  string
	Key string
}

// Pools holds candidates per kind. Order is first-seen order.
type Pools map[staging.Kind][]Candidate

// StagedPools builds candidate pools from the entities staged in a session.
func StagedPools(s *staging.Session) Pools {
	p := Pools{}
	for _, v := range s.Values {
		p[staging.KindValue] = append(p[staging.KindValue], Candidate{ID: v.LocalID, Key: v.Title})
	}
	for _, m := range s.Measures {
		p[staging.KindMeasure] = append(p[staging.KindMeasure], Candidate{ID: m.LocalID, Key: m.Unit})
	}
	for _, g := range s.Goals {
		p[staging.KindGoal] = append(p[staging.KindGoal], Candidate{ID: g.LocalID, Key: g.Title})
	}
	return p
}

type Resolver struct {
	Scorer         Scorer
	Threshold      float64
	MaxSuggestions int
}

func New(scorer Scorer, threshold float64, maxSuggestions int) *Resolver {
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if maxSuggestions <= 0 {
		maxSuggestions = DefaultMaxSuggestions
	}
	return &Resolver{Scorer: scorer, Threshold: threshold, MaxSuggestions: maxSuggestions}
}

// Resolve runs exact match, then fuzzy suggestion, against existing then staged
// candidates. Fuzzy matches never resolve a reference on their own. A reference
// that already points at a live candidate is returned unchanged.
func (r *Resolver) Resolve(ref staging.Reference, existing, staged []Candidate) staging.Reference {
	switch ref.State {
	case staging.RefExisting:
		if hasID(existing, ref.ID) {
			return ref
		}
	case staging.RefStaged:
		if hasID(staged, ref.ID) {
			return ref
		}
	case staging.RefCreateNew:
		if m, ok := r.exact(ref.Raw, existing, staged); ok {
			return m
		}
		return ref
	}
	if m, ok := r.exact(ref.Raw, existing, staged); ok {
		return m
	}
	out := staging.Unresolved(ref.Raw)
	out.Suggestions = r.Suggest(ref.Raw, existing, staged)
	return out
}

func (r *Resolver) exact(raw string, existing, staged []Candidate) (staging.Reference, bool) {
	key := staging.NormalizeKey(raw)
	if key == "" {
		return staging.Reference{}, false
	}
	if id, n := firstExact(existing, key); n > 0 {
		ref := staging.Existing(id, raw, 1)
		ref.ExactMatches = n
		return ref, true
	}
	if id, n := firstExact(staged, key); n > 0 {
		ref := staging.Staged(id, raw, 1)
		ref.ExactMatches = n
		return ref, true
	}
	return staging.Reference{}, false
}

// Suggest scores every candidate and keeps the top MaxSuggestions above Threshold,
// highest first. Ties keep pool order, existing before staged.
func (r *Resolver) Suggest(raw string, existing, staged []Candidate) []staging.Suggestion {
	if staging.NormalizeKey(raw) == "" {
		return nil
	}
	var out []staging.Suggestion
	add := func(pool staging.RefState, cands []Candidate) {
		for _, c := range cands {
			score := r.Scorer.Score(raw, c.Key)
			if score > r.Threshold {
				out = append(out, staging.Suggestion{CandidateID: c.ID, Title: c.Key, Score: score, Pool: pool})
			}
		}
	}
	add(staging.RefExisting, existing)
	add(staging.RefStaged, staged)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > r.MaxSuggestions {
		out = out[:r.MaxSuggestions]
	}
	return out
}

func firstExact(cands []Candidate, key string) (string, int) {
	id, n := "", 0
	for _, c := range cands {
		if staging.NormalizeKey(c.Key) == key {
			if n == 0 {
				id = c.ID
			}
			n++
		}
	}
	return id, n
}

func hasID(cands []Candidate, id string) bool {
	for _, c := range cands {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Summary counts reference outcomes of one session pass.
type Summary struct {
	Resolved   int `json:"resolved"`
	Suggested  int `json:"suggested"`
	Unresolved int `json:"unresolved"`
	Changed    int `json:"changed"`
}

// ResolveSession re-resolves every goal and action reference in s. Each entity's
// references are computed first and then written together, so cancellation
// leaves every entity either fully updated or untouched.
func (r *Resolver) ResolveSession(ctx context.Context, s *staging.Session, existing Pools) (Summary, error) {
	staged := StagedPools(s)
	var sum Summary
	apply := func(slots []staging.RefSlot) {
		next := make([]staging.Reference, len(slots))
		for i, slot := range slots {
			next[i] = r.Resolve(*slot.Ref, existing[slot.Target], staged[slot.Target])
		}
		for i, slot := range slots {
			if !sameReference(*slot.Ref, next[i]) {
				sum.Changed++
			}
			*slot.Ref = next[i]
			switch {
			case next[i].IsResolved():
				sum.Resolved++
			case len(next[i].Suggestions) > 0:
				sum.Suggested++
			default:
				sum.Unresolved++
			}
		}
	}
	for i := range s.Goals {
		if err := ctx.Err(); err != nil {
			s.Refresh()
			return sum, err
		}
		apply(s.Goals[i].Slots())
		s.Goals[i].Status = staging.DeriveStatus(s.Goals[i].Slots())
	}
	for i := range s.Actions {
		if err := ctx.Err(); err != nil {
			s.Refresh()
			return sum, err
		}
		apply(s.Actions[i].Slots())
		s.Actions[i].Status = staging.DeriveStatus(s.Actions[i].Slots())
	}
	return sum, nil
}

func sameReference(a, b staging.Reference) bool {
	if a.State != b.State || a.ID != b.ID || a.Raw != b.Raw || a.ExactMatches != b.ExactMatches || len(a.Suggestions) != len(b.Suggestions) {
		return false
	}
	for i := range a.Suggestions {
		if a.Suggestions[i] != b.Suggestions[i] {
			return false
		}
	}
	return true
}
