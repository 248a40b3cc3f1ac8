// Package parse turns pasted or file-based rows into staged entities.
//
// Rows are pipe-delimited with a fixed column order per kind. A row without a
// pipe is a simple list entry holding only the first column. Blank rows and rows
// starting with # are skipped, and a leading header row is recognized by its
// first cell. A row that fails is reported and the rest keep parsing.
package parse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"goalline/internal/staging"
)

// ParseError describes one rejected row.
type ParseError struct {
	Kind   staging.Kind `json:"kind"`
	Row    int          `json:"row"`
	Reason string       `json:"reason"`
	Input  string       `json:"input"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Kind, e.Row, e.Reason)
}

type Result[T any] struct {
	Entities []T          `json:"entities"`
	Errors   []ParseError `json:"errors"`
}

// Context carries what a parser needs beyond the text itself.
type Context struct {
	// DefaultPriority applies to values without a priority column.
	DefaultPriority int
	// Now dates actions that leave the date column empty. Zero makes the date required.
	Now time.Time
}

const defaultPriority = 50

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02",
}

type row struct {
	n     int
	raw   string
	cells []string
}

func (r row) cell(i int) string {
	if i < len(r.cells) {
		return r.cells[i]
	}
	return ""
}

func rows(text, headerCell string) []row {
	var out []row
	headerChecked := false
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cells := strings.Split(line, "|")
		for j := range cells {
			cells[j] = strings.TrimSpace(cells[j])
		}
		if !headerChecked {
			headerChecked = true
			if strings.EqualFold(cells[0], headerCell) {
				continue
			}
		}
		out = append(out, row{n: i + 1, raw: line, cells: cells})
	}
	return out
}

type rowErrors struct {
	kind staging.Kind
	row  row
	errs []ParseError
}

func (e *rowErrors) add(format string, args ...any) {
	e.errs = append(e.errs, ParseError{Kind: e.kind, Row: e.row.n, Reason: fmt.Sprintf(format, args...), Input: e.row.raw})
}

// Values parses "Title | Level | Priority | Description | LifeDomain | Notes | AlignmentGuidance".
func Values(text string, pc Context) Result[staging.StagedValue] {
	var res Result[staging.StagedValue]
	for _, r := range rows(text, "title") {
		errs := rowErrors{kind: staging.KindValue, row: r}
		v := staging.StagedValue{
			Title:             r.cell(0),
			Description:       r.cell(3),
			LifeDomain:        r.cell(4),
			Notes:             r.cell(5),
			AlignmentGuidance: r.cell(6),
			OriginalInput:     r.raw,
			Row:               r.n,
		}
		if v.Title == "" {
			errs.add("title is required")
		}
		level, err := staging.ParseLevel(r.cell(1))
		if err != nil {
			errs.add("%v", err)
		}
		v.Level = level
		v.Priority = pc.priority()
		if p := r.cell(2); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				errs.add("priority %q is not a whole number", p)
			}
			v.Priority = n
		}
		if v.LifeDomain == "" {
			v.LifeDomain = "General"
		}
		if len(errs.errs) > 0 {
			res.Errors = append(res.Errors, errs.errs...)
			continue
		}
		res.Entities = append(res.Entities, v)
	}
	return res
}

// Measures parses "Unit | Type | Description". An empty type is inferred from the unit.
func Measures(text string, _ Context) Result[staging.StagedMeasure] {
	var res Result[staging.StagedMeasure]
	for _, r := range rows(text, "unit") {
		errs := rowErrors{kind: staging.KindMeasure, row: r}
		m := staging.StagedMeasure{Unit: r.cell(0), Description: r.cell(2), OriginalInput: r.raw, Row: r.n}
		if m.Unit == "" {
			errs.add("unit is required")
		}
		if t := r.cell(1); t != "" {
			mt, err := ParseMeasureType(t)
			if err != nil {
				errs.add("%v", err)
			}
			m.MeasureType = mt
		} else {
			m.MeasureType = InferMeasureType(m.Unit)
		}
		if len(errs.errs) > 0 {
			res.Errors = append(res.Errors, errs.errs...)
			continue
		}
		res.Entities = append(res.Entities, m)
	}
	return res
}

// Goals parses "Title | TargetValue | Unit | Value1, Value2 | StartDate | TargetDate | ActionPlan".
func Goals(text string, _ Context) Result[staging.StagedGoal] {
	var res Result[staging.StagedGoal]
	for _, r := range rows(text, "title") {
		errs := rowErrors{kind: staging.KindGoal, row: r}
		g := staging.StagedGoal{Title: r.cell(0), ActionPlan: r.cell(6), OriginalInput: r.raw, Row: r.n}
		if g.Title == "" {
			errs.add("title is required")
		}
		switch target := r.cell(1); target {
		case "":
			errs.add("target value is required")
		default:
			f, err := parseNumber(target)
			if err != nil {
				errs.add("target value %q is not a number", target)
			}
			g.TargetValue = f
		}
		unit := r.cell(2)
		if unit == "" {
			errs.add("measure unit is required")
		}
		g.Measure = staging.Unresolved(unit)
		for _, name := range splitList(r.cell(3)) {
			g.Values = append(g.Values, staging.Unresolved(name))
		}
		if d := r.cell(4); d != "" {
			t, err := ParseDate(d)
			if err != nil {
				errs.add("start date: %v", err)
			}
			g.StartDate = &t
		}
		if d := r.cell(5); d != "" {
			t, err := ParseDate(d)
			if err != nil {
				errs.add("target date: %v", err)
			}
			g.TargetDate = &t
		}
		if len(errs.errs) > 0 {
			res.Errors = append(res.Errors, errs.errs...)
			continue
		}
		res.Entities = append(res.Entities, g)
	}
	return res
}

// Actions parses "Title | Date | Unit:Value, Unit:Value | GoalTitle, GoalTitle | DurationMinutes".
func Actions(text string, pc Context) Result[staging.StagedAction] {
	var res Result[staging.StagedAction]
	for _, r := range rows(text, "title") {
		errs := rowErrors{kind: staging.KindAction, row: r}
		a := staging.StagedAction{Title: r.cell(0), OriginalInput: r.raw, Row: r.n}
		if a.Title == "" {
			errs.add("title is required")
		}
		if d := r.cell(1); d != "" {
			t, err := ParseDate(d)
			if err != nil {
				errs.add("date: %v", err)
			}
			a.OccurredAt = t
		} else if !pc.Now.IsZero() {
			a.OccurredAt = pc.Now.UTC()
		} else {
			errs.add("date is required")
		}
		for _, item := range splitList(r.cell(2)) {
			idx := strings.LastIndex(item, ":")
			if idx <= 0 || idx == len(item)-1 {
				errs.add("measurement %q must look like unit:value", item)
				continue
			}
			unit, amount := strings.TrimSpace(item[:idx]), strings.TrimSpace(item[idx+1:])
			f, err := parseNumber(amount)
			if err != nil {
				errs.add("measurement %q value is not a number", item)
				continue
			}
			a.Measurements = append(a.Measurements, staging.Measurement{Measure: staging.Unresolved(unit), Value: f})
		}
		for _, title := range splitList(r.cell(3)) {
			a.Goals = append(a.Goals, staging.Unresolved(title))
		}
		if d := r.cell(4); d != "" {
			f, err := parseNumber(d)
			if err != nil {
				errs.add("duration %q is not a number", d)
			}
			a.DurationMinutes = &f
		}
		if len(errs.errs) > 0 {
			res.Errors = append(res.Errors, errs.errs...)
			continue
		}
		res.Entities = append(res.Entities, a)
	}
	return res
}

// ParseDate accepts RFC 3339 timestamps and plain dates. Results are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date (use YYYY-MM-DD)", s)
}

// ParseMeasureType accepts any category. The well known ones are lowercased.
func ParseMeasureType(s string) (staging.MeasureType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("measure type is empty")
	}
	switch mt := staging.MeasureType(strings.ToLower(s)); mt {
	case staging.MeasureTime, staging.MeasureCount, staging.MeasureDistance, staging.MeasureMass:
		return mt, nil
	}
	return staging.MeasureType(s), nil
}

// parseNumber rejects Inf and NaN, which ParseFloat accepts.
func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%q is not finite", s)
	}
	return f, nil
}

var unitTypes = map[string]staging.MeasureType{
	"s": staging.MeasureTime, "sec": staging.MeasureTime, "secs": staging.MeasureTime, "second": staging.MeasureTime, "seconds": staging.MeasureTime,
	"min": staging.MeasureTime, "mins": staging.MeasureTime, "minute": staging.MeasureTime, "minutes": staging.MeasureTime,
	"h": staging.MeasureTime, "hr": staging.MeasureTime, "hrs": staging.MeasureTime, "hour": staging.MeasureTime, "hours": staging.MeasureTime,
	"day": staging.MeasureTime, "days": staging.MeasureTime,
	"m": staging.MeasureDistance, "meter": staging.MeasureDistance, "meters": staging.MeasureDistance,
	"km": staging.MeasureDistance, "kilometer": staging.MeasureDistance, "kilometers": staging.MeasureDistance,
	"mi": staging.MeasureDistance, "mile": staging.MeasureDistance, "miles": staging.MeasureDistance,
	"kg": staging.MeasureMass, "kgs": staging.MeasureMass, "lb": staging.MeasureMass, "lbs": staging.MeasureMass, "pound": staging.MeasureMass, "pounds": staging.MeasureMass,
}

// Stems are matched as substrings once no whole word names a known unit.
var unitStems = []struct {
	stem string
	mt   staging.MeasureType
}{
	{"min", staging.MeasureTime},
	{"hour", staging.MeasureTime},
	{"sec", staging.MeasureTime},
	{"kilomet", staging.MeasureDistance},
	{"meter", staging.MeasureDistance},
	{"metre", staging.MeasureDistance},
	{"mile", staging.MeasureDistance},
	{"kilogram", staging.MeasureMass},
	{"pound", staging.MeasureMass},
}

// InferMeasureType maps well known units to a type; anything else counts occurrences.
func InferMeasureType(unit string) staging.MeasureType {
	key := staging.NormalizeKey(unit)
	if mt, ok := unitTypes[key]; ok {
		return mt
	}
	words := strings.FieldsFunc(key, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if mt, ok := unitTypes[w]; ok {
			return mt
		}
	}
	for _, s := range unitStems {
		if strings.Contains(key, s.stem) {
			return s.mt
		}
	}
	return staging.MeasureCount
}

func (pc Context) priority() int {
	if pc.DefaultPriority > 0 {
		return pc.DefaultPriority
	}
	return defaultPriority
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
