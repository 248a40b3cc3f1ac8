// Package validate checks a staged session before commit. It never mutates the session.
package validate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"goalline/internal/staging"
)

var structs = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsInf(f, 0) && !math.IsNaN(f)
	})
	return v
}

type Options struct {
	// LowConfidence flags user-picked suggestions scored below it.
	LowConfidence float64
	Now           time.Time
}

// Session runs structural and reference checks and returns the resulting state.
func Session(s *staging.Session, opts Options) staging.ValidationState {
	c := checker{s: s, opts: opts}
	for i := range s.Values {
		v := &s.Values[i]
		c.structural(staging.KindValue, v.LocalID, v)
	}
	for i := range s.Measures {
		m := &s.Measures[i]
		c.structural(staging.KindMeasure, m.LocalID, m)
	}
	for i := range s.Goals {
		g := &s.Goals[i]
		c.structural(staging.KindGoal, g.LocalID, g)
		if g.StartDate != nil && g.TargetDate != nil && !g.StartDate.Before(*g.TargetDate) {
			c.errorf(staging.KindGoal, g.LocalID, "target_date", "target date %s must be after start date %s", g.TargetDate.Format("2006-01-02"), g.StartDate.Format("2006-01-02"))
		}
		c.references(staging.KindGoal, g.LocalID, g.Slots())
	}
	for i := range s.Actions {
		a := &s.Actions[i]
		c.structural(staging.KindAction, a.LocalID, a)
		c.references(staging.KindAction, a.LocalID, a.Slots())
	}
	c.duplicates()

	state := staging.ValidationState{Errors: c.errs, Warnings: c.warns}
	if state.Errors == nil {
		state.Errors = []staging.Issue{}
	}
	if state.Warnings == nil {
		state.Warnings = []staging.Issue{}
	}
	if !opts.Now.IsZero() {
		at := opts.Now.UTC()
		state.CheckedAt = &at
	}
	return state
}

type checker struct {
	s     *staging.Session
	opts  Options
	errs  []staging.Issue
	warns []staging.Issue
}

func (c *checker) errorf(k staging.Kind, id, field, format string, args ...any) {
	c.errs = append(c.errs, staging.Issue{Kind: k, LocalID: id, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) warnf(k staging.Kind, id, field, format string, args ...any) {
	c.warns = append(c.warns, staging.Issue{Kind: k, LocalID: id, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) structural(k staging.Kind, id string, entity any) {
	err := structs.Struct(entity)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		c.errorf(k, id, "", "%v", err)
		return
	}
	for _, fe := range fieldErrs {
		c.errorf(k, id, fieldPath(fe), "%s", describe(fe))
	}
}

// fieldPath drops the struct name prefix, e.g. StagedAction.measurements[0].value.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of %s, got %v", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s, got %v", fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("must be greater than %s, got %v", fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("must be %s or more, got %v", fe.Param(), fe.Value())
	case "finite":
		return fmt.Sprintf("must be a finite number, got %v", fe.Value())
	}
	return fmt.Sprintf("failed %s check", fe.Tag())
}

func (c *checker) references(owner staging.Kind, id string, slots []staging.RefSlot) {
	for _, slot := range slots {
		ref := slot.Ref
		field := slot.Path.String()
		switch ref.State {
		case staging.RefUnresolved:
			if ref.Raw == "" {
				c.errorf(owner, id, field, "%s reference is empty", slot.Target)
				continue
			}
			if n := len(ref.Suggestions); n > 0 {
				c.errorf(owner, id, field, "%s %q is unresolved; pick one of %d suggestions or create it", slot.Target, ref.Raw, n)
				c.warnf(owner, id, field, "%d suggestions pending for %q, best %q (%.2f)", n, ref.Raw, ref.Suggestions[0].Title, ref.Suggestions[0].Score)
				continue
			}
			c.errorf(owner, id, field, "%s %q is unresolved", slot.Target, ref.Raw)
		case staging.RefStaged:
			if !c.s.Has(slot.Target, ref.ID) {
				c.errorf(owner, id, field, "%s %q points at staged %s that no longer exists", slot.Target, ref.Raw, ref.ID)
			}
		case staging.RefCreateNew:
			if slot.Target == staging.KindGoal {
				c.errorf(owner, id, field, "goal %q cannot be created from a reference; stage the goal with a target instead", ref.Raw)
			}
		}
		if ref.State == staging.RefExisting || ref.State == staging.RefStaged {
			if ref.Confidence > 0 && ref.Confidence < c.opts.LowConfidence {
				c.warnf(owner, id, field, "%q matched with low confidence (%.2f)", ref.Raw, ref.Confidence)
			}
			if ref.ExactMatches > 1 {
				c.warnf(owner, id, field, "%d records share the name %q; the first one is used", ref.ExactMatches, ref.Raw)
			}
		}
	}
}

func (c *checker) duplicates() {
	seen := map[string]string{}
	check := func(k staging.Kind, id, key string) {
		norm := staging.NormalizeKey(key)
		if norm == "" {
			return
		}
		mapKey := string(k) + ":" + norm
		if first, ok := seen[mapKey]; ok {
			c.warnf(k, id, "", "duplicates staged %s %s (%q)", k, first, key)
			return
		}
		seen[mapKey] = id
	}
	for _, v := range c.s.Values {
		check(staging.KindValue, v.LocalID, v.Title)
	}
	for _, m := range c.s.Measures {
		check(staging.KindMeasure, m.LocalID, m.Unit)
	}
	for _, g := range c.s.Goals {
		check(staging.KindGoal, g.LocalID, g.Title)
	}
}
