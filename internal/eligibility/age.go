// Package eligibility decides which age bracket a customer falls into and
// reconciles that decision into the customer's tag list.
package eligibility

import (
	"fmt"
	"time"

	"github.com/manmanrai/limerime-vercel-api/internal/platform/timeutil"
)

// Threshold is the default age below which a customer counts as under30.
const Threshold = 30

// AgePolicy selects the reference date ages are computed against.
type AgePolicy string

const (
	// AgePolicyRolling computes age as of today.
	AgePolicyRolling AgePolicy = "rolling"
	// AgePolicyFiscal computes age as of the fiscal cutoff day of the current year.
	AgePolicyFiscal AgePolicy = "fiscal"
)

// ParseAgePolicy validates a configured policy name.
func ParseAgePolicy(s string) (AgePolicy, error) {
	switch p := AgePolicy(s); p {
	case AgePolicyRolling, AgePolicyFiscal:
		return p, nil
	default:
		return "", fmt.Errorf("unknown age policy %q", s)
	}
}

// SubjectPolicy selects whose birth dates feed the age decision.
type SubjectPolicy string

const (
	// SubjectSelf decides on the customer's own birth date only.
	SubjectSelf SubjectPolicy = "self"
	// SubjectHousehold tags the customer under30 when the customer or any
	// dependent is under the threshold.
	SubjectHousehold SubjectPolicy = "household"
)

// ParseSubjectPolicy validates a configured subject policy name.
func ParseSubjectPolicy(s string) (SubjectPolicy, error) {
	switch p := SubjectPolicy(s); p {
	case SubjectSelf, SubjectHousehold:
		return p, nil
	default:
		return "", fmt.Errorf("unknown subject policy %q", s)
	}
}

// Evaluator computes ages and the under-threshold decision under one policy.
// The same Evaluator must back both the tag decision and the stored age so
// the two never disagree.
type Evaluator struct {
	policy      AgePolicy
	cutoffMonth time.Month
	cutoffDay   int
	threshold   int
	clock       timeutil.Clock
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithFiscalCutoff overrides the fiscal cutoff day (April 1 by default).
func WithFiscalCutoff(month time.Month, day int) Option {
	return func(e *Evaluator) {
		e.cutoffMonth = month
		e.cutoffDay = day
	}
}

// WithThreshold overrides the age threshold.
func WithThreshold(years int) Option {
	return func(e *Evaluator) {
		if years > 0 {
			e.threshold = years
		}
	}
}

// WithClock sets the source of "today".
func WithClock(clock timeutil.Clock) Option {
	return func(e *Evaluator) {
		e.clock = clock
	}
}

// NewEvaluator creates an Evaluator for the given policy.
func NewEvaluator(policy AgePolicy, opts ...Option) *Evaluator {
	e := &Evaluator{
		policy:      policy,
		cutoffMonth: time.April,
		cutoffDay:   1,
		threshold:   Threshold,
		clock:       timeutil.SystemClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured age threshold.
func (e *Evaluator) Threshold() int {
	return e.threshold
}

// Policy returns the evaluator's age policy.
func (e *Evaluator) Policy() AgePolicy {
	return e.policy
}

// ReferenceDate is the day ages are measured on: today for the rolling
// policy, the fiscal cutoff of the current year otherwise.
func (e *Evaluator) ReferenceDate() timeutil.Date {
	today := timeutil.DateOf(e.clock())
	if e.policy == AgePolicyFiscal {
		return timeutil.Date{Year: today.Year, Month: e.cutoffMonth, Day: e.cutoffDay}
	}
	return today
}

// Age parses raw as a calendar date and returns the age in whole years on the
// reference date.
func (e *Evaluator) Age(raw string) (int, error) {
	birth, err := timeutil.ParseDate(raw)
	if err != nil {
		return 0, fmt.Errorf("birth date %q: %w", raw, err)
	}
	return AgeAt(birth, e.ReferenceDate()), nil
}

// IsUnder reports whether the birth date is under the threshold. Empty or
// unparsable input is never under.
func (e *Evaluator) IsUnder(raw string) bool {
	age, err := e.Age(raw)
	if err != nil {
		return false
	}
	return age < e.threshold
}

// IsAnyUnder reports whether at least one of the birth dates is under the threshold.
func (e *Evaluator) IsAnyUnder(raws ...string) bool {
	for _, raw := range raws {
		if e.IsUnder(raw) {
			return true
		}
	}
	return false
}

// AgeAt returns the completed years between birth and ref. The year
// difference is reduced by one when the birthday falls after ref's month/day.
func AgeAt(birth, ref timeutil.Date) int {
	age := ref.Year - birth.Year
	if ref.MonthDayBefore(birth) {
		age--
	}
	return age
}
