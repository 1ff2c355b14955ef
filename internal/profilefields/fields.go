// Package profilefields defines the profile fields clients may sync and
// filters raw input down to them.
package profilefields

import (
	"fmt"
	"maps"
	"slices"
)

// Dependents is the number of dependent groups a profile can carry.
const Dependents = 4

// SelfBirthDate is the customer's own birth date field.
const SelfBirthDate = "self_birth_date"

// Kind classifies a field by how its value is stored.
type Kind int

const (
	KindSelfBirthDate Kind = iota
	KindDependentName
	KindDependentRelationship
	KindDependentBirthDate
)

func (k Kind) String() string {
	switch k {
	case KindSelfBirthDate:
		return "self_birth_date"
	case KindDependentName:
		return "dependent_name"
	case KindDependentRelationship:
		return "dependent_relationship"
	case KindDependentBirthDate:
		return "dependent_birth_date"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsBirthDate reports whether values of this kind are calendar dates.
func (k Kind) IsBirthDate() bool {
	return k == KindSelfBirthDate || k == KindDependentBirthDate
}

// Field describes one whitelisted input field.
type Field struct {
	Name string
	Kind Kind
	// Dependent is the 1-based dependent group, 0 for the customer's own fields.
	Dependent int
}

// Record maps whitelisted field names to the raw values the caller supplied.
type Record map[string]string

var whitelist = buildWhitelist()

func buildWhitelist() map[string]Field {
	fields := map[string]Field{
		SelfBirthDate: {Name: SelfBirthDate, Kind: KindSelfBirthDate},
	}
	for n := 1; n <= Dependents; n++ {
		for _, f := range []Field{
			{Name: DependentName(n), Kind: KindDependentName, Dependent: n},
			{Name: DependentRelationship(n), Kind: KindDependentRelationship, Dependent: n},
			{Name: DependentBirthDate(n), Kind: KindDependentBirthDate, Dependent: n},
		} {
			fields[f.Name] = f
		}
	}
	return fields
}

// DependentName returns the name field of dependent n.
func DependentName(n int) string { return fmt.Sprintf("dependent_%d_name", n) }

// DependentRelationship returns the relationship field of dependent n.
func DependentRelationship(n int) string { return fmt.Sprintf("dependent_%d_relationship", n) }

// DependentBirthDate returns the birth date field of dependent n.
func DependentBirthDate(n int) string { return fmt.Sprintf("dependent_%d_birth_date", n) }

// Lookup returns the definition of a whitelisted field.
func Lookup(name string) (Field, bool) {
	f, ok := whitelist[name]
	return f, ok
}

// Names returns every whitelisted field name in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(whitelist))
}

// Extract keeps the entries of raw whose keys are whitelisted. Values are
// passed through untouched and absent fields stay absent.
func Extract(raw map[string]string) Record {
	out := make(Record, len(raw))
	for name, value := range raw {
		if _, ok := whitelist[name]; ok {
			out[name] = value
		}
	}
	return out
}

// Fields returns the definitions of the fields present in r, sorted by name.
func (r Record) Fields() []Field {
	fields := make([]Field, 0, len(r))
	for _, name := range slices.Sorted(maps.Keys(r)) {
		fields = append(fields, whitelist[name])
	}
	return fields
}

// BirthDates returns the raw birth date values in r: the customer's own first,
// then the dependents' in group order. With selfOnly set only the customer's
// own date is returned.
func (r Record) BirthDates(selfOnly bool) []string {
	var dates []string
	if v, ok := r[SelfBirthDate]; ok {
		dates = append(dates, v)
	}
	if selfOnly {
		return dates
	}
	for n := 1; n <= Dependents; n++ {
		if v, ok := r[DependentBirthDate(n)]; ok {
			dates = append(dates, v)
		}
	}
	return dates
}
