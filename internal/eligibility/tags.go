package eligibility

import (
	"fmt"
	"slices"
	"strings"
)

// Bracket tags managed on the customer record.
const (
	TagUnder30 = "under30"
	TagAbove30 = "above30"
)

// tagSeparator is how the platform displays tag lists; writes must use it verbatim.
const tagSeparator = ", "

// TagPolicy selects which bracket tags the reconciler manages.
type TagPolicy string

const (
	// TagPolicyUnder30Only adds or removes under30 and never touches above30.
	TagPolicyUnder30Only TagPolicy = "under30_only"
	// TagPolicyExclusive keeps exactly one of under30 and above30.
	TagPolicyExclusive TagPolicy = "exclusive"
)

// ParseTagPolicy validates a configured tag policy name.
func ParseTagPolicy(s string) (TagPolicy, error) {
	switch p := TagPolicy(s); p {
	case TagPolicyUnder30Only, TagPolicyExclusive:
		return p, nil
	default:
		return "", fmt.Errorf("unknown tag policy %q", s)
	}
}

// ParseTags splits the platform's comma separated tag string. Elements are
// trimmed; blanks and repeats are dropped, first occurrence wins.
func ParseTags(s string) []string {
	tags := []string{}
	for raw := range strings.SplitSeq(s, ",") {
		tag := strings.TrimSpace(raw)
		if tag == "" || slices.Contains(tags, tag) {
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}

// JoinTags serializes tags the way the platform expects them back.
func JoinTags(tags []string) string {
	return strings.Join(tags, tagSeparator)
}

// Reconcile returns the tag list after applying the age decision. Bracket tags
// match regardless of case. Tags other than the bracket tags keep their
// order; current is not modified.
func Reconcile(current []string, under bool, policy TagPolicy) []string {
	tags := make([]string, 0, len(current)+1)
	for _, tag := range current {
		if !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}

	if under {
		tags = ensure(tags, TagUnder30)
		if policy == TagPolicyExclusive {
			tags = remove(tags, TagAbove30)
		}
		return tags
	}

	tags = remove(tags, TagUnder30)
	if policy == TagPolicyExclusive {
		tags = ensure(tags, TagAbove30)
	}
	return tags
}

// ensure keeps the first case-insensitive match of tag as written and drops
// any later spellings. tag is appended when no match exists.
func ensure(tags []string, tag string) []string {
	i := slices.IndexFunc(tags, func(t string) bool { return strings.EqualFold(t, tag) })
	if i < 0 {
		return append(tags, tag)
	}
	rest := remove(tags[i+1:], tag)
	return tags[:i+1+len(rest)]
}

// remove drops every spelling of tag, ignoring case.
func remove(tags []string, tag string) []string {
	return slices.DeleteFunc(tags, func(t string) bool { return strings.EqualFold(t, tag) })
}
