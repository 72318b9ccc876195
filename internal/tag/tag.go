// Package tag implements hierarchical dot-delimited gameplay tags
// (e.g. "Quest.Event.Item.Acquired") with exact and prefix matching.
package tag

import "strings"

// Tag is a hierarchical identifier. The zero value is the empty tag.
type Tag string

const None Tag = ""

// IsValid reports whether the tag is non-empty.
func (t Tag) IsValid() bool {
	return t != ""
}

// String returns the tag as a plain string.
func (t Tag) String() string {
	return string(t)
}

// Matches reports whether t equals other exactly.
func (t Tag) Matches(other Tag) bool {
	return t == other
}

// MatchesPrefix reports whether t equals parent or is a descendant of it.
// "Quest.Event.Item" matches prefix "Quest.Event" but not "Quest.Ev".
func (t Tag) MatchesPrefix(parent Tag) bool {
	if !parent.IsValid() {
		return false
	}
	if t == parent {
		return true
	}
	return strings.HasPrefix(string(t), string(parent)+".")
}

// Parent returns the tag with its last segment removed, or None for a
// single-segment tag.
func (t Tag) Parent() Tag {
	idx := strings.LastIndexByte(string(t), '.')
	if idx < 0 {
		return None
	}
	return t[:idx]
}

// Set is an unordered collection of tags.
type Set map[Tag]struct{}

// NewSet builds a set from the given tags, skipping empty ones.
func NewSet(tags ...Tag) Set {
	s := make(Set, len(tags))
	for _, t := range tags {
		if t.IsValid() {
			s[t] = struct{}{}
		}
	}
	return s
}

// Add inserts t into the set.
func (s Set) Add(t Tag) {
	if t.IsValid() {
		s[t] = struct{}{}
	}
}

// Remove deletes t from the set.
func (s Set) Remove(t Tag) {
	delete(s, t)
}

// Has reports whether t is in the set.
func (s Set) Has(t Tag) bool {
	_, ok := s[t]
	return ok
}

// HasAll reports whether every tag in other is present in s.
// An empty or nil other is trivially satisfied.
func (s Set) HasAll(other Set) bool {
	for t := range other {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one tag in other is present in s.
// Returns false when other is empty.
func (s Set) HasAny(other Set) bool {
	for t := range other {
		if s.Has(t) {
			return true
		}
	}
	return false
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

// List returns the tags as a slice, in unspecified order.
func (s Set) List() []Tag {
	out := make([]Tag, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	return out
}
