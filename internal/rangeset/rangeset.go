// Package rangeset implements a set of half-open integer intervals closed
// under union, intersection and subtraction, with min-gap and
// contiguous-run queries. Used by internal/audiofile to track which byte
// regions of a file have been downloaded or requested.
package rangeset

import "sort"

// Range is a half-open interval [Start, End).
type Range struct {
	Start, End int64
}

func (r Range) Len() int64 { return r.End - r.Start }

// Set is a disjoint, sorted collection of Ranges. The zero value is an empty
// set.
type Set struct {
	ranges []Range
}

// New builds a Set from the given ranges, normalizing them into disjoint
// sorted form.
func New(ranges ...Range) *Set {
	s := &Set{}
	for _, r := range ranges {
		s.Add(r)
	}
	return s
}

// Ranges returns a copy of the disjoint sorted intervals.
func (s *Set) Ranges() []Range {
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Add merges r into the set, keeping it disjoint and sorted.
func (s *Set) Add(r Range) {
	if r.Start >= r.End {
		return
	}
	merged := append(append([]Range{}, s.ranges...), r)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	s.ranges = coalesce(merged)
}

func coalesce(sorted []Range) []Range {
	if len(sorted) == 0 {
		return sorted
	}
	out := make([]Range, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		if r.Start <= cur.End {
			if r.End > cur.End {
				cur.End = r.End
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}

// Subtract removes r from the set, splitting intervals as needed.
func (s *Set) Subtract(r Range) {
	if r.Start >= r.End || len(s.ranges) == 0 {
		return
	}
	out := make([]Range, 0, len(s.ranges)+1)
	for _, existing := range s.ranges {
		if existing.End <= r.Start || existing.Start >= r.End {
			out = append(out, existing)
			continue
		}
		if existing.Start < r.Start {
			out = append(out, Range{existing.Start, r.Start})
		}
		if existing.End > r.End {
			out = append(out, Range{r.End, existing.End})
		}
	}
	s.ranges = out
}

// Intersect returns a new Set containing the intersection of s and o.
func (s *Set) Intersect(o *Set) *Set {
	result := &Set{}
	i, j := 0, 0
	for i < len(s.ranges) && j < len(o.ranges) {
		a, b := s.ranges[i], o.ranges[j]
		start := max64(a.Start, b.Start)
		end := min64(a.End, b.End)
		if start < end {
			result.ranges = append(result.ranges, Range{start, end})
		}
		if a.End < b.End {
			i++
		} else {
			j++
		}
	}
	return result
}

// Contains reports whether the single point p falls within the set.
func (s *Set) Contains(p int64) bool {
	for _, r := range s.ranges {
		if p >= r.Start && p < r.End {
			return true
		}
		if r.Start > p {
			break
		}
	}
	return false
}

// ContainsRange reports whether [a,b) is fully covered by a single interval
// of the set (the set being disjoint, full coverage can never span two
// intervals without also covering the gap between them).
func (s *Set) ContainsRange(r Range) bool {
	if r.Start >= r.End {
		return true
	}
	for _, existing := range s.ranges {
		if existing.Start <= r.Start && r.End <= existing.End {
			return true
		}
	}
	return false
}

// Length returns the sum of all interval lengths in the set.
func (s *Set) Length() int64 {
	var total int64
	for _, r := range s.ranges {
		total += r.Len()
	}
	return total
}

// IsEmpty reports whether the set has no intervals.
func (s *Set) IsEmpty() bool { return len(s.ranges) == 0 }

// ContiguousRunFrom returns the length of the contiguous covered run
// starting exactly at p, or 0 if p is not covered.
func (s *Set) ContiguousRunFrom(p int64) int64 {
	for _, r := range s.ranges {
		if r.Start <= p && p < r.End {
			return r.End - p
		}
		if r.Start > p {
			break
		}
	}
	return 0
}

// MinGapFrom returns the distance from p to the start of the next interval
// at or after p that does not already contain p, or -1 if there is none.
// Used to decide how far ahead a fetch must reach to make progress.
func (s *Set) MinGapFrom(p int64) int64 {
	if s.Contains(p) {
		return 0
	}
	for _, r := range s.ranges {
		if r.Start >= p {
			return r.Start - p
		}
	}
	return -1
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
