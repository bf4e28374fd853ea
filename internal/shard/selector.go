package shard

import (
	"fmt"
	"slices"
	"strings"
)

// Group is one declared combination of categories, years and months.
type Group struct {
	Categories []string
	Years      []int
	Months     []int
}

// Overrides replace an axis of every group with a single value. Zero values mean unset.
type Overrides struct {
	Category string
	Year     int
	Month    int
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return o == Overrides{}
}

// Expand builds the sorted, deduplicated union of every group's Cartesian product.
// A set override replaces the matching axis of every group, whether or not the group
// declared that value.
func Expand(groups []Group, o Overrides) []Key {
	seen := make(map[Key]struct{})
	var keys []Key
	for _, g := range groups {
		categories := g.Categories
		if o.Category != "" {
			categories = []string{o.Category}
		}
		years := g.Years
		if o.Year != 0 {
			years = []int{o.Year}
		}
		months := g.Months
		if o.Month != 0 {
			months = []int{o.Month}
		}

		for _, c := range categories {
			for _, y := range years {
				for _, m := range months {
					k := Key{Category: c, Year: y, Month: m}
					if _, dup := seen[k]; dup {
						continue
					}
					seen[k] = struct{}{}
					keys = append(keys, k)
				}
			}
		}
	}
	slices.SortFunc(keys, Compare)
	return keys
}

// ValidationError carries every violation found in a selection.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid selection (%d violations): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

// Validate checks every group against the legal domains and returns a *ValidationError
// listing all violations, or nil when the selection is valid.
func Validate(groups []Group) error {
	var violations []string
	if len(groups) == 0 {
		violations = append(violations, "no datasets defined")
	}
	for i, g := range groups {
		prefix := fmt.Sprintf("dataset %d", i+1)
		if len(g.Categories) == 0 {
			violations = append(violations, prefix+": taxi_types is missing or empty")
		}
		if len(g.Years) == 0 {
			violations = append(violations, prefix+": years is missing or empty")
		}
		if len(g.Months) == 0 {
			violations = append(violations, prefix+": months is missing or empty")
		}
		for _, c := range g.Categories {
			if !IsKnownCategory(c) {
				violations = append(violations, fmt.Sprintf("%s: unknown taxi type %q (valid: %s)", prefix, c, strings.Join(knownCategories, ", ")))
			}
		}
		for _, y := range g.Years {
			if y < MinYear || y > MaxYear {
				violations = append(violations, fmt.Sprintf("%s: year %d is outside the valid range (%d-%d)", prefix, y, MinYear, MaxYear))
			}
		}
		for _, m := range g.Months {
			if m < MinMonth || m > MaxMonth {
				violations = append(violations, fmt.Sprintf("%s: month %d is outside the valid range (%d-%d)", prefix, m, MinMonth, MaxMonth))
			}
		}
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// ValidateOverrides range-checks set overrides. The category only needs to be known,
// not declared by any group.
func ValidateOverrides(o Overrides) error {
	var violations []string
	if o.Category != "" && !IsKnownCategory(o.Category) {
		violations = append(violations, fmt.Sprintf("override: unknown taxi type %q (valid: %s)", o.Category, strings.Join(knownCategories, ", ")))
	}
	if o.Year != 0 && (o.Year < MinYear || o.Year > MaxYear) {
		violations = append(violations, fmt.Sprintf("override: year %d is outside the valid range (%d-%d)", o.Year, MinYear, MaxYear))
	}
	if o.Month != 0 && (o.Month < MinMonth || o.Month > MaxMonth) {
		violations = append(violations, fmt.Sprintf("override: month %d is outside the valid range (%d-%d)", o.Month, MinMonth, MaxMonth))
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
