// Package shard identifies the monthly per-category units of work and maps them to
// remote URLs and local paths.
package shard

import (
	"cmp"
	"fmt"
	"slices"
)

// Known categories of the trip dataset.
const (
	Yellow = "yellow"
	Green  = "green"
	FHV    = "fhv"
	FHVHV  = "fhvhv"
)

// Legal ranges for the date axes.
const (
	MinYear  = 2009
	MaxYear  = 2030
	MinMonth = 1
	MaxMonth = 12
)

var knownCategories = []string{FHV, FHVHV, Green, Yellow}

// Categories returns the known categories in sorted order.
func Categories() []string {
	return slices.Clone(knownCategories)
}

// IsKnownCategory reports whether c is one of the known categories.
func IsKnownCategory(c string) bool {
	return slices.Contains(knownCategories, c)
}

// Key uniquely identifies one shard: a category and a calendar month.
type Key struct {
	Category string
	Year     int
	Month    int
}

// Compare orders keys by category, then year, then month.
func Compare(a, b Key) int {
	if c := cmp.Compare(a.Category, b.Category); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Year, b.Year); c != 0 {
		return c
	}
	return cmp.Compare(a.Month, b.Month)
}

// Less reports whether k sorts before other.
func (k Key) Less(other Key) bool {
	return Compare(k, other) < 0
}

// Stem is the file name without extension, e.g. "yellow_tripdata_2019-01".
func (k Key) Stem() string {
	return fmt.Sprintf("%s_tripdata_%04d-%02d", k.Category, k.Year, k.Month)
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%04d-%02d", k.Category, k.Year, k.Month)
}
