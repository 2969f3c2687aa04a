package league

import (
	"fmt"
	"slices"
)

const (
	// MaxGoals is the highest total that is kept as its own category.
	MaxGoals = 7
	MaxBase  = MaxGoals / 2
)

// Category is a bucketed score. Scores with more than MaxGoals goals are
// folded into a small set keyed by winner and margin.
type Category struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

var categories = buildCategories()

// CategoryFromScore returns the category of a score. It is idempotent.
func CategoryFromScore(s Score) Category {
	if s.Home+s.Away <= MaxGoals {
		return Category{Home: s.Home, Away: s.Away}
	}
	diff := min(abs(s.Home-s.Away), MaxGoals)
	base := MaxBase - diff/2
	ceil := base + diff
	if s.Home >= s.Away {
		return Category{Home: ceil, Away: base}
	}
	return Category{Home: base, Away: ceil}
}

// CategoryOf returns the category of a match.
func CategoryOf(m Match) Category {
	return CategoryFromScore(m.Score())
}

// Categories returns every category ordered by signed margin, then by home
// goals.
func Categories() []Category {
	return slices.Clone(categories)
}

// NumCategories is the number of distinct categories.
func NumCategories() int {
	return len(categories)
}

// Score converts the category back to a representative score.
func (c Category) Score() Score {
	return Score{Home: c.Home, Away: c.Away}
}

// Result is the 1/X/2 outcome shared by every score in the category.
func (c Category) Result() Result {
	return ResultOf(c.Score())
}

func (c Category) String() string {
	sep := ":"
	if c.Home+c.Away >= MaxGoals-1 {
		sep = "~"
	}
	return fmt.Sprintf("%d%s%d", c.Home, sep, c.Away)
}

func buildCategories() []Category {
	seen := make(map[Category]bool)
	var result []Category
	for home := 0; home <= MaxGoals; home++ {
		for away := 0; away <= MaxGoals; away++ {
			c := CategoryFromScore(Score{Home: home, Away: away})
			if !seen[c] {
				seen[c] = true
				result = append(result, c)
			}
		}
	}
	slices.SortFunc(result, func(a, b Category) int {
		if d := (a.Away - a.Home) - (b.Away - b.Home); d != 0 {
			return d
		}
		return a.Home - b.Home
	})
	return result
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
