// Package predict turns match history into score-category probabilities.
package predict

import (
	"errors"
	"fmt"
	"math"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/logger"
)

var (
	ErrUnknownPredictor    = errors.New("unknown predictor")
	ErrInvalidDistribution = errors.New("invalid probability distribution")
)

// DefaultRetentionDays keeps roughly ten years of matches.
var DefaultRetentionDays = int(math.Round(10 * 365.25))

// Predictor is a prediction strategy. Matches must be fed in chronological
// order.
type Predictor interface {
	Name() string
	FeedMatch(m league.Match)
	Predict(f league.Fixture) Distribution
}

// Factory creates a fresh predictor. Every simulation run owns its own.
type Factory func() Predictor

const (
	KindStrength  = "strength"
	KindFrequency = "frequency"
)

// NewFactory returns a factory for the predictor named by kind.
func NewFactory(kind string, opts ...Option) (Factory, error) {
	switch kind {
	case KindStrength:
		return func() Predictor { return NewStrengthPredictor(opts...) }, nil
	case KindFrequency:
		return func() Predictor { return NewFrequencyPredictor(opts...) }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPredictor, kind)
}

// All returns one of each predictor.
func All(opts ...Option) []Predictor {
	return []Predictor{NewFrequencyPredictor(opts...), NewStrengthPredictor(opts...)}
}

type options struct {
	log           *logger.Logger
	retentionDays int
}

type Option func(*options)

func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithRetention sets how many days of history are kept before a prediction.
func WithRetention(days int) Option {
	return func(o *options) {
		o.retentionDays = days
	}
}

func buildOptions(opts []Option) options {
	o := options{retentionDays: DefaultRetentionDays}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	return o
}

// Distribution maps every category to its probability.
type Distribution map[league.Category]float64

// Results sums the distribution into 1/X/2 probabilities.
func (d Distribution) Results() map[league.Result]float64 {
	results := make(map[league.Result]float64, 3)
	for c, p := range d {
		results[c.Result()] += p
	}
	return results
}

// IsValid reports whether the values are non-negative and sum to one.
func (d Distribution) IsValid() bool {
	sum := 0.0
	for _, p := range d {
		if p < 0 || math.IsNaN(p) {
			return false
		}
		sum += p
	}
	return math.Abs(sum-1) <= 1e-9
}

// Best returns the most likely category, the first in canonical order on
// ties.
func (d Distribution) Best() league.Category {
	var best league.Category
	bestP := -1.0
	for _, c := range league.Categories() {
		if p := d[c]; p > bestP {
			best, bestP = c, p
		}
	}
	return best
}

// categoryCounts is a per-competition histogram of categories.
type categoryCounts map[league.Competition]map[league.Category]int

func (cc categoryCounts) add(m league.Match, delta int) {
	counts, ok := cc[m.Competition]
	if !ok {
		counts = make(map[league.Category]int)
		cc[m.Competition] = counts
	}
	counts[league.CategoryOf(m)] += delta
}

// adjusted floors every category count of a competition at one so that no
// category ends up with zero probability.
func (cc categoryCounts) adjusted(c league.Competition) map[league.Category]int {
	counts := cc[c]
	adjusted := make(map[league.Category]int, league.NumCategories())
	for _, category := range league.Categories() {
		adjusted[category] = max(counts[category], 1)
	}
	return adjusted
}
