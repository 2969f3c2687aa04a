package predict

import (
	"maps"
	"math"
	"time"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/logger"
)

const (
	// HomeAdvantage is added to the strength difference of every fixture.
	HomeAdvantage = 0.43

	coldIterations = 100
	warmIterations = 5
)

// StrengthPredictor models every team of a region by a single strength
// fitted on recent goal differences.
type StrengthPredictor struct {
	opts    options
	regions map[string]*regionState
	counts  categoryCounts
}

// regionState holds the rolling window and strength cache of one region.
// strengths is nil until the first fit.
type regionState struct {
	memory    window
	strengths map[string]float64
	valid     bool
}

var _ Predictor = (*StrengthPredictor)(nil)

func NewStrengthPredictor(opts ...Option) *StrengthPredictor {
	return &StrengthPredictor{
		opts:    buildOptions(opts),
		regions: make(map[string]*regionState),
		counts:  make(categoryCounts),
	}
}

func (p *StrengthPredictor) Name() string {
	return "strength model"
}

func (p *StrengthPredictor) region(name string) *regionState {
	r, ok := p.regions[name]
	if !ok {
		r = &regionState{}
		p.regions[name] = r
	}
	return r
}

func (p *StrengthPredictor) FeedMatch(m league.Match) {
	r := p.region(m.Competition.Region)
	r.memory.push(m)
	r.valid = false
	p.counts.add(m, 1)
}

func (p *StrengthPredictor) Predict(f league.Fixture) Distribution {
	r := p.updateCache(f.Competition.Region, f.Date)
	diff := r.strengths[f.Home] - r.strengths[f.Away] + HomeAdvantage
	resultProbabilities := ResultProbabilities(diff)

	adjusted := p.counts.adjusted(f.Competition)
	resultCounts := make(map[league.Result]int, 3)
	for category, count := range adjusted {
		resultCounts[category.Result()] += count
	}

	dist := make(Distribution, len(adjusted))
	for category, count := range adjusted {
		result := category.Result()
		factor := float64(count) / float64(resultCounts[result])
		dist[category] = resultProbabilities[result] * factor
	}
	return dist
}

// ResultProbabilities converts a strength difference, home advantage
// included, into 1/X/2 probabilities.
func ResultProbabilities(diff float64) map[league.Result]float64 {
	draw := 0.29 * math.Exp(-0.5*math.Pow(diff*0.65, 2))
	home := (1 - draw) / (1 + math.Exp(-diff))
	return map[league.Result]float64{
		league.ResultHome: home,
		league.ResultDraw: draw,
		league.ResultAway: 1 - home - draw,
	}
}

// Strengths returns a copy of the cached strengths of a region, refitted
// for target if the cache is stale.
func (p *StrengthPredictor) Strengths(region string, target time.Time) map[string]float64 {
	return maps.Clone(p.updateCache(region, target).strengths)
}

func (p *StrengthPredictor) updateCache(region string, target time.Time) *regionState {
	r := p.region(region)
	if r.valid {
		return r
	}

	r.memory.evict(target, p.opts.retentionDays, func(m league.Match) {
		p.counts.add(m, -1)
	})

	strengths := r.strengths
	iterations := warmIterations
	if strengths == nil {
		strengths = make(map[string]float64)
		iterations = coldIterations
	}

	matches := r.memory.items()
	weights := make([]float64, len(matches))
	late := 0
	var latest time.Time
	for i, m := range matches {
		days := league.DaysBetween(m.Date, target)
		if days < 0 {
			late++
			if m.Date.After(latest) {
				latest = m.Date
			}
			days = 0
		}
		weights[i] = devaluation(days)
	}
	if late > 0 {
		p.opts.log.Warn("target date before match date",
			logger.String("region", region),
			logger.Date("target", target),
			logger.Date("latest_match", latest),
			logger.Int("matches", late),
		)
	}

	if len(matches) > 0 {
		for range iterations {
			next := maps.Clone(strengths)
			for i, m := range matches {
				change := strengthChange(m.HomeGoals-m.AwayGoals, strengths[m.Home]-strengths[m.Away])
				adjustment := weights[i] * change
				next[m.Home] += adjustment
				next[m.Away] -= adjustment
			}
			strengths = next
		}
	}

	r.strengths = strengths
	r.valid = true
	return r
}

// strengthChange is how much stronger the home team was than expected.
func strengthChange(goalDiff int, strengthDiff float64) float64 {
	return 0.05*float64(goalDiff) - 0.046*(strengthDiff+HomeAdvantage)
}

// devaluation is the relative weight of a match played days ago.
func devaluation(days int) float64 {
	return math.Pow(0.88, math.Pow(float64(days), 0.45))
}
