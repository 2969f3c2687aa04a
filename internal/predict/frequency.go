package predict

import "github.com/utakatalp/league-forecaster/internal/league"

// FrequencyPredictor predicts every fixture of a competition with the
// recent category frequencies of that competition, ignoring the teams.
type FrequencyPredictor struct {
	opts   options
	counts categoryCounts
	memory window
}

var _ Predictor = (*FrequencyPredictor)(nil)

func NewFrequencyPredictor(opts ...Option) *FrequencyPredictor {
	return &FrequencyPredictor{
		opts:   buildOptions(opts),
		counts: make(categoryCounts),
	}
}

func (p *FrequencyPredictor) Name() string {
	return "simple"
}

func (p *FrequencyPredictor) FeedMatch(m league.Match) {
	p.counts.add(m, 1)
	p.memory.push(m)
}

func (p *FrequencyPredictor) Predict(f league.Fixture) Distribution {
	p.memory.evict(f.Date, p.opts.retentionDays, func(m league.Match) {
		p.counts.add(m, -1)
	})

	adjusted := p.counts.adjusted(f.Competition)
	total := 0
	for _, count := range adjusted {
		total += count
	}
	dist := make(Distribution, len(adjusted))
	for category, count := range adjusted {
		dist[category] = float64(count) / float64(total)
	}
	return dist
}
