package predict

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/utakatalp/league-forecaster/internal/league"
)

// BiasP is the significance level of the two-sided bias test.
const BiasP = 0.005

// Evaluation summarises how well a predictor did on historical matches.
type Evaluation struct {
	Predictor    string  `json:"predictor"`
	Predictions  int     `json:"predictions"`
	MeanPoints   float64 `json:"mean_points"`
	CategoryHits int     `json:"category_hits"`
	ResultHits   int     `json:"result_hits"`
	Results      []Bias  `json:"results"`
	Categories   []Bias  `json:"categories"`
}

// Bias compares the average predicted probability of an outcome with how
// often it happened.
type Bias struct {
	Outcome            string  `json:"outcome"`
	AverageProbability float64 `json:"average_probability"`
	Count              int     `json:"count"`
	Frequency          float64 `json:"frequency"`
	Verdict            string  `json:"verdict,omitempty"`
}

// Evaluate replays matches day by day: every match dated on or after start
// is predicted before any match of its day is fed. matches must be sorted
// by date.
func Evaluate(p Predictor, matches []league.Match, start time.Time) (*Evaluation, error) {
	ev := &Evaluation{Predictor: p.Name()}
	logScore := 0.0
	categoryTotals := make(map[league.Category]float64)
	resultTotals := make(map[league.Result]float64)
	categoryCounts := make(map[league.Category]int)
	resultCounts := make(map[league.Result]int)

	for i := 0; i < len(matches); {
		day := matches[i].Date
		j := i
		for j < len(matches) && matches[j].Date.Equal(day) {
			j++
		}
		if j < len(matches) && matches[j].Date.Before(day) {
			return nil, fmt.Errorf("matches not sorted by date at %s", matches[j].Date.Format(time.DateOnly))
		}
		today := matches[i:j]

		if !day.Before(start) {
			for _, m := range today {
				dist := p.Predict(league.FixtureFromMatch(m))
				if !dist.IsValid() {
					return nil, fmt.Errorf("%s on %s: %w", p.Name(), m.ScoreLine(), ErrInvalidDistribution)
				}
				actual := league.CategoryOf(m)
				if prob := dist[actual]; prob > 0 {
					logScore += math.Log(prob)
				} else {
					logScore = math.Inf(-1)
				}
				ev.Predictions++
				categoryCounts[actual]++
				resultCounts[actual.Result()]++

				for c, prob := range dist {
					categoryTotals[c] += prob
				}
				results := dist.Results()
				for r, prob := range results {
					resultTotals[r] += prob
				}
				if dist.Best() == actual {
					ev.CategoryHits++
				}
				if bestResult(results) == actual.Result() {
					ev.ResultHits++
				}
			}
		}

		for _, m := range today {
			p.FeedMatch(m)
		}
		i = j
	}

	if ev.Predictions == 0 {
		return ev, nil
	}
	n := ev.Predictions
	ev.MeanPoints = logScore/float64(n)/math.Log(float64(league.NumCategories())) + 1
	for _, r := range []league.Result{league.ResultHome, league.ResultDraw, league.ResultAway} {
		ev.Results = append(ev.Results, newBias(r.String(), resultTotals[r]/float64(n), resultCounts[r], n))
	}
	for _, c := range league.Categories() {
		ev.Categories = append(ev.Categories, newBias(c.String(), categoryTotals[c]/float64(n), categoryCounts[c], n))
	}
	return ev, nil
}

func bestResult(results map[league.Result]float64) league.Result {
	best := league.ResultHome
	for _, r := range []league.Result{league.ResultDraw, league.ResultAway} {
		if results[r] > results[best] {
			best = r
		}
	}
	return best
}

func newBias(outcome string, average float64, count, n int) Bias {
	b := Bias{
		Outcome:            outcome,
		AverageProbability: average,
		Count:              count,
		Frequency:          float64(count) / float64(n),
	}
	switch {
	case binomialCDF(count, n, average) < BiasP/2:
		b.Verdict = "overestimate"
	case 1-binomialCDF(count-1, n, average) < BiasP/2:
		b.Verdict = "underestimate"
	}
	return b
}

// binomialCDF returns P(X <= x) for X ~ Binomial(n, p), summed in log space.
func binomialCDF(x, n int, p float64) float64 {
	if x < 0 {
		return 0
	}
	if x >= n || p <= 0 {
		return 1
	}
	if p >= 1 {
		return 0
	}
	result := 0.0
	b := 0.0
	for k := 0; k <= x; k++ {
		if k > 0 {
			b += math.Log(float64(n-k+1)) - math.Log(float64(k))
		}
		logPMF := b + float64(k)*math.Log(p) + float64(n-k)*math.Log(1-p)
		result += math.Exp(logPMF)
	}
	return result
}

// WriteEvaluation prints an evaluation report.
func WriteEvaluation(w io.Writer, ev *Evaluation) {
	fmt.Fprintf(w, "# Predictor %q #\n\n", ev.Predictor)
	if ev.Predictions == 0 {
		fmt.Fprintln(w, "No predictions.")
		return
	}
	n := float64(ev.Predictions)
	fmt.Fprintf(w, "Mean points: %.3f\n", ev.MeanPoints)
	fmt.Fprintf(w, "Correct categories: %.2f%%\n", 100*float64(ev.CategoryHits)/n)
	fmt.Fprintf(w, "Correct results: %.2f%%\n\n", 100*float64(ev.ResultHits)/n)
	for _, group := range [][]Bias{ev.Results, ev.Categories} {
		for _, b := range group {
			suffix := ""
			if b.Verdict != "" {
				suffix = fmt.Sprintf(" (%s: reality=%.2f%%)", b.Verdict, 100*b.Frequency)
			}
			fmt.Fprintf(w, "%-4s %6.2f%%%s\n", b.Outcome, 100*b.AverageProbability, suffix)
		}
		fmt.Fprintln(w)
	}
}
