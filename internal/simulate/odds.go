package simulate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/logger"
	"github.com/utakatalp/league-forecaster/internal/predict"
)

// consensusStream is the PCG stream of the shuffle that orders teams before
// the consensus pick. Run streams count up from zero.
const consensusStream = math.MaxUint64

// countEpsilon absorbs rounding of fractional tie shares when comparing
// cumulative counts.
const countEpsilon = 1e-9

// Observer is notified after every simulation run.
type Observer interface {
	ObserveRun(competition league.Competition, elapsed time.Duration, err error)
}

// TeamOdds is the chance of a team to finish in each position.
// Positions[i] is the probability of finishing i+1.
type TeamOdds struct {
	Team      string    `json:"team"`
	Positions []float64 `json:"positions"`
}

// Odds aggregates the final rankings of many simulated seasons.
type Odds struct {
	Competition league.Competition  `json:"competition"`
	Season      league.Season       `json:"season"`
	Runs        int                 `json:"runs"`
	Teams       []TeamOdds          `json:"teams"`
	Ranking     []league.RankedTeam `json:"ranking"`
	Champion    []league.Prediction `json:"champion"`
}

// GroupOdds is the Odds of one cup group after its remaining fixtures.
type GroupOdds struct {
	Group   string              `json:"group"`
	Teams   []TeamOdds          `json:"teams"`
	Ranking []league.RankedTeam `json:"ranking"`
}

// Forecaster runs independent season simulations on a pool of workers.
// Run i draws from rand.NewPCG(Seed, i) and a predictor of its own, so the
// outcome does not depend on Workers.
type Forecaster struct {
	Factory  predict.Factory
	Runs     int
	Workers  int
	Seed     uint64
	Log      *logger.Logger
	Observer Observer
}

// Forecast simulates the season Runs times and counts where every team
// finishes.
func (f *Forecaster) Forecast(ctx context.Context, in Input) (*Odds, error) {
	scores := CategoryToScore(in.History)
	rankings := make([][]league.RankedTeam, f.Runs)
	err := f.run(ctx, in.Competition, func(run int, rng *rand.Rand) error {
		ranking, err := Table(in, f.Factory(), scores, rng)
		if err != nil {
			return err
		}
		rankings[run] = ranking
		return nil
	})
	if err != nil {
		return nil, err
	}

	counts := countPositions(rankings)
	odds := &Odds{
		Competition: in.Competition,
		Season:      in.Season,
		Runs:        f.Runs,
		Ranking:     consensus(counts, f.Seed),
	}
	odds.Teams = teamOdds(counts, odds.Ranking, f.Runs)
	odds.Champion = ChampionOdds(odds.Teams)
	return odds, nil
}

// GroupOdds simulates the remaining group fixtures of a cup Runs times and
// counts where every team finishes in its group.
func (f *Forecaster) GroupOdds(ctx context.Context, in Input) ([]GroupOdds, error) {
	if !in.Format.Cup {
		return nil, fmt.Errorf("%w: %s has no groups", league.ErrUnsupported, in.Competition)
	}
	scores := CategoryToScore(in.History)
	tables := make([]map[string][]string, f.Runs)
	err := f.run(ctx, in.Competition, func(run int, rng *rand.Rand) error {
		t, err := GroupTables(in, f.Factory(), scores, rng)
		if err != nil {
			return err
		}
		tables[run] = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	byGroup := make(map[string][][]league.RankedTeam)
	for _, t := range tables {
		for group, table := range t {
			byGroup[group] = append(byGroup[group], league.Ranking(table))
		}
	}
	groups := make([]string, 0, len(byGroup))
	for group := range byGroup {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	result := make([]GroupOdds, 0, len(groups))
	for _, group := range groups {
		counts := countPositions(byGroup[group])
		ranking := consensus(counts, f.Seed)
		result = append(result, GroupOdds{
			Group:   group,
			Teams:   teamOdds(counts, ranking, len(byGroup[group])),
			Ranking: ranking,
		})
	}
	return result, nil
}

// run executes job for every run index on at most Workers goroutines and
// returns the error of the lowest failing run. A failure or a cancelled ctx
// stops the remaining runs from starting.
func (f *Forecaster) run(ctx context.Context, competition league.Competition, job func(run int, rng *rand.Rand) error) error {
	if f.Runs <= 0 {
		return fmt.Errorf("%w: runs must be positive, got %d", league.ErrValidation, f.Runs)
	}
	log := f.Log
	if log == nil {
		log = logger.Nop()
	}
	workers := min(max(f.Workers, 1), f.Runs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	errs := make([]error, f.Runs)
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for run := range jobs {
				runStart := time.Now()
				err := job(run, rand.New(rand.NewPCG(f.Seed, uint64(run))))
				elapsed := time.Since(runStart)
				if f.Observer != nil {
					f.Observer.ObserveRun(competition, elapsed, err)
				}
				if err != nil {
					errs[run] = fmt.Errorf("run %d: %w", run, err)
					cancel()
					continue
				}
				log.Debug("simulation run finished",
					logger.String("competition", competition.String()),
					logger.Int("run", run),
					logger.Duration("elapsed_ms", elapsed),
				)
			}
		}()
	}

feed:
	for run := 0; run < f.Runs; run++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- run:
		}
	}
	close(jobs)
	wg.Wait()

	if err := firstError(errs); err != nil {
		log.Error("simulation failed", logger.String("competition", competition.String()), logger.Error(err))
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("simulating %s: %w", competition, err)
	}
	log.Info("simulations finished",
		logger.String("competition", competition.String()),
		logger.Int("runs", f.Runs),
		logger.Int("workers", workers),
		logger.Duration("elapsed_ms", time.Since(start)),
	)
	return nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// countPositions counts, per team, how often it finished in each position
// (index 0 is first). k teams sharing a Position split the k places from
// that Position on evenly.
func countPositions(rankings [][]league.RankedTeam) map[string][]float64 {
	counts := make(map[string][]float64)
	for _, ranking := range rankings {
		for i := 0; i < len(ranking); {
			j := i + 1
			for j < len(ranking) && ranking[j].Position == ranking[i].Position {
				j++
			}
			share := 1 / float64(j-i)
			for _, r := range ranking[i:j] {
				c, ok := counts[r.Team]
				if !ok {
					c = make([]float64, len(ranking))
					counts[r.Team] = c
				}
				for position := i; position < j && position < len(c); position++ {
					c[position] += share
				}
			}
			i = j
		}
	}
	return counts
}

// consensus picks, position by position, the team with the highest
// cumulative count of finishing there or better. Equal counts go to the
// team first in a seeded shuffle of the names.
func consensus(counts map[string][]float64, seed uint64) []league.RankedTeam {
	teams := make([]string, 0, len(counts))
	for team := range counts {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	shuffle(rand.New(rand.NewPCG(seed, consensusStream)), teams)

	cumulative := make(map[string]float64, len(teams))
	ranking := make([]league.RankedTeam, 0, len(teams))
	for position := 0; len(teams) > 0; position++ {
		for team, c := range counts {
			if position < len(c) {
				cumulative[team] += c[position]
			}
		}
		best := 0
		for i, team := range teams {
			if cumulative[team] > cumulative[teams[best]]+countEpsilon {
				best = i
			}
		}
		ranking = append(ranking, league.RankedTeam{Team: teams[best], Position: position + 1})
		teams = append(teams[:best], teams[best+1:]...)
	}
	return ranking
}

func teamOdds(counts map[string][]float64, ranking []league.RankedTeam, runs int) []TeamOdds {
	odds := make([]TeamOdds, 0, len(ranking))
	for _, r := range ranking {
		c := counts[r.Team]
		positions := make([]float64, len(c))
		for i, n := range c {
			positions[i] = n / float64(runs)
		}
		odds = append(odds, TeamOdds{Team: r.Team, Positions: positions})
	}
	return odds
}

// ChampionOdds returns the title chances in percent, rounded to two
// decimals, highest first.
func ChampionOdds(teams []TeamOdds) []league.Prediction {
	preds := make([]league.Prediction, 0, len(teams))
	for _, t := range teams {
		p := 0.0
		if len(t.Positions) > 0 {
			p = t.Positions[0] * 100
		}
		preds = append(preds, league.Prediction{Team: t.Team, Probability: math.Round(p*100) / 100})
	}
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Probability > preds[j].Probability
	})
	return preds
}
