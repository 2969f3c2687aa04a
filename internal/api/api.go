// Package api serves standings, fixture predictions and season forecasts
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/logger"
	"github.com/utakatalp/league-forecaster/internal/metrics"
	"github.com/utakatalp/league-forecaster/internal/predict"
	"github.com/utakatalp/league-forecaster/internal/simulate"
)

// MaxRuns caps the runs of a forecast requested over HTTP.
const MaxRuns = 10000

var errBadRequest = errors.New("bad request")

// Source is the storage the API reads from and writes odds to.
type Source interface {
	simulate.Source
	SaveOdds(ctx context.Context, odds *simulate.Odds) error
	LoadOdds(ctx context.Context, c league.Competition, season league.Season) (*simulate.Odds, error)
}

type Options struct {
	Formats league.Formats
	Factory predict.Factory
	Runs    int
	Workers int
	Seed    uint64
	Log     *logger.Logger
	Metrics *metrics.Recorder
}

type Server struct {
	source Source
	opts   Options
	log    *logger.Logger
}

func NewServer(source Source, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	if opts.Formats == nil {
		opts.Formats = league.DefaultFormats()
	}
	return &Server{source: source, opts: opts, log: log}
}

// Router registers every route on a new gorilla/mux router.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	if s.opts.Metrics != nil {
		router.Use(s.opts.Metrics.Middleware(s.log))
		router.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)

	competition := api.PathPrefix("/competitions/{region}/{name}").Subrouter()
	competition.HandleFunc("/predict", s.predict).Methods(http.MethodGet)
	competition.HandleFunc("/seasons/{season}/standings", s.standings).Methods(http.MethodGet)
	competition.HandleFunc("/seasons/{season}/forecast", s.forecast).Methods(http.MethodPost)
	competition.HandleFunc("/seasons/{season}/odds", s.odds).Methods(http.MethodGet)
	return router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) standings(w http.ResponseWriter, r *http.Request) {
	c, season, err := seasonVars(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	matches, err := s.source.LoadSeasonMatches(r.Context(), c, season)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"competition": c,
		"season":      season.String(),
		"played":      len(matches),
		"table":       league.Standings(matches),
	})
}

type categoryProbability struct {
	Category    string  `json:"category"`
	Probability float64 `json:"probability"`
}

type predictionResponse struct {
	Fixture    league.Fixture        `json:"fixture"`
	Predictor  string                `json:"predictor"`
	Results    map[string]float64    `json:"results"`
	Categories []categoryProbability `json:"categories"`
	Best       string                `json:"best"`
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	c := competitionVars(r)
	if _, err := s.opts.Formats.Lookup(c); err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	home, away := q.Get("home"), q.Get("away")
	if home == "" || away == "" || home == away {
		s.writeError(w, r, fmt.Errorf("%w: home and away must be two different teams", errBadRequest))
		return
	}
	date, err := time.Parse(time.DateOnly, q.Get("date"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: date: %v", errBadRequest, err))
		return
	}

	history, err := s.source.LoadMatches(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := s.opts.Factory()
	for _, m := range history {
		if !m.Date.Before(date) {
			break
		}
		p.FeedMatch(m)
	}

	fixture := league.Fixture{Competition: c, Date: date, Home: home, Away: away}
	dist := p.Predict(fixture)
	if !dist.IsValid() {
		s.writeError(w, r, fmt.Errorf("%s: %w", p.Name(), predict.ErrInvalidDistribution))
		return
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordPrediction(c)
	}

	resp := predictionResponse{
		Fixture:   fixture,
		Predictor: p.Name(),
		Results:   make(map[string]float64, 3),
		Best:      dist.Best().String(),
	}
	for result, prob := range dist.Results() {
		resp.Results[result.String()] = prob
	}
	for _, category := range league.Categories() {
		resp.Categories = append(resp.Categories, categoryProbability{Category: category.String(), Probability: dist[category]})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) forecast(w http.ResponseWriter, r *http.Request) {
	c, season, err := seasonVars(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runs := s.opts.Runs
	if v := r.URL.Query().Get("runs"); v != "" {
		runs, err = strconv.Atoi(v)
		if err != nil || runs < 1 || runs > MaxRuns {
			s.writeError(w, r, fmt.Errorf("%w: runs must be between 1 and %d", errBadRequest, MaxRuns))
			return
		}
	}

	in, err := simulate.LoadInput(r.Context(), s.source, s.opts.Formats, c, season)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	forecaster := &simulate.Forecaster{
		Factory: s.opts.Factory,
		Runs:    runs,
		Workers: s.opts.Workers,
		Seed:    s.opts.Seed,
		Log:     s.log,
	}
	if s.opts.Metrics != nil {
		forecaster.Observer = s.opts.Metrics
	}
	odds, err := forecaster.Forecast(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.source.SaveOdds(r.Context(), odds); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, odds)
}

func (s *Server) odds(w http.ResponseWriter, r *http.Request) {
	c, season, err := seasonVars(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	odds, err := s.source.LoadOdds(r.Context(), c, season)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if odds == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no odds for %s %s", c, season)})
		return
	}
	writeJSON(w, http.StatusOK, odds)
}

func competitionVars(r *http.Request) league.Competition {
	vars := mux.Vars(r)
	return league.Competition{Region: vars["region"], Name: vars["name"]}
}

func seasonVars(r *http.Request) (league.Competition, league.Season, error) {
	season, err := league.ParseSeason(mux.Vars(r)["season"])
	if err != nil {
		return league.Competition{}, league.Season{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return competitionVars(r), season, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, predict.ErrUnknownPredictor):
		status = http.StatusBadRequest
	case errors.Is(err, league.ErrUnsupported):
		status = http.StatusNotFound
	case errors.Is(err, league.ErrValidation),
		errors.Is(err, simulate.ErrUnsortedFixtures),
		errors.Is(err, simulate.ErrEmptyDistribution):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		status = 499
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", logger.String("path", r.URL.Path), logger.Error(err))
	} else {
		s.log.Debug("request rejected", logger.String("path", r.URL.Path), logger.Int("status", status), logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
