package automl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/autotab/api/internal/dataset"
	"go.uber.org/zap"
)

var (
	ErrNoFeatures  = errors.New("no usable feature columns")
	ErrTooFewFolds = errors.New("too few labelled training rows for cross-validation")
)

// Options configures one search.
type Options struct {
	Folds                      int
	TuneIterations             int
	Seed                       int64
	FixImbalance               bool
	FeatureSelection           bool
	FeatureFraction            float64
	RemoveMulticollinearity    bool
	MulticollinearityThreshold float64
	MaxOneHot                  int
	// Include limits the compared candidates by ID; empty means all.
	Include []string
}

// DefaultOptions enables every preprocessing step with the usual settings.
func DefaultOptions() Options {
	return Options{
		Folds:                      10,
		TuneIterations:             10,
		Seed:                       42,
		FixImbalance:               true,
		FeatureSelection:           true,
		FeatureFraction:            DefaultFeatureFraction,
		RemoveMulticollinearity:    true,
		MulticollinearityThreshold: DefaultMulticollinearityThreshold,
		MaxOneHot:                  DefaultMaxOneHot,
	}
}

func (o Options) withDefaults() Options {
	if o.Folds <= 0 {
		o.Folds = 10
	}
	if o.TuneIterations < 0 {
		o.TuneIterations = 0
	}
	if o.FeatureFraction <= 0 {
		o.FeatureFraction = DefaultFeatureFraction
	}
	if o.MulticollinearityThreshold <= 0 {
		o.MulticollinearityThreshold = DefaultMulticollinearityThreshold
	}
	if o.MaxOneHot <= 0 {
		o.MaxOneHot = DefaultMaxOneHot
	}
	return o
}

// Searcher selects and tunes a model for a training partition.
type Searcher interface {
	Search(ctx context.Context, train *dataset.Dataset, pt ProblemType, opt Options) (*Result, error)
}

// LeaderboardEntry is one compared candidate.
type LeaderboardEntry struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Params Params  `json:"params,omitempty"`
	Err    string  `json:"error,omitempty"`
}

// Result is the outcome of a search.
type Result struct {
	Pipeline    *Pipeline
	Leaderboard []LeaderboardEntry
	Metric      string
	Score       float64
	Tuned       bool
}

// Engine is the in-process Searcher.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

type fold struct {
	train []int
	test  []int
}

// prepared is the encoded training partition shared by every fit.
type prepared struct {
	pt       ProblemType
	nClasses int
	X        [][]float64
	y        []float64
	folds    []fold
	opt      Options
}

// Search compares every candidate with k-fold cross-validation, tunes the
// winner with a random search and refits it on the whole partition.
func (e *Engine) Search(ctx context.Context, train *dataset.Dataset, pt ProblemType, opt Options) (*Result, error) {
	opt = opt.withDefaults()
	if err := train.Validate(); err != nil {
		return nil, err
	}

	te := fitTarget(train.Target(), pt)
	y, rows := te.encode(train.Target())
	if len(rows) < 2 {
		return nil, ErrTooFewFolds
	}
	labelled := train
	if len(rows) != train.NumRows() {
		e.logger.Info("dropping rows with a missing target",
			zap.Int("dropped", train.NumRows()-len(rows)))
		labelled = train.Subset(rows)
	}

	pre := FitPreprocessor(labelled, opt.MaxOneHot)
	if pre.Width() == 0 {
		return nil, ErrNoFeatures
	}
	X, err := pre.Transform(labelled)
	if err != nil {
		return nil, err
	}

	selected := make([]int, pre.Width())
	for i := range selected {
		selected[i] = i
	}
	if opt.RemoveMulticollinearity {
		selected = removeCollinear(X, y, selected, opt.MulticollinearityThreshold)
	}
	if opt.FeatureSelection {
		selected = selectFeatures(X, y, selected, pt, te.nClasses(), opt.FeatureFraction)
	}
	e.logger.Debug("features selected",
		zap.Int("encoded", pre.Width()),
		zap.Int("selected", len(selected)),
	)

	data := &prepared{
		pt:       pt,
		nClasses: te.nClasses(),
		X:        project(X, selected),
		y:        y,
		opt:      opt,
	}
	data.folds = makeFolds(data.y, pt, opt.Folds, opt.Seed)

	cands, err := filterCandidates(CandidatesFor(pt), opt.Include)
	if err != nil {
		return nil, err
	}

	var board []LeaderboardEntry
	bestIdx := -1
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := e.crossValidate(ctx, data, c, c.Defaults)
		entry := LeaderboardEntry{ID: c.ID, Name: c.Name, Score: s, Params: c.Defaults}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("candidate failed", zap.String("candidate", c.ID), zap.Error(err))
			entry.Score = math.Inf(-1)
			entry.Err = err.Error()
		} else {
			e.logger.Debug("candidate scored", zap.String("candidate", c.ID), zap.Float64("score", s))
		}
		board = append(board, entry)
		if entry.Err == "" && (bestIdx < 0 || entry.Score > board[bestIdx].Score) {
			bestIdx = len(board) - 1
		}
	}
	if bestIdx < 0 {
		return nil, ErrNoCandidates
	}

	best := cands[bestIdx]
	bestParams := best.Defaults.Clone()
	bestScore := board[bestIdx].Score
	tuned := false
	if len(best.Grid) > 0 && opt.TuneIterations > 0 {
		p, s, err := e.tune(ctx, data, best, bestScore)
		if err != nil {
			return nil, err
		}
		if s > bestScore {
			bestParams, bestScore, tuned = p, s, true
		}
	}

	est, err := e.fitFinal(data, best, bestParams)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", best.ID, err)
	}

	sort.SliceStable(board, func(a, b int) bool { return board[a].Score > board[b].Score })
	for i := range board {
		if math.IsInf(board[i].Score, -1) {
			board[i].Score = 0
		}
	}

	e.logger.Info("model selected",
		zap.String("algorithm", best.ID),
		zap.String("metric", MetricFor(pt)),
		zap.Float64("score", bestScore),
		zap.Bool("tuned", tuned),
	)

	pl := &Pipeline{
		Problem:       pt,
		TargetName:    train.Target().Name,
		Algorithm:     best.ID,
		AlgorithmName: best.Name,
		Params:        bestParams,
		Metric:        MetricFor(pt),
		CVScore:       bestScore,
		Pre:           pre,
		Target:        te,
		Selected:      selected,
		Estimator:     est,
	}
	return &Result{
		Pipeline:    pl,
		Leaderboard: board,
		Metric:      pl.Metric,
		Score:       bestScore,
		Tuned:       tuned,
	}, nil
}

// crossValidate returns the mean fold score of a candidate.
func (e *Engine) crossValidate(ctx context.Context, d *prepared, c Candidate, p Params) (float64, error) {
	total := 0.0
	for i, f := range d.folds {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		Xtr, ytr := pick(d.X, d.y, f.train)
		if d.pt == Classification && d.opt.FixImbalance {
			Xtr, ytr = smote(Xtr, ytr, d.nClasses, rand.New(rand.NewSource(d.opt.Seed+int64(i))))
		}
		est := c.New(p, d.nClasses, d.opt.Seed)
		if err := est.Fit(Xtr, ytr); err != nil {
			return 0, err
		}
		Xte, yte := pick(d.X, d.y, f.test)
		s := score(d.pt, yte, est.Predict(Xte), d.nClasses)
		if math.IsNaN(s) {
			s = 0
		}
		total += s
	}
	return total / float64(len(d.folds)), nil
}

// tune draws TuneIterations parameter sets from the candidate grid and
// returns the best one found.
func (e *Engine) tune(ctx context.Context, d *prepared, c Candidate, baseline float64) (Params, float64, error) {
	rng := rand.New(rand.NewSource(d.opt.Seed))
	keys := c.Grid.keys()
	tried := map[string]bool{paramsKey(c.Defaults, keys): true}
	bestParams, bestScore := c.Defaults.Clone(), baseline
	for it := 0; it < d.opt.TuneIterations; it++ {
		p := c.Defaults.Clone()
		for _, k := range keys {
			vals := c.Grid[k]
			p[k] = vals[rng.Intn(len(vals))]
		}
		key := paramsKey(p, keys)
		if tried[key] {
			continue
		}
		tried[key] = true
		s, err := e.crossValidate(ctx, d, c, p)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			e.logger.Debug("tuning draw failed", zap.String("candidate", c.ID), zap.Error(err))
			continue
		}
		if s > bestScore {
			bestParams, bestScore = p, s
		}
	}
	return bestParams, bestScore, nil
}

func (e *Engine) fitFinal(d *prepared, c Candidate, p Params) (Estimator, error) {
	X, y := d.X, d.y
	if d.pt == Classification && d.opt.FixImbalance {
		X, y = smote(X, y, d.nClasses, rand.New(rand.NewSource(d.opt.Seed)))
	}
	est := c.New(p, d.nClasses, d.opt.Seed)
	if err := est.Fit(X, y); err != nil {
		return nil, err
	}
	return est, nil
}

// makeFolds assigns rows to k folds, bounded by the row count. Classification
// folds are stratified: rows are shuffled within each class and dealt out
// round-robin so every fold sees a similar class mix.
func makeFolds(y []float64, pt ProblemType, k int, seed int64) []fold {
	n := len(y)
	if k > n {
		k = n
	}
	if k < 2 {
		k = 2
	}
	rng := rand.New(rand.NewSource(seed))
	assign := make([]int, n)
	if pt == Classification {
		groups := map[int][]int{}
		var classes []int
		for i, c := range y {
			if _, ok := groups[int(c)]; !ok {
				classes = append(classes, int(c))
			}
			groups[int(c)] = append(groups[int(c)], i)
		}
		sort.Ints(classes)
		next := 0
		for _, c := range classes {
			rows := groups[c]
			rng.Shuffle(len(rows), func(a, b int) { rows[a], rows[b] = rows[b], rows[a] })
			for _, r := range rows {
				assign[r] = next % k
				next++
			}
		}
	} else {
		for pos, r := range rng.Perm(n) {
			assign[r] = pos % k
		}
	}

	folds := make([]fold, k)
	for i := 0; i < n; i++ {
		for f := range folds {
			if assign[i] == f {
				folds[f].test = append(folds[f].test, i)
			} else {
				folds[f].train = append(folds[f].train, i)
			}
		}
	}
	return folds
}

func filterCandidates(all []Candidate, include []string) ([]Candidate, error) {
	if len(include) == 0 {
		return all, nil
	}
	want := map[string]bool{}
	for _, id := range include {
		want[strings.TrimSpace(id)] = true
	}
	var out []Candidate
	for _, c := range all {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEstimator, strings.Join(include, ","))
	}
	return out, nil
}

func paramsKey(p Params, keys []string) string {
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%g;", k, p[k])
	}
	return b.String()
}

func pick(X [][]float64, y []float64, rows []int) ([][]float64, []float64) {
	px := make([][]float64, len(rows))
	py := make([]float64, len(rows))
	for i, r := range rows {
		px[i] = X[r]
		py[i] = y[r]
	}
	return px, py
}

// project keeps the given feature columns of X.
func project(X [][]float64, cols []int) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(cols))
		for k, j := range cols {
			r[k] = row[j]
		}
		out[i] = r
	}
	return out
}
