package fenmove

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"

	"github.com/fenmove/forest"
	"github.com/fenmove/game"
)

// OpeningPlies is the number of plies at the start of every game that never
// become training positions.
const OpeningPlies = 10

// RequiredTags must all be present for a game to be admitted.
var RequiredTags = []string{"Result", "WhiteElo", "BlackElo"}

// Summary describes what a training run consumed.
type Summary struct {
	Records        int     // parsed records
	Corrupt        int     // unparseable records, skipped
	Admitted       int     // records carrying all RequiredTags
	Excluded       int     // admitted games without a decisive result
	ReplayFailures int     // decisive games whose movetext could not be replayed
	Positions      int     // training examples
	WhiteWinRate   float64 // share of examples labelled 1
}

// Trainer builds a forest from a corpus of historical games.
type Trainer struct {
	conf   forest.Config
	logger zerolog.Logger
}

// NewTrainer returns a trainer fitting forests configured by conf.
func NewTrainer(conf forest.Config, logger zerolog.Logger) *Trainer {
	return &Trainer{conf: conf, logger: logger}
}

// Train reads up to maxGames admitted games from the PGN file at corpusPath
// and fits a forest on their positions. maxGames <= 0 reads the whole file.
func (t *Trainer) Train(ctx context.Context, corpusPath string, maxGames int) (*forest.Forest, Summary, error) {
	f, err := os.Open(corpusPath)
	if err != nil {
		return nil, Summary{}, errors.Wrap(err, "open corpus")
	}
	defer f.Close()

	examples, sum, err := t.Collect(ctx, f, maxGames)
	if err != nil {
		return nil, sum, err
	}
	model, err := t.Fit(ctx, examples)
	if err != nil {
		return nil, sum, err
	}
	sum.WhiteWinRate = whiteWinRate(examples)
	return model, sum, nil
}

// Collect turns the admitted games of r into labelled examples.
func (t *Trainer) Collect(ctx context.Context, r io.Reader, maxGames int) ([]Example, Summary, error) {
	var (
		sum      Summary
		admitted []game.Record
		rr       = game.NewRecordReader(r)
	)
	for maxGames <= 0 || len(admitted) < maxGames {
		rec, err := rr.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, game.ErrCorruptRecord) {
			sum.Corrupt++
			t.logger.Warn().Err(err).Msg("skipping corrupt game")
			continue
		}
		if err != nil {
			return nil, sum, err
		}
		sum.Records++
		if rec.HasTags(RequiredTags...) {
			admitted = append(admitted, rec)
		}
	}
	sum.Admitted = len(admitted)

	var (
		examples []Example
		failures error
	)
	for _, rec := range admitted {
		if err := ctx.Err(); err != nil {
			return nil, sum, errors.WithStack(err)
		}
		out := gameExamples(rec)
		switch {
		case out.excluded:
			sum.Excluded++
		case out.err != nil:
			sum.ReplayFailures++
			failures = multierror.Append(failures, out.err)
			t.logger.Warn().Err(out.err).Msg("skipping corrupt game segment")
		default:
			examples = append(examples, out.examples...)
		}
	}
	sum.Positions = len(examples)

	if failures != nil {
		t.logger.Info().Err(failures).Int("games", sum.ReplayFailures).Msg("games dropped during replay")
	}
	if sum.Admitted == sum.Excluded {
		return nil, sum, errors.Wrapf(ErrNoValidGames, "%d records, %d admitted, none decisive", sum.Records, sum.Admitted)
	}
	if len(examples) == 0 {
		return nil, sum, ErrNoValidPositions
	}
	return examples, sum, nil
}

// gameOutcome is what one admitted game contributes: examples, nothing
// because it was not decisive, or nothing because it failed to replay.
type gameOutcome struct {
	examples []Example
	excluded bool
	err      error
}

func gameExamples(rec game.Record) gameOutcome {
	var label float32
	switch result, _ := rec.Tag("Result"); result {
	case game.ResultWhiteWin:
		label = 1
	case game.ResultBlackWin:
		label = 0
	default:
		return gameOutcome{excluded: true}
	}

	var examples []Example
	err := game.Replay(rec, func(ply int, pos *chess.Position) {
		if ply < OpeningPlies {
			return
		}
		examples = append(examples, Example{Features: game.Features(pos), Label: label})
	})
	if err != nil {
		return gameOutcome{err: errors.WithMessage(err, describe(rec))}
	}
	return gameOutcome{examples: examples}
}

func describe(rec game.Record) string {
	white, _ := rec.Tag("White")
	black, _ := rec.Tag("Black")
	event, _ := rec.Tag("Event")
	return event + ": " + white + " - " + black
}

// Fit trains a forest on examples.
func (t *Trainer) Fit(ctx context.Context, examples []Example) (*forest.Forest, error) {
	if len(examples) == 0 {
		return nil, ErrNoValidPositions
	}
	X, y := Matrix(examples)
	t.logStats(X, y)

	t.logger.Info().Int("positions", len(examples)).Msg("training")
	model := forest.New(t.conf)
	if err := model.Fit(ctx, X, y); err != nil {
		return nil, errors.WithMessage(err, "train fail")
	}
	return model, nil
}

// Matrix packs examples into a samples × features matrix and a label vector.
func Matrix(examples []Example) (*tensor.Dense, []float32) {
	backing := make([]float32, 0, len(examples)*game.NumFeatures)
	y := make([]float32, len(examples))
	for i, ex := range examples {
		backing = append(backing, ex.Features[:]...)
		y[i] = ex.Label
	}
	X := tensor.New(tensor.WithBacking(backing), tensor.WithShape(len(examples), game.NumFeatures))
	return X, y
}

func whiteWinRate(examples []Example) float64 {
	labels := make([]float32, len(examples))
	for i, ex := range examples {
		labels[i] = ex.Label
	}
	return mean(labels)
}

func mean(v []float32) float64 {
	return stat.Mean(float64s(v), nil)
}

func float64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// FeatureStats is the distribution of one feature over a training matrix.
type FeatureStats struct {
	Name      string
	Mean, Std float64
}

// Describe summarises each column of the samples × features matrix X.
func Describe(X *tensor.Dense) ([]FeatureStats, error) {
	cols, err := forest.Columns(X)
	if err != nil {
		return nil, err
	}
	out := make([]FeatureStats, len(cols))
	for j, col := range cols {
		out[j].Name = fmt.Sprintf("f%d", j)
		if j < len(game.FeatureNames) {
			out[j].Name = game.FeatureNames[j]
		}
		out[j].Mean, out[j].Std = stat.MeanStdDev(float64s(col), nil)
	}
	return out, nil
}

func (t *Trainer) logStats(X *tensor.Dense, y []float32) {
	if t.logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	stats, err := Describe(X)
	if err != nil {
		t.logger.Debug().Err(err).Msg("feature distribution")
		return
	}
	for _, fs := range stats {
		t.logger.Debug().Str("feature", fs.Name).Float64("mean", fs.Mean).Float64("std", fs.Std).Msg("feature distribution")
	}
	t.logger.Debug().Float64("white_win_rate", mean(y)).Msg("label balance")
}
