package fenmove

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenmove/forest"
	"github.com/fenmove/game"
)

const (
	ruyLopez = "1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 Nf6 5. O-O Be7 6. Re1 b5"              // 12 plies
	qgd      = "1. d4 d5 2. c4 e6 3. Nc3 Nf6 4. Bg5 Be7 5. e3 O-O 6. Nf3 Nbd7 7. Rc1 c6"    // 14 plies
	sicilian = "1. e4 c5 2. Nf3 d6 3. d4 cxd4 4. Nxd4 Nf6 5. Nc3 a6 6. Be2 e5 7. Nb3 Be7" // 14 plies
	italian  = "1. e4 e5 2. Nf3 Nc6 3. Bc4 Bc5 4. c3 Nf6 5. d3 d6 6. O-O O-O 7. Re1 a6"   // 14 plies
	illegal  = "1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 Nf6 5. O-O Be7 6. Re1 b5 7. Ke2 d6"  // Ke2 is illegal
)

func pgnGame(event, result string, elo bool, moves string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Event %q]\n[White \"w\"]\n[Black \"b\"]\n[Result %q]\n", event, result)
	if elo {
		sb.WriteString("[WhiteElo \"2100\"]\n[BlackElo \"2050\"]\n")
	}
	fmt.Fprintf(&sb, "\n%s %s\n\n", moves, result)
	return sb.String()
}

func corpusOf(games ...string) string {
	return strings.Join(games, "")
}

func testForestConf() forest.Config {
	conf := forest.DefaultConf()
	conf.Estimators = 10
	conf.Workers = 2
	return conf
}

func newTestTrainer() *Trainer {
	return NewTrainer(testForestConf(), zerolog.Nop())
}

func trainingCorpus() string {
	return corpusOf(
		pgnGame("ruy", "1-0", true, ruyLopez),
		pgnGame("qgd", "0-1", true, qgd),
		pgnGame("sicilian", "0-1", true, sicilian),
		pgnGame("italian", "1-0", true, italian),
	)
}

func TestCollectScenarioA(t *testing.T) {
	tr := newTestTrainer()
	examples, sum, err := tr.Collect(context.Background(), strings.NewReader(pgnGame("a", "1-0", true, ruyLopez)), 0)
	require.NoError(t, err)
	require.Len(t, examples, 2)
	for _, ex := range examples {
		assert.Equal(t, float32(1), ex.Label)
	}
	assert.Equal(t, Summary{Records: 1, Admitted: 1, Positions: 2}, sum)

	// the examples are the positions after plies 11 and 12
	var want []game.FeatureVector
	rec := game.Record{Movetext: ruyLopez}
	require.NoError(t, game.Replay(rec, func(ply int, pos *chess.Position) {
		if ply >= OpeningPlies {
			want = append(want, game.Features(pos))
		}
	}))
	assert.Equal(t, want, []game.FeatureVector{examples[0].Features, examples[1].Features})
}

func TestCollectScenarioB(t *testing.T) {
	tr := newTestTrainer()
	_, sum, err := tr.Collect(context.Background(), strings.NewReader(pgnGame("b", "1/2-1/2", true, qgd)), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoValidGames))
	assert.Equal(t, 1, sum.Admitted)
	assert.Equal(t, 1, sum.Excluded)
}

func TestCollectExcludesNonDecisive(t *testing.T) {
	tr := newTestTrainer()
	corpus := corpusOf(
		pgnGame("draw", "1/2-1/2", true, qgd),
		pgnGame("unknown", "*", true, sicilian),
		pgnGame("black", "0-1", true, italian),
		pgnGame("white", "1-0", true, ruyLopez),
	)
	examples, sum, err := tr.Collect(context.Background(), strings.NewReader(corpus), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Admitted)
	assert.Equal(t, 2, sum.Excluded)
	// italian gives 4 positions labelled 0, ruy lopez 2 labelled 1
	require.Len(t, examples, 6)
	labels := make([]float32, len(examples))
	for i, ex := range examples {
		labels[i] = ex.Label
	}
	assert.Equal(t, []float32{0, 0, 0, 0, 1, 1}, labels)
}

func TestCollectAdmission(t *testing.T) {
	tr := newTestTrainer()
	corpus := corpusOf(
		pgnGame("no elo", "1-0", false, qgd),
		pgnGame("ok", "1-0", true, ruyLopez),
	)
	examples, sum, err := tr.Collect(context.Background(), strings.NewReader(corpus), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Records)
	assert.Equal(t, 1, sum.Admitted)
	assert.Len(t, examples, 2)
}

func TestCollectMaxGamesSkipsCorrupt(t *testing.T) {
	tr := newTestTrainer()
	corrupt := "[Event \"broken\n[Result \"1-0\"]\n\n1. e4 e5 1-0\n\n"
	corpus := corpusOf(
		corrupt,
		pgnGame("first", "1-0", true, ruyLopez),
		pgnGame("second", "0-1", true, qgd),
	)
	examples, sum, err := tr.Collect(context.Background(), strings.NewReader(corpus), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Corrupt)
	assert.Equal(t, 1, sum.Admitted)
	assert.Len(t, examples, 2)
}

func TestCollectReplayFailure(t *testing.T) {
	tr := newTestTrainer()
	corpus := corpusOf(
		pgnGame("broken", "1-0", true, illegal),
		pgnGame("ok", "0-1", true, qgd),
	)
	examples, sum, err := tr.Collect(context.Background(), strings.NewReader(corpus), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ReplayFailures)
	assert.Len(t, examples, 4)
	for _, ex := range examples {
		assert.Equal(t, float32(0), ex.Label)
	}
}

func TestCollectNoPositions(t *testing.T) {
	tr := newTestTrainer()
	_, _, err := tr.Collect(context.Background(), strings.NewReader(pgnGame("short", "1-0", true, "1. e4 e5 2. Nf3")), 0)
	assert.True(t, errors.Is(err, ErrNoValidPositions))

	_, _, err = tr.Collect(context.Background(), strings.NewReader(""), 0)
	assert.True(t, errors.Is(err, ErrNoValidGames))
}

func TestTrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.pgn")
	require.NoError(t, os.WriteFile(path, []byte(trainingCorpus()), 0644))

	model, sum, err := newTestTrainer().Train(context.Background(), path, 1000)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Admitted)
	assert.Equal(t, 2+4+4+4, sum.Positions)
	assert.InDelta(t, 6.0/14.0, sum.WhiteWinRate, 1e-9)
	assert.Equal(t, []float32{0, 1}, model.Classes)
	assert.Len(t, model.Trees, 10)

	_, _, err = newTestTrainer().Train(context.Background(), filepath.Join(t.TempDir(), "missing.pgn"), 10)
	assert.Error(t, err)
}

func TestMatrix(t *testing.T) {
	examples := []Example{
		{Features: game.FeatureVector{1, 2, 3, 4, 5, 6, 7}, Label: 1},
		{Features: game.FeatureVector{8, 9, 10, 11, 12, 13, 14}, Label: 0},
	}
	X, y := Matrix(examples)
	assert.Equal(t, []int{2, game.NumFeatures}, []int(X.Shape()))
	assert.Equal(t, []float32{1, 0}, y)
	data := X.Data().([]float32)
	assert.Equal(t, float32(8), data[game.NumFeatures])
}

func TestDescribe(t *testing.T) {
	examples := []Example{
		{Features: game.FeatureVector{1, 0, 0, 0, 0, 0, 20}},
		{Features: game.FeatureVector{3, 0, 0, 0, 0, 1, 30}},
		{Features: game.FeatureVector{5, 0, 0, 0, 0, 0, 40}},
	}
	X, _ := Matrix(examples)
	stats, err := Describe(X)
	require.NoError(t, err)
	require.Len(t, stats, game.NumFeatures)

	assert.Equal(t, "material", stats[game.FeatMaterial].Name)
	assert.InDelta(t, 3, stats[game.FeatMaterial].Mean, 1e-9)
	assert.InDelta(t, 2, stats[game.FeatMaterial].Std, 1e-9)
	assert.InDelta(t, 30, stats[game.FeatMobility].Mean, 1e-9)
	assert.Zero(t, stats[game.FeatWhiteKingside].Std)

	// the matrix keeps its sample-major layout
	assert.Equal(t, float32(3), X.Data().([]float32)[game.NumFeatures])
}
