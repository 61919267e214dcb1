package game

import (
	"io"
	"strings"
	"testing"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	foolsMateFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	stalemateFEN = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
)

func mustDecode(t *testing.T, fen string) *chess.Position {
	t.Helper()
	pos, err := Decode(fen)
	require.NoError(t, err)
	return pos
}

func TestDecode(t *testing.T) {
	_, err := Decode("")
	assert.Error(t, err)
	_, err = Decode("not a fen")
	assert.Error(t, err)

	pos := mustDecode(t, StartFEN)
	assert.Equal(t, chess.White, pos.Turn())
	assert.Len(t, LegalMoves(pos), 20)
}

func TestFeaturesStartPosition(t *testing.T) {
	fv := Features(mustDecode(t, StartFEN))
	assert.Equal(t, FeatureVector{0, 1, 1, 1, 1, 0, 20}, fv)
}

func TestFeatures(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		want FeatureVector
	}{
		{"rooks only white", "4k3/8/8/8/8/8/8/R3K2R w KQ - 0 1", FeatureVector{10, 1, 1, 0, 0, 0, 26}},
		{"black queen up", "3qk3/8/8/8/8/8/8/4K3 w - - 0 1", FeatureVector{-9, 0, 0, 0, 0, 0, 3}},
		{"checkmated", foolsMateFEN, FeatureVector{0, 1, 1, 1, 1, 1, 0}},
		{"stalemate", stalemateFEN, FeatureVector{9, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := Features(mustDecode(t, tt.fen))
			assert.Equal(t, tt.want, fv)
			for _, i := range []int{FeatWhiteKingside, FeatWhiteQueenside, FeatBlackKingside, FeatBlackQueenside, FeatInCheck} {
				assert.Contains(t, []float32{0, 1}, fv[i])
			}
			assert.GreaterOrEqual(t, fv[FeatMobility], float32(0))
		})
	}
}

func TestFeaturesIgnoreHistory(t *testing.T) {
	// reach the same position through two move orders
	a := chess.NewGame().Position()
	b := chess.NewGame().Position()
	for _, s := range []string{"Nf3", "Nf6", "Nc3", "Nc6"} {
		m, err := DecodeSAN(a, s)
		require.NoError(t, err)
		a = a.Update(m)
	}
	for _, s := range []string{"Nc3", "Nc6", "Nf3", "Nf6"} {
		m, err := DecodeSAN(b, s)
		require.NoError(t, err)
		b = b.Update(m)
	}
	assert.Equal(t, Features(a), Features(b))
}

func TestInCheck(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		want bool
	}{
		{"start", StartFEN, false},
		{"queen check", foolsMateFEN, true},
		{"knight check", "4k3/8/3N4/8/8/8/8/4K3 b - - 0 1", true},
		{"pawn check", "4k3/3P4/8/8/8/8/8/4K3 b - - 0 1", true},
		{"pawn behind", "4k3/8/8/8/8/8/3p4/4K3 b - - 0 1", false},
		{"black pawn check", "4k3/8/8/8/8/8/3p4/4K3 w - - 0 1", true},
		{"blocked rook", "4k3/4p3/8/8/8/8/8/4RK2 b - - 0 1", false},
		{"rook check", "4k3/8/8/8/8/8/8/4RK2 b - - 0 1", true},
		{"stalemate", stalemateFEN, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InCheck(mustDecode(t, tt.fen)))
		})
	}
}

func TestEnded(t *testing.T) {
	ended, method := Ended(mustDecode(t, foolsMateFEN))
	assert.True(t, ended)
	assert.Equal(t, chess.Checkmate, method)

	ended, method = Ended(mustDecode(t, stalemateFEN))
	assert.True(t, ended)
	assert.Equal(t, chess.Stalemate, method)

	ended, _ = Ended(mustDecode(t, StartFEN))
	assert.False(t, ended)

	assert.True(t, IsCheckmate(mustDecode(t, foolsMateFEN)))
	assert.False(t, IsCheckmate(mustDecode(t, stalemateFEN)))
}

func TestFindMove(t *testing.T) {
	pos := mustDecode(t, StartFEN)
	m, ok := FindMove(pos, "e2e4")
	require.True(t, ok)
	assert.Equal(t, "e2e4", m.String())

	_, ok = FindMove(pos, "e2e5")
	assert.False(t, ok)
}

func TestTokens(t *testing.T) {
	movetext := "1. e4 {best by test} e5 2. Nf3 (2. f4 exf4 3. Nf3) Nc6 $1 ; rest of line\n3.Bb5 a6!? 4... Ba4 1-0"
	assert.Equal(t, []string{"e4", "e5", "Nf3", "Nc6", "Bb5", "a6!?", "Ba4"}, Tokens(movetext))
}

func TestDecodeSAN(t *testing.T) {
	pos := mustDecode(t, "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	for _, s := range []string{"O-O", "0-0", "O-O+", "e1g1"} {
		m, err := DecodeSAN(pos, s)
		require.NoError(t, err, s)
		assert.Equal(t, "e1g1", m.String())
	}

	promo := mustDecode(t, "8/P6k/8/8/8/8/8/K7 w - - 0 1")
	m, err := DecodeSAN(promo, "a8=Q+")
	require.NoError(t, err)
	assert.Equal(t, "a7a8q", m.String())

	_, err = DecodeSAN(pos, "Qd4")
	assert.Error(t, err)

	start := mustDecode(t, StartFEN)
	for _, s := range []string{"Nf3", "Ngf3", "Ng1f3", "N1f3", "Nf3!?", "g1f3"} {
		m, err := DecodeSAN(start, s)
		require.NoError(t, err, s)
		assert.Equal(t, "g1f3", m.String(), s)
	}
	m, err = DecodeSAN(start, "f3")
	require.NoError(t, err)
	assert.Equal(t, "f2f3", m.String())
	_, err = DecodeSAN(start, "Ng1-f3")
	assert.Error(t, err)
}

func TestReplayRedundantDisambiguation(t *testing.T) {
	rec := Record{Movetext: "1. e2e4 e7e5 2. Ng1f3 Nbc6 3. Bf1b5 a6 4. Bxc6 dxc6 5. 0-0 1-0"}
	var moves int
	var last *chess.Position
	require.NoError(t, Replay(rec, func(ply int, pos *chess.Position) {
		moves++
		last = pos
	}))
	assert.Equal(t, 9, moves)
	assert.Equal(t, "r1bqkbnr/1pp2ppp/p1p5/4p3/4P3/5N2/PPPP1PPP/RNBQ1RK1 b kq - 1 5", last.String())
}

const corpus = `[Event "one"]
[Result "1-0"]
[WhiteElo "2000"]
[BlackElo "1900"]

1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0

[Event "broken
[Result "0-1"]

1. f3 e5 2. g4 Qh4# 0-1

[Event "three"]
[Result "1/2-1/2"]

1. d4 d5 1/2-1/2
`

func TestRecordReader(t *testing.T) {
	rr := NewRecordReader(strings.NewReader(corpus))

	rec, err := rr.Next()
	require.NoError(t, err)
	assert.True(t, rec.HasTags("Result", "WhiteElo", "BlackElo"))
	result, _ := rec.Tag("Result")
	assert.Equal(t, ResultWhiteWin, result)
	assert.Len(t, Tokens(rec.Movetext), 7)

	_, err = rr.Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptRecord))

	rec, err = rr.Next()
	require.NoError(t, err)
	assert.False(t, rec.HasTags("WhiteElo"))
	assert.Equal(t, "three", rec.Tags["Event"])

	_, err = rr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReplay(t *testing.T) {
	rec := Record{Movetext: "1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0"}
	var plies []int
	var last *chess.Position
	err := Replay(rec, func(ply int, pos *chess.Position) {
		plies = append(plies, ply)
		last = pos
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, plies)
	assert.True(t, IsCheckmate(last))

	bad := Record{Movetext: "1. e4 e5 2. Ke3 1-0"}
	count := 0
	err = Replay(bad, func(int, *chess.Position) { count++ })
	assert.Error(t, err)
	assert.Equal(t, 2, count)

	fromFEN := Record{Tags: map[string]string{"FEN": stalemateFEN}, Movetext: "*"}
	require.NoError(t, Replay(fromFEN, func(int, *chess.Position) { t.Fatal("no moves expected") }))
}
