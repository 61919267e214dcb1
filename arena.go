package fenmove

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fenmove/game"
)

// Player is a selector taking part in an arena, with its running score.
type Player struct {
	Name     string
	Selector MoveSelector

	// Statistics
	Wins int
	Loss int
	Draw int
}

func (p *Player) String() string {
	return fmt.Sprintf("%s +%d -%d =%d", p.Name, p.Wins, p.Loss, p.Draw)
}

// ArenaConfig configures a match.
type ArenaConfig struct {
	Games       int    `json:"games"`
	RandomPlies int    `json:"random_plies"` // uniformly random opening plies, so games differ
	MaxPlies    int    `json:"max_plies"`    // longer games are adjudicated as draws, 0 is unlimited
	StartFEN    string `json:"start_fen"`    // empty is the standard start
	Seed        int64  `json:"seed"`
}

func DefaultArenaConfig() ArenaConfig {
	return ArenaConfig{
		Games:       10,
		RandomPlies: 4,
		MaxPlies:    300,
		Seed:        1,
	}
}

// GameResult is the record of one arena game.
type GameResult struct {
	Number int
	White  string
	Black  string
	Winner chess.Color // NoColor for draws
	Method chess.Method
	Moves  []string // UCI, random opening plies included
}

func (g GameResult) String() string {
	outcome := "1/2-1/2"
	switch g.Winner {
	case chess.White:
		outcome = "1-0"
	case chess.Black:
		outcome = "0-1"
	}
	return fmt.Sprintf("game %d: %s - %s %s (%v, %d plies)", g.Number, g.White, g.Black, outcome, g.Method, len(g.Moves))
}

// Arena plays two selectors against each other. Colours alternate between
// games, A has White in the first one.
type Arena struct {
	a, b   *Player
	conf   ArenaConfig
	r      *rand.Rand
	logger zerolog.Logger

	gameNumber int
}

// NewArena makes an arena for a and b.
func NewArena(a, b *Player, conf ArenaConfig, logger zerolog.Logger) *Arena {
	return &Arena{
		a:      a,
		b:      b,
		conf:   conf,
		r:      rand.New(rand.NewSource(conf.Seed)),
		logger: logger,
	}
}

// GameNumber returns the number of games played so far.
func (ar *Arena) GameNumber() int { return ar.gameNumber }

// Run plays conf.Games games and returns their records.
func (ar *Arena) Run(ctx context.Context) ([]GameResult, error) {
	results := make([]GameResult, 0, ar.conf.Games)
	for i := 0; i < ar.conf.Games; i++ {
		res, err := ar.Play(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	ar.logger.Info().Stringer("a", ar.a).Stringer("b", ar.b).Msg("match finished")
	return results, nil
}

// Play plays one game, and records who is the winner.
func (ar *Arena) Play(ctx context.Context) (GameResult, error) {
	white, black := ar.a, ar.b
	if ar.gameNumber%2 == 1 {
		white, black = black, white
	}
	ar.gameNumber++
	res := GameResult{Number: ar.gameNumber, White: white.Name, Black: black.Name}

	pos := chess.NewGame().Position()
	if ar.conf.StartFEN != "" {
		var err error
		if pos, err = game.Decode(ar.conf.StartFEN); err != nil {
			return res, err
		}
	}

	for ply := 0; ; ply++ {
		if ended, method := game.Ended(pos); ended {
			res.Method = method
			if method == chess.Checkmate {
				res.Winner = pos.Turn().Other()
			}
			break
		}
		if ar.conf.MaxPlies > 0 && ply >= ar.conf.MaxPlies {
			break
		}

		var m *chess.Move
		if ply < ar.conf.RandomPlies {
			moves := game.LegalMoves(pos)
			m = moves[ar.r.Intn(len(moves))]
		} else {
			current := white
			if pos.Turn() == chess.Black {
				current = black
			}
			rec, err := current.Selector.SelectMove(ctx, pos)
			if err != nil {
				return res, errors.WithMessagef(err, "%s at ply %d", current.Name, ply+1)
			}
			var ok bool
			if m, ok = game.FindMove(pos, rec.Move); !ok {
				return res, errors.Errorf("%s played illegal move %q in %s", current.Name, rec.Move, pos.String())
			}
		}
		res.Moves = append(res.Moves, m.String())
		pos = pos.Update(m)
	}

	switch res.Winner {
	case chess.White:
		white.Wins++
		black.Loss++
	case chess.Black:
		black.Wins++
		white.Loss++
	default:
		white.Draw++
		black.Draw++
	}
	ar.logger.Info().
		Int("game", res.Number).
		Str("white", res.White).
		Str("black", res.Black).
		Stringer("winner", res.Winner).
		Int("plies", len(res.Moves)).
		Str("moves", strings.Join(res.Moves, " ")).
		Msg("game over")
	return res, nil
}

// RandomSelector plays a uniformly random legal move. It is the baseline
// opponent of the arena.
type RandomSelector struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRandomSelector(seed int64) *RandomSelector {
	return &RandomSelector{r: rand.New(rand.NewSource(seed))}
}

func (s *RandomSelector) SelectMove(ctx context.Context, pos *chess.Position) (Recommendation, error) {
	moves := game.LegalMoves(pos)
	if len(moves) == 0 {
		return Recommendation{}, errors.Wrapf(ErrInvalidPosition, "no legal moves in %s", pos.String())
	}
	s.mu.Lock()
	m := moves[s.r.Intn(len(moves))]
	s.mu.Unlock()
	return decorate(pos, m), nil
}
