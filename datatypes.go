// Package fenmove recommends chess moves for positions given as FEN, either
// by ranking legal moves with a classifier trained on historical games or by
// delegating to an external UCI engine.
package fenmove

import (
	"context"
	"fmt"

	"github.com/notnil/chess"
	"github.com/pkg/errors"

	"github.com/fenmove/game"
)

var (
	// ErrModelNotFound is returned when no model artifact exists at the load path.
	ErrModelNotFound = errors.New("model not found")
	// ErrNoValidGames is returned when a corpus has no admitted games.
	ErrNoValidGames = errors.New("no valid games found in corpus")
	// ErrNoValidPositions is returned when admitted games yield no training positions.
	ErrNoValidPositions = errors.New("no valid training positions found")
	// ErrInvalidPosition is returned for positions without legal moves or with the game already over.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrEngineUnavailable is returned when the external engine cannot be located or started.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrNoMove is returned when the external engine answers without a usable move.
	ErrNoMove = errors.New("engine returned no move")
)

// Recommendation is the answer to a position query.
type Recommendation struct {
	Move  string // UCI notation
	Check bool
	Mate  bool
}

func (r Recommendation) String() string {
	return fmt.Sprintf("%s check=%t mate=%t", r.Move, r.Check, r.Mate)
}

// MoveSelector picks a move for a position. Implementations must not modify pos
// and must be safe for concurrent use.
type MoveSelector interface {
	SelectMove(ctx context.Context, pos *chess.Position) (Recommendation, error)
}

// TurnFilter is implemented by selectors that only answer some positions.
// Positions it does not accept get no response at all.
type TurnFilter interface {
	Accepts(pos *chess.Position) bool
}

// Classifier predicts class probabilities for a feature vector. Index 1 is
// the probability that White wins whenever both outcomes were seen in training.
type Classifier interface {
	Predict(x []float32) []float32
}

// Example is a labelled training position.
type Example struct {
	Features game.FeatureVector
	Label    float32 // 1 White won, 0 Black won
}

// decorate builds the recommendation for m played in pos. Check reports
// whether the side to move in pos is in check, Mate whether m mates.
func decorate(pos *chess.Position, m *chess.Move) Recommendation {
	return Recommendation{
		Move:  m.String(),
		Check: game.InCheck(pos),
		Mate:  game.IsCheckmate(pos.Update(m)),
	}
}
