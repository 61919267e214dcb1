package fenmove

import (
	"context"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fenmove/game"
)

// Scorer ranks legal moves by the classifier's White-win probability of the
// position each move leads to.
type Scorer struct {
	model  Classifier
	logger zerolog.Logger
}

// NewScorer wraps a fitted classifier. The classifier is only read.
func NewScorer(model Classifier, logger zerolog.Logger) *Scorer {
	return &Scorer{model: model, logger: logger}
}

// SelectMove returns the move with the highest score. Ties go to the move
// enumerated first.
func (s *Scorer) SelectMove(ctx context.Context, pos *chess.Position) (Recommendation, error) {
	moves := game.LegalMoves(pos)
	if len(moves) == 0 {
		return Recommendation{}, errors.Wrapf(ErrInvalidPosition, "no legal moves in %s", pos.String())
	}

	var (
		best      *chess.Move
		bestScore float32
	)
	for _, m := range moves {
		if err := ctx.Err(); err != nil {
			return Recommendation{}, errors.WithStack(err)
		}
		fv := game.Features(pos.Update(m))
		score, err := s.score(fv)
		if err != nil {
			return Recommendation{}, err
		}
		if best == nil || score > bestScore {
			best, bestScore = m, score
		}
	}

	s.logger.Debug().
		Str("fen", pos.String()).
		Str("move", best.String()).
		Float32("score", bestScore).
		Int("candidates", len(moves)).
		Msg("scored position")
	return decorate(pos, best), nil
}

func (s *Scorer) score(fv game.FeatureVector) (float32, error) {
	probs := s.model.Predict(fv[:])
	switch len(probs) {
	case 0:
		return 0, errors.New("classifier returned no probabilities")
	case 1:
		return probs[0], nil
	default:
		return probs[1], nil
	}
}
