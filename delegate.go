package fenmove

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fenmove/engine"
	"github.com/fenmove/game"
)

// Starter launches one external engine.
type Starter func() (engine.Engine, error)

// EngineStarter resolves the engine binary and starts it with conf.
func EngineStarter(r engine.Resolver, conf engine.Config) Starter {
	return func() (engine.Engine, error) {
		path, err := r.Resolve()
		if err != nil {
			return nil, err
		}
		return engine.Start(path, conf)
	}
}

// Delegate forwards positions to a pool of external engines. It only
// answers positions with Black to move: the remote side always plays White.
type Delegate struct {
	start  Starter
	pool   chan engine.Engine // nil entries are slots whose process must be restarted
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewDelegate starts size engines up front.
func NewDelegate(size int, start Starter, logger zerolog.Logger) (*Delegate, error) {
	if size < 1 {
		size = 1
	}
	d := &Delegate{
		start:  start,
		pool:   make(chan engine.Engine, size),
		logger: logger,
	}
	for i := 0; i < size; i++ {
		eng, err := start()
		if err != nil {
			for j := 0; j < i; j++ {
				(<-d.pool).Close()
			}
			return nil, errors.WithMessage(ErrEngineUnavailable, err.Error())
		}
		d.pool <- eng
	}
	logger.Info().Int("engines", size).Msg("external engines ready")
	return d, nil
}

// Accepts reports whether the delegate answers pos at all.
func (d *Delegate) Accepts(pos *chess.Position) bool {
	return pos.Turn() == chess.Black
}

// SelectMove asks an engine for its best move in pos.
func (d *Delegate) SelectMove(ctx context.Context, pos *chess.Position) (Recommendation, error) {
	if ended, method := game.Ended(pos); ended {
		return Recommendation{}, errors.Wrapf(ErrInvalidPosition, "game is already over (%v)", method)
	}

	var (
		eng engine.Engine
		ok  bool
	)
	select {
	case eng, ok = <-d.pool:
		if !ok {
			return Recommendation{}, errors.WithMessage(ErrEngineUnavailable, "delegate is closed")
		}
	case <-ctx.Done():
		return Recommendation{}, errors.WithStack(ctx.Err())
	}

	if eng == nil {
		var err error
		if eng, err = d.start(); err != nil {
			d.pool <- nil
			return Recommendation{}, errors.WithMessage(ErrEngineUnavailable, err.Error())
		}
		d.logger.Info().Msg("restarted external engine")
	}

	m, err := eng.BestMove(ctx, pos)
	if err != nil {
		// the process state is unknown after a failed exchange
		if cerr := eng.Close(); cerr != nil {
			d.logger.Warn().Err(cerr).Msg("close failed engine")
		}
		d.pool <- nil
		return Recommendation{}, err
	}
	d.pool <- eng

	if m == nil {
		return Recommendation{}, errors.Wrapf(ErrNoMove, "position %s", pos.String())
	}
	legal, found := game.FindMove(pos, m.String())
	if !found {
		return Recommendation{}, errors.Wrapf(ErrNoMove, "engine move %s is not legal in %s", m.String(), pos.String())
	}
	return decorate(pos, legal), nil
}

// Close waits for in-flight requests and stops every engine.
func (d *Delegate) Close() error {
	d.closeOnce.Do(func() {
		var errs error
		for i := 0; i < cap(d.pool); i++ {
			if eng := <-d.pool; eng != nil {
				if err := eng.Close(); err != nil {
					errs = multierror.Append(errs, err)
				}
			}
		}
		close(d.pool)
		d.closeErr = errs
	})
	return d.closeErr
}
