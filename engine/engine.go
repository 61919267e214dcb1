// Package engine drives an external UCI chess engine such as Stockfish.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/notnil/chess"
	"github.com/notnil/chess/uci"
	"github.com/pkg/errors"
)

// Engine answers "best move for this position" requests. An Engine serves
// one request at a time.
type Engine interface {
	BestMove(ctx context.Context, pos *chess.Position) (*chess.Move, error)
	Close() error
}

// Config configures engine processes.
type Config struct {
	Path     string        `json:"path"`      // explicit binary, empty means discover
	MoveTime time.Duration `json:"move_time"` // search time per request
	Depth    int           `json:"depth"`     // search depth, used when MoveTime is zero
	PoolSize int           `json:"pool_size"` // engine processes serving requests concurrently
}

func DefaultConfig() Config {
	return Config{
		MoveTime: 100 * time.Millisecond,
		PoolSize: 1,
	}
}

func (c Config) IsValid() bool {
	return c.PoolSize >= 1 && c.MoveTime >= 0 && c.Depth >= 0 && (c.MoveTime > 0 || c.Depth > 0)
}

// UCI is an Engine backed by a child process speaking UCI.
type UCI struct {
	eng  *uci.Engine
	conf Config
}

// Start launches the engine binary at path and performs the UCI handshake.
func Start(path string, conf Config) (*UCI, error) {
	eng, err := uci.New(path)
	if err != nil {
		return nil, errors.Wrapf(err, "start engine %s", path)
	}
	if err := eng.Run(uci.CmdUCI, uci.CmdIsReady, uci.CmdUCINewGame); err != nil {
		eng.Close()
		return nil, errors.Wrapf(err, "uci handshake with %s", path)
	}
	return &UCI{eng: eng, conf: conf}, nil
}

// BestMove sends the position and waits for the engine's bestmove. A nil
// move without error means the engine had nothing to play.
func (e *UCI) BestMove(ctx context.Context, pos *chess.Position) (*chess.Move, error) {
	cmdPos := uci.CmdPosition{Position: pos}
	cmdGo := uci.CmdGo{MoveTime: e.conf.MoveTime}
	if e.conf.MoveTime == 0 {
		cmdGo = uci.CmdGo{Depth: e.conf.Depth}
	}

	done := make(chan error, 1)
	go func() {
		done <- e.eng.Run(cmdPos, cmdGo)
	}()
	select {
	case <-ctx.Done():
		// the process is left mid-search; callers must discard this engine
		return nil, errors.WithStack(ctx.Err())
	case err := <-done:
		if err != nil {
			if nullMove(err) {
				return nil, nil
			}
			return nil, errors.Wrap(err, "engine search")
		}
	}
	return e.eng.SearchResults().BestMove, nil
}

// nullMove reports whether err is the uci package failing to decode the
// "bestmove (none)" or "bestmove 0000" an engine sends with nothing to play.
func nullMove(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, `"(none)"`) || strings.Contains(msg, `"0000"`)
}

// Close stops the engine process.
func (e *UCI) Close() error {
	return e.eng.Close()
}
