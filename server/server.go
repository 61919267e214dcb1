// Package server exposes a move selector over a line-oriented TCP protocol.
//
// A client sends "FEN <position>" lines and receives one
// "MOVE <uci> CHECK <0|1> MATE <0|1>" or "ERROR <message>" line per request.
package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/fenmove"
	"github.com/fenmove/game"
)

// ErrLineTooLong is returned when a request line exceeds Config.MaxLineBytes.
var ErrLineTooLong = errors.New("line too long")

const readBufferSize = 1024

// Config configures a Server.
type Config struct {
	Host           string
	Port           int
	MaxConnections int64         // concurrent sessions, 0 is unbounded
	IdleTimeout    time.Duration // per read, 0 waits forever
	MaxLineBytes   int           // 0 is unbounded
	StrictProtocol bool          // reject unknown request lines instead of ignoring them
}

func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           12345,
		MaxLineBytes:   64 << 10,
		StrictProtocol: true,
	}
}

func (c Config) IsValid() bool {
	return c.Port >= 0 && c.Port <= 65535 && c.MaxConnections >= 0 && c.IdleTimeout >= 0 && c.MaxLineBytes >= 0
}

// Addr is the listen address host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server answers position requests with the moves of a selector.
type Server struct {
	conf   Config
	sel    fenmove.MoveSelector
	filter fenmove.TurnFilter // optional
	logger zerolog.Logger
	sem    *semaphore.Weighted

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// New returns a server dispatching requests to sel. If sel implements
// fenmove.TurnFilter, positions it does not accept get no response.
func New(conf Config, sel fenmove.MoveSelector, logger zerolog.Logger) *Server {
	s := &Server{
		conf:   conf,
		sel:    sel,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
	if f, ok := sel.(fenmove.TurnFilter); ok {
		s.filter = f
	}
	if conf.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(conf.MaxConnections)
	}
	return s
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled or Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.conf.Addr())
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.conf.Addr())
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln, one goroutine per session. It returns nil
// after a shutdown and the accept error otherwise.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	for {
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			s.release()
			if s.isClosed() {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		if !s.track(conn) {
			conn.Close()
			s.release()
			return nil
		}
		go func() {
			defer s.release()
			defer s.untrack(conn)
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn runs one session on conn and closes it when the session ends.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := s.logger.With().
		Str("session", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	logger.Info().Msg("client connected")
	defer logger.Info().Msg("client disconnected")

	r := bufio.NewReaderSize(conn, readBufferSize)
	for {
		if s.conf.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.conf.IdleTimeout))
		}
		line, rerr := readLine(r, s.conf.MaxLineBytes)
		if errors.Is(rerr, ErrLineTooLong) {
			logger.Warn().Int("max", s.conf.MaxLineBytes).Msg("request line too long")
			s.write(conn, logger, EncodeError(rerr))
			return
		}
		if rerr != nil && (line == "" || rerr != io.EOF) {
			// a partial line cut off by a timeout or reset is never answered
			if rerr != io.EOF && !s.isClosed() {
				logger.Debug().Err(rerr).Int("dropped", len(line)).Msg("read")
			}
			return
		}

		cmd, err := Decode(line, s.conf.StrictProtocol)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("bad request")
			s.write(conn, logger, EncodeError(err))
		case cmd.Kind == CmdEnd:
			return
		case cmd.Kind == CmdPosition:
			if resp, ok := s.answer(ctx, logger, cmd.FEN); ok {
				s.write(conn, logger, resp)
			}
		}
		// a final line cut off by EOF is answered before the session ends
		if rerr != nil {
			return
		}
	}
}

// answer computes the response line for a position. ok is false when the
// selector declines the position.
func (s *Server) answer(ctx context.Context, logger zerolog.Logger, fen string) (resp string, ok bool) {
	pos, err := game.Decode(fen)
	if err != nil {
		logger.Warn().Err(err).Str("fen", fen).Msg("invalid position")
		return EncodeError(err), true
	}
	if s.filter != nil && !s.filter.Accepts(pos) {
		logger.Debug().Str("fen", fen).Msg("position not accepted, no response")
		return "", false
	}

	start := time.Now()
	rec, err := s.sel.SelectMove(ctx, pos)
	if err != nil {
		logger.Warn().Err(err).Str("fen", fen).Msg("no move")
		return EncodeError(err), true
	}
	logger.Info().
		Str("fen", fen).
		Str("move", rec.Move).
		Bool("check", rec.Check).
		Bool("mate", rec.Mate).
		Dur("took", time.Since(start)).
		Msg("recommendation")
	return EncodeMove(rec), true
}

func (s *Server) write(conn net.Conn, logger zerolog.Logger, line string) {
	if _, err := io.WriteString(conn, line); err != nil {
		logger.Debug().Err(err).Msg("write")
	}
}

// readLine reads up to and including the next newline. Lines longer than
// the reader's buffer are accumulated, and limit > 0 bounds their length.
// A final line without newline is returned together with the read error.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var acc []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if limit > 0 && len(acc)+len(chunk) > limit+1 {
			return "", ErrLineTooLong
		}
		if err == bufio.ErrBufferFull {
			acc = append(acc, chunk...)
			continue
		}
		if acc == nil {
			return string(chunk), err
		}
		acc = append(acc, chunk...)
		return string(acc), err
	}
}

// Close stops accepting connections, ends open sessions and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var errs error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierror.Append(errs, errors.Wrap(err, "close listener"))
		}
	}
	for conn := range s.conns {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierror.Append(errs, errors.Wrapf(err, "close %s", conn.RemoteAddr()))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("server stopped")
	return errs
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
