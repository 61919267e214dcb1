package server

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/fenmove"
)

// ErrProtocol is returned for request lines that are not part of the protocol.
var ErrProtocol = errors.New("unrecognized request")

const fenPrefix = "FEN "

// Kind is the type of a decoded request line.
type Kind byte

const (
	CmdNone     Kind = iota // nothing to answer
	CmdPosition             // FEN <fen>
	CmdEnd                  // empty line, the client is done
)

func (k Kind) String() string {
	switch k {
	case CmdPosition:
		return "position"
	case CmdEnd:
		return "end"
	}
	return "none"
}

// Command is a decoded request line.
type Command struct {
	Kind Kind
	FEN  string
}

// Decode parses one request line, with or without its line terminator.
// Lines that are not FEN requests are an ErrProtocol when strict is set and
// are ignored otherwise.
func Decode(line string, strict bool) (Command, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Command{Kind: CmdEnd}, nil
	case strings.HasPrefix(line, fenPrefix):
		fen := strings.TrimSpace(line[len(fenPrefix):])
		if fen == "" {
			return Command{}, errors.Wrap(ErrProtocol, "FEN without position")
		}
		return Command{Kind: CmdPosition, FEN: fen}, nil
	case strict:
		return Command{}, errors.Wrapf(ErrProtocol, "%q", clip(line, 32))
	}
	return Command{Kind: CmdNone}, nil
}

// EncodeMove renders a recommendation as a MOVE response line.
func EncodeMove(rec fenmove.Recommendation) string {
	return "MOVE " + rec.Move + " CHECK " + flag(rec.Check) + " MATE " + flag(rec.Mate) + "\n"
}

// EncodeError renders err as a single ERROR response line.
func EncodeError(err error) string {
	msg := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(err.Error())
	return "ERROR " + msg + "\n"
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
