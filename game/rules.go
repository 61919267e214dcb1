package game

import (
	"strings"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
)

const (
	RowNum = 8
	ColNum = 8

	// StartFEN is the standard initial position.
	StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

// Decode parses a FEN string into a position.
func Decode(fen string) (*chess.Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return nil, errors.New("empty fen")
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid fen %q", fen)
	}
	return chess.NewGame(opt).Position(), nil
}

// LegalMoves returns the legal moves for the side to move.
func LegalMoves(pos *chess.Position) []*chess.Move {
	return pos.ValidMoves()
}

// Ended reports whether the game is over in pos and, if so, how.
// Besides checkmate and stalemate this covers the automatic draws
// (insufficient material, seventy-five move rule).
func Ended(pos *chess.Position) (ended bool, method chess.Method) {
	switch m := pos.Status(); m {
	case chess.Checkmate, chess.Stalemate:
		return true, m
	}
	opt, err := chess.FEN(pos.String())
	if err != nil {
		return false, chess.NoMethod
	}
	g := chess.NewGame(opt)
	if g.Outcome() != chess.NoOutcome {
		return true, g.Method()
	}
	return false, chess.NoMethod
}

// IsCheckmate reports whether the side to move in pos is checkmated.
func IsCheckmate(pos *chess.Position) bool {
	return pos.Status() == chess.Checkmate
}

// FindMove returns the legal move of pos whose UCI notation is s.
func FindMove(pos *chess.Position, s string) (*chess.Move, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range pos.ValidMoves() {
		if m.String() == s {
			return m, true
		}
	}
	return nil, false
}

// InCheck reports whether the king of the side to move is attacked.
func InCheck(pos *chess.Position) bool {
	board := pos.Board()
	us := pos.Turn()
	for sq, p := range board.SquareMap() {
		if p.Type() == chess.King && p.Color() == us {
			return attacked(board, sq, us.Other())
		}
	}
	return false
}

var (
	knightJumps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	straight    = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonal    = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// attacked reports whether sq is attacked by any piece of color by.
func attacked(board *chess.Board, sq chess.Square, by chess.Color) bool {
	file, rank := int(sq.File()), int(sq.Rank())
	pieceAt := func(f, r int) (chess.Piece, bool) {
		if f < 0 || f >= ColNum || r < 0 || r >= RowNum {
			return chess.NoPiece, false
		}
		return board.Piece(chess.Square(r*ColNum + f)), true
	}
	is := func(p chess.Piece, types ...chess.PieceType) bool {
		if p == chess.NoPiece || p.Color() != by {
			return false
		}
		for _, t := range types {
			if p.Type() == t {
				return true
			}
		}
		return false
	}

	// a pawn of color by attacks diagonally forward, so look one rank behind sq
	dir := -1
	if by == chess.Black {
		dir = 1
	}
	for _, df := range []int{-1, 1} {
		if p, ok := pieceAt(file+df, rank+dir); ok && is(p, chess.Pawn) {
			return true
		}
	}
	for _, j := range knightJumps {
		if p, ok := pieceAt(file+j[0], rank+j[1]); ok && is(p, chess.Knight) {
			return true
		}
	}
	for _, s := range kingSteps {
		if p, ok := pieceAt(file+s[0], rank+s[1]); ok && is(p, chess.King) {
			return true
		}
	}
	slide := func(dirs [4][2]int, types ...chess.PieceType) bool {
		for _, d := range dirs {
			for f, r := file+d[0], rank+d[1]; ; f, r = f+d[0], r+d[1] {
				p, ok := pieceAt(f, r)
				if !ok {
					break
				}
				if p == chess.NoPiece {
					continue
				}
				if is(p, types...) {
					return true
				}
				break
			}
		}
		return false
	}
	return slide(straight, chess.Rook, chess.Queen) || slide(diagonal, chess.Bishop, chess.Queen)
}
