package game

import "github.com/notnil/chess"

// NumFeatures is the length of a FeatureVector.
const NumFeatures = 7

// Feature indices. Training and inference must agree on this order.
const (
	FeatMaterial = iota
	FeatWhiteKingside
	FeatWhiteQueenside
	FeatBlackKingside
	FeatBlackQueenside
	FeatInCheck
	FeatMobility
)

// FeatureNames labels the vector fields, in order.
var FeatureNames = [NumFeatures]string{
	"material",
	"white_oo",
	"white_ooo",
	"black_oo",
	"black_ooo",
	"in_check",
	"mobility",
}

// FeatureVector is the fixed-size numeric description of a position.
type FeatureVector [NumFeatures]float32

var pieceValues = map[chess.PieceType]float32{
	chess.Pawn:   1,
	chess.Knight: 3,
	chess.Bishop: 3,
	chess.Rook:   5,
	chess.Queen:  9,
}

// Features encodes a position. It depends only on the position itself,
// never on how it was reached.
func Features(pos *chess.Position) FeatureVector {
	var fv FeatureVector
	fv[FeatMaterial] = Material(pos.Board())

	cr := pos.CastleRights()
	fv[FeatWhiteKingside] = flag(cr.CanCastle(chess.White, chess.KingSide))
	fv[FeatWhiteQueenside] = flag(cr.CanCastle(chess.White, chess.QueenSide))
	fv[FeatBlackKingside] = flag(cr.CanCastle(chess.Black, chess.KingSide))
	fv[FeatBlackQueenside] = flag(cr.CanCastle(chess.Black, chess.QueenSide))
	fv[FeatInCheck] = flag(InCheck(pos))
	fv[FeatMobility] = float32(len(pos.ValidMoves()))
	return fv
}

// Material is the signed material balance, White positive. Kings count zero.
func Material(board *chess.Board) float32 {
	var score float32
	for _, p := range board.SquareMap() {
		v := pieceValues[p.Type()]
		if p.Color() == chess.White {
			score += v
		} else {
			score -= v
		}
	}
	return score
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
