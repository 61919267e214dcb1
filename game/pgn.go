package game

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
)

const (
	ResultWhiteWin = "1-0"
	ResultBlackWin = "0-1"
	ResultDraw     = "1/2-1/2"
	ResultNone     = "*"
)

// ErrCorruptRecord marks a record that could not be parsed at all.
var ErrCorruptRecord = errors.New("corrupt game record")

var tagPairRegex = regexp.MustCompile(`^\[\s*([A-Za-z0-9_]+)\s+"((?:[^"\\]|\\.)*)"\s*\]$`)

// Record is one game of a PGN corpus: its tag pairs and raw movetext.
type Record struct {
	Tags     map[string]string
	Movetext string
}

// Tag returns the value of a tag pair.
func (r Record) Tag(key string) (string, bool) {
	v, ok := r.Tags[key]
	return v, ok
}

// HasTags reports whether all of keys are present.
func (r Record) HasTags(keys ...string) bool {
	for _, k := range keys {
		if _, ok := r.Tags[k]; !ok {
			return false
		}
	}
	return true
}

// RecordReader splits a stream of concatenated PGN games into records.
type RecordReader struct {
	scanner *bufio.Scanner
	pending string
	line    int
}

// NewRecordReader reads records from r.
func NewRecordReader(r io.Reader) *RecordReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &RecordReader{scanner: s}
}

// Next returns the next record. It returns io.EOF at the end of the stream.
// A record that cannot be parsed is reported with an error wrapping
// ErrCorruptRecord; reading may continue after it.
func (rr *RecordReader) Next() (Record, error) {
	var (
		tagLines  []string
		movetext  strings.Builder
		inMoves   bool
		startLine int
	)
	take := func(line string) bool {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return false
		}
		if startLine == 0 {
			startLine = rr.line
		}
		if strings.HasPrefix(trimmed, "[") && !inMoves {
			tagLines = append(tagLines, trimmed)
			return false
		}
		if strings.HasPrefix(trimmed, "[") && inMoves {
			// a tag after movetext starts the next game
			return true
		}
		inMoves = true
		movetext.WriteString(trimmed)
		movetext.WriteByte('\n')
		return false
	}

	if rr.pending != "" {
		take(rr.pending)
		rr.pending = ""
	}
	for rr.scanner.Scan() {
		rr.line++
		line := rr.scanner.Text()
		if take(line) {
			rr.pending = line
			break
		}
	}
	if err := rr.scanner.Err(); err != nil {
		return Record{}, errors.Wrap(err, "read corpus")
	}
	if len(tagLines) == 0 && movetext.Len() == 0 {
		return Record{}, io.EOF
	}
	return parseRecord(tagLines, movetext.String(), startLine)
}

func parseRecord(tagLines []string, movetext string, line int) (Record, error) {
	rec := Record{Tags: make(map[string]string, len(tagLines)), Movetext: strings.TrimSpace(movetext)}
	for _, tl := range tagLines {
		m := tagPairRegex.FindStringSubmatch(tl)
		if m == nil {
			return Record{}, errors.Wrapf(ErrCorruptRecord, "line %d: malformed tag %q", line, tl)
		}
		rec.Tags[m[1]] = strings.ReplaceAll(m[2], `\"`, `"`)
	}
	if rec.Movetext == "" {
		return Record{}, errors.Wrapf(ErrCorruptRecord, "line %d: record has no movetext", line)
	}
	return rec, nil
}

// Tokens returns the SAN move tokens of a movetext, dropping move numbers,
// comments, variations, NAGs and the game termination marker.
func Tokens(movetext string) []string {
	var (
		tokens  []string
		body    strings.Builder
		comment bool
		depth   int
	)
	flush := func() {
		if body.Len() == 0 {
			return
		}
		tok := body.String()
		body.Reset()
		if depth > 0 || isMoveNumber(tok) || isTermination(tok) || strings.HasPrefix(tok, "$") {
			return
		}
		// "12.e4" style, glued move numbers
		if i := strings.LastIndexByte(tok, '.'); i >= 0 {
			tok = tok[i+1:]
			if tok == "" {
				return
			}
		}
		tokens = append(tokens, tok)
	}

	for _, line := range strings.Split(movetext, "\n") {
	chars:
		for _, r := range line {
			switch {
			case comment:
				if r == '}' {
					comment = false
				}
			case r == '{':
				flush()
				comment = true
			case r == ';':
				break chars
			case r == '(':
				flush()
				depth++
			case r == ')':
				flush()
				if depth > 0 {
					depth--
				}
			case unicode.IsSpace(r):
				flush()
			default:
				body.WriteRune(r)
			}
		}
		flush()
	}
	flush()
	return tokens
}

func isMoveNumber(tok string) bool {
	digits := strings.TrimRight(tok, ".")
	if digits == "" || digits == tok && !strings.Contains(tok, ".") {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isTermination(tok string) bool {
	switch tok {
	case ResultWhiteWin, ResultBlackWin, ResultDraw, ResultNone:
		return true
	}
	return false
}

// moveDecoders are tried in order on every movetext token. UCI goes first:
// algebraic decoding drops "redundant" origin squares and would read g1f3
// as the pawn move f3. LongAlgebraicNotation decodes exactly like
// AlgebraicNotation and is not listed.
var moveDecoders = []chess.Decoder{
	uciDecoder{},
	chess.AlgebraicNotation{},
}

type uciDecoder struct{}

func (uciDecoder) Decode(pos *chess.Position, s string) (*chess.Move, error) {
	if m, ok := FindMove(pos, s); ok {
		return m, nil
	}
	return nil, errors.Errorf("no legal move %s", s)
}

// DecodeSAN finds the legal move of pos written as s in UCI or standard
// algebraic notation, redundant disambiguation such as Ng1f3 included.
// Castling may be written with zeros.
func DecodeSAN(pos *chess.Position, s string) (*chess.Move, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0-0") {
		s = strings.Replace(strings.Replace(s, "0-0-0", "O-O-O", 1), "0-0", "O-O", 1)
	}
	for _, d := range moveDecoders {
		if m, err := d.Decode(pos, s); err == nil {
			return m, nil
		}
	}
	return nil, errors.Errorf("illegal or unknown move %q in %s", s, pos.String())
}

// StartPosition returns the initial position of a record: the standard
// start unless the record carries a FEN tag.
func StartPosition(rec Record) (*chess.Position, error) {
	if fen, ok := rec.Tag("FEN"); ok && fen != "" {
		return Decode(fen)
	}
	return chess.NewGame().Position(), nil
}

// Replay applies every move of rec in order and calls visit with the
// 0-based ply index and the position reached after that ply. It stops at
// the first move that cannot be decoded.
func Replay(rec Record, visit func(ply int, pos *chess.Position)) error {
	pos, err := StartPosition(rec)
	if err != nil {
		return err
	}
	for ply, tok := range Tokens(rec.Movetext) {
		m, err := DecodeSAN(pos, tok)
		if err != nil {
			return errors.WithMessagef(err, "ply %d", ply+1)
		}
		pos = pos.Update(m)
		visit(ply, pos)
	}
	return nil
}
