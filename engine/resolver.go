package engine

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no engine binary could be located.
var ErrNotFound = errors.New("engine binary not found")

// Resolver locates the engine binary.
type Resolver interface {
	Resolve() (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func() (string, error)

func (f ResolverFunc) Resolve() (string, error) { return f() }

// PathResolver tries an explicit path, then well-known install locations,
// then the PATH.
type PathResolver struct {
	Configured string
	Candidates []string
	Names      []string // looked up on PATH

	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
}

// DefaultResolver returns the platform's discovery strategy for Stockfish.
func DefaultResolver(configured string) *PathResolver {
	r := &PathResolver{Configured: configured}
	switch runtime.GOOS {
	case "windows":
		r.Candidates = []string{
			`C:\Program Files\Stockfish\stockfish.exe`,
			`C:\Program Files (x86)\Stockfish\stockfish.exe`,
		}
		r.Names = []string{"stockfish.exe", "stockfish"}
	default:
		r.Candidates = []string{
			"/usr/local/bin/stockfish", // Homebrew
			"/opt/homebrew/bin/stockfish",
			"/usr/games/stockfish", // Debian/Ubuntu
			"/usr/bin/stockfish",
		}
		r.Names = []string{"stockfish"}
	}
	return r
}

func (r *PathResolver) Resolve() (string, error) {
	lookPath, stat := r.lookPath, r.stat
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if stat == nil {
		stat = os.Stat
	}

	if r.Configured != "" {
		if p, err := lookPath(r.Configured); err == nil {
			return p, nil
		}
		return "", errors.Wrapf(ErrNotFound, "configured engine %s is not executable", r.Configured)
	}
	for _, c := range r.Candidates {
		if fi, err := stat(c); err == nil && !fi.IsDir() && executable(fi) {
			return c, nil
		}
	}
	for _, n := range r.Names {
		if p, err := lookPath(n); err == nil {
			return p, nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "tried %v and %v on PATH", r.Candidates, r.Names)
}

func executable(fi os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return fi.Mode().Perm()&0111 != 0
}
