package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fenmove"
)

func newArenaCmd(a *app) *cobra.Command {
	var (
		white, black string
		conf         = fenmove.DefaultArenaConfig()
	)
	cmd := &cobra.Command{
		Use:   "arena",
		Short: "Play two move selectors against each other",
		Long: `Play a match between two selectors: "model" (the saved model),
"stockfish" (the external engine) or "random". Colours alternate every game.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !oneOf(white, "model", "stockfish", "random") || !oneOf(black, "model", "stockfish", "random") {
				return errors.Errorf("players must be model, stockfish or random, got %q and %q", white, black)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var closers []func()
			defer func() {
				for _, c := range closers {
					c()
				}
			}()
			player := func(name string, seed int64) (*fenmove.Player, error) {
				sel, closeSel, err := a.arenaSelector(name, seed)
				closers = append(closers, closeSel)
				if err != nil {
					return nil, err
				}
				return &fenmove.Player{Name: name, Selector: sel}, nil
			}
			pa, err := player(white, conf.Seed)
			if err != nil {
				return err
			}
			pb, err := player(black, conf.Seed+1)
			if err != nil {
				return err
			}
			if pa.Name == pb.Name {
				pa.Name += "-A"
				pb.Name += "-B"
			}

			results, err := fenmove.NewArena(pa, pb, conf, a.logger).Run(ctx)
			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintln(out, r)
			}
			fmt.Fprintln(out, pa)
			fmt.Fprintln(out, pb)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&white, "white", "model", "player with White in the first game")
	f.StringVar(&black, "black", "random", "player with Black in the first game")
	f.IntVar(&conf.Games, "games", conf.Games, "games to play")
	f.IntVar(&conf.RandomPlies, "random-plies", conf.RandomPlies, "random opening plies per game")
	f.IntVar(&conf.MaxPlies, "max-plies", conf.MaxPlies, "plies before a game is adjudicated a draw")
	f.StringVar(&conf.StartFEN, "fen", "", "start position, the standard start when empty")
	f.Int64Var(&conf.Seed, "seed", conf.Seed, "random seed")
	return cmd
}

func (a *app) arenaSelector(name string, seed int64) (fenmove.MoveSelector, func(), error) {
	noop := func() {}
	switch name {
	case "model":
		model, err := fenmove.LoadModel(a.conf.Training.ModelPath)
		if err != nil {
			return nil, noop, err
		}
		return fenmove.NewScorer(model, a.logger), noop, nil
	case "stockfish":
		d, err := a.delegate()
		if err != nil {
			return nil, noop, err
		}
		return d, func() { d.Close() }, nil
	}
	return fenmove.NewRandomSelector(seed), noop, nil
}
