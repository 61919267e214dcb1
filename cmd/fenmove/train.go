package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenmove"
	"github.com/fenmove/config"
	"github.com/fenmove/forest"
	"github.com/fenmove/registry"
)

// trainFlags are the training settings shared by "train" and "serve --mode train".
type trainFlags struct {
	pgn        string
	maxGames   int
	estimators int
	maxDepth   int
	seed       int64
	registry   string
}

func (tf *trainFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&tf.pgn, "pgn", "", "PGN corpus for training")
	f.IntVar(&tf.maxGames, "max-games", 0, "admitted games to train on, 0 keeps the configured value")
	f.IntVar(&tf.estimators, "estimators", 0, "trees in the forest")
	f.IntVar(&tf.maxDepth, "max-depth", 0, "maximum tree depth")
	f.Int64Var(&tf.seed, "seed", 0, "random seed for fitting")
	f.StringVar(&tf.registry, "registry", "", "sqlite file recording training runs")
}

func (tf *trainFlags) apply(cmd *cobra.Command, conf *config.Config) {
	f := cmd.Flags()
	if f.Changed("pgn") {
		conf.Training.Corpus = tf.pgn
	}
	if f.Changed("max-games") {
		conf.Training.MaxGames = tf.maxGames
	}
	if f.Changed("estimators") {
		conf.Forest.Estimators = tf.estimators
	}
	if f.Changed("max-depth") {
		conf.Forest.MaxDepth = tf.maxDepth
	}
	if f.Changed("seed") {
		conf.Forest.Seed = tf.seed
	}
	if f.Changed("registry") {
		conf.Training.Registry = tf.registry
	}
}

func newTrainCmd(a *app) *cobra.Command {
	var (
		tf      trainFlags
		noServe bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model from a PGN corpus, save it, then serve it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.conf.Mode = config.ModeTrain
			tf.apply(cmd, &a.conf)
			if err := a.validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			model, err := a.train(ctx)
			if err != nil {
				return err
			}
			if noServe {
				return nil
			}
			a.logger.Info().Msg("training complete, starting server with trained model")
			return a.serve(ctx, fenmove.NewScorer(model, a.logger))
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&noServe, "no-serve", false, "exit after saving the model")
	return cmd
}

// train fits a model on the configured corpus, saves it and records the run.
func (a *app) train(ctx context.Context) (*forest.Forest, error) {
	tc := a.conf.Training
	start := time.Now()

	model, sum, err := fenmove.NewTrainer(a.conf.Forest, a.logger).Train(ctx, tc.Corpus, tc.MaxGames)
	if err != nil {
		return nil, err
	}
	took := time.Since(start)
	a.logger.Info().
		Int("records", sum.Records).
		Int("corrupt", sum.Corrupt).
		Int("admitted", sum.Admitted).
		Int("excluded", sum.Excluded).
		Int("replay_failures", sum.ReplayFailures).
		Int("positions", sum.Positions).
		Float64("white_win_rate", sum.WhiteWinRate).
		Dur("took", took).
		Msg("training finished")

	if err := fenmove.SaveModel(model, tc.ModelPath); err != nil {
		return nil, err
	}
	a.logger.Info().Str("path", tc.ModelPath).Msg("model saved")

	a.recordRun(ctx, registry.Run{
		Corpus:         tc.Corpus,
		ModelPath:      tc.ModelPath,
		MaxGames:       tc.MaxGames,
		Records:        sum.Records,
		Corrupt:        sum.Corrupt,
		Admitted:       sum.Admitted,
		Excluded:       sum.Excluded,
		ReplayFailures: sum.ReplayFailures,
		Positions:      sum.Positions,
		WhiteWinRate:   sum.WhiteWinRate,
		Trees:          len(model.Trees),
		MaxDepth:       model.Stats().MaxDepth,
		Took:           took,
	})
	return model, nil
}

// recordRun stores run in the registry. Registry failures never fail training.
func (a *app) recordRun(ctx context.Context, run registry.Run) {
	if a.conf.Training.Registry == "" {
		return
	}
	reg, err := registry.Open(a.conf.Training.Registry, a.logger)
	if err != nil {
		a.logger.Warn().Err(err).Msg("training run not recorded")
		return
	}
	defer reg.Close()
	run, err = reg.Record(ctx, run)
	if err != nil {
		a.logger.Warn().Err(err).Msg("training run not recorded")
		return
	}
	a.logger.Info().Str("run", run.ID).Msg("training run recorded")
}
