package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fenmove"
	"github.com/fenmove/config"
	"github.com/fenmove/engine"
	"github.com/fenmove/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		mode     string
		host     string
		port     int
		lenient  bool
		engPath  string
		poolSize int
		tf       trainFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve move recommendations over TCP",
		Long: `Start the line protocol server.

  --mode stockfish   delegate positions to an external UCI engine (Black to move only)
  --mode pretrained  rank legal moves with a saved model
  --mode train       train a model from --pgn, save it, then serve it`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if f.Changed("mode") {
				a.conf.Mode = mode
			}
			if f.Changed("host") {
				a.conf.Server.Host = host
			}
			if f.Changed("port") {
				a.conf.Server.Port = port
			}
			if f.Changed("lenient") {
				a.conf.Server.StrictProtocol = !lenient
			}
			if f.Changed("engine-path") {
				a.conf.Engine.Path = engPath
			}
			if f.Changed("pool-size") {
				a.conf.Engine.PoolSize = poolSize
			}
			tf.apply(cmd, &a.conf)
			if err := a.validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sel, closeSel, err := a.selector(ctx)
			if err != nil {
				return err
			}
			defer closeSel()
			return a.serve(ctx, sel)
		},
	}
	f := cmd.Flags()
	f.StringVar(&mode, "mode", config.ModeStockfish, "engine mode: stockfish, train or pretrained")
	f.StringVar(&host, "host", "", "listen host")
	f.IntVar(&port, "port", 0, "listen port")
	f.BoolVar(&lenient, "lenient", false, "ignore unknown request lines instead of answering ERROR")
	f.StringVar(&engPath, "engine-path", "", "external engine binary, discovered when empty")
	f.IntVar(&poolSize, "pool-size", 0, "external engine processes")
	tf.register(cmd)
	return cmd
}

// selector builds the move selector for the configured mode. The returned
// func releases its resources.
func (a *app) selector(ctx context.Context) (fenmove.MoveSelector, func(), error) {
	noop := func() {}
	switch a.conf.Mode {
	case config.ModeStockfish:
		d, err := a.delegate()
		if err != nil {
			return nil, noop, err
		}
		return d, func() {
			if err := d.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("stop engines")
			}
		}, nil
	case config.ModeTrain:
		model, err := a.train(ctx)
		if err != nil {
			return nil, noop, err
		}
		a.logger.Info().Msg("training complete, starting server with trained model")
		return fenmove.NewScorer(model, a.logger), noop, nil
	case config.ModePretrained:
		model, err := fenmove.LoadModel(a.conf.Training.ModelPath)
		if err != nil {
			return nil, noop, err
		}
		a.logger.Info().Str("model", a.conf.Training.ModelPath).Int("trees", len(model.Trees)).Msg("model loaded")
		return fenmove.NewScorer(model, a.logger), noop, nil
	}
	return nil, noop, errors.Errorf("unknown mode %q", a.conf.Mode)
}

func (a *app) delegate() (*fenmove.Delegate, error) {
	conf := a.conf.EngineConf()
	res := engine.DefaultResolver(conf.Path)
	path, err := res.Resolve()
	if err != nil {
		return nil, errors.WithMessage(fenmove.ErrEngineUnavailable, err.Error())
	}
	a.logger.Info().Str("engine", path).Int("pool", conf.PoolSize).Msg("using external engine")
	start := fenmove.EngineStarter(engine.ResolverFunc(func() (string, error) { return path, nil }), conf)
	return fenmove.NewDelegate(conf.PoolSize, start, a.logger)
}

func (a *app) serve(ctx context.Context, sel fenmove.MoveSelector) error {
	srv := server.New(a.conf.ServerConf(), sel, a.logger)
	err := srv.ListenAndServe(ctx)
	if cerr := srv.Close(); cerr != nil {
		a.logger.Warn().Err(cerr).Msg("shutdown")
	}
	return err
}
