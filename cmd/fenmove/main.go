/*
fenmove answers "FEN <position>" requests over TCP with a recommended move.

Usage:

	fenmove serve --mode stockfish           # delegate to an external engine
	fenmove serve --mode pretrained          # rank moves with a saved model
	fenmove serve --mode train --pgn g.pgn   # train, save, then serve
	fenmove train --pgn g.pgn --no-serve     # train and save only
	fenmove inspect chess_model.fmv --tree 0 # print a tree as Graphviz DOT
	fenmove runs                             # list past training runs
	fenmove arena --white model --black random
*/
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fenmove/config"
)

var (
	version = "dev"
	commit  = "none"
)

// app carries the settings shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	modelPath  string

	conf   config.Config
	logger zerolog.Logger
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "fenmove",
		Short:         "Chess move recommendation server",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "JSON configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.modelPath, "model-path", "", "path to save/load the model")

	root.AddCommand(
		newServeCmd(a),
		newTrainCmd(a),
		newInspectCmd(a),
		newRunsCmd(a),
		newArenaCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	conf, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		conf.LogLevel = a.logLevel
	}
	if a.modelPath != "" {
		conf.Training.ModelPath = a.modelPath
	}
	a.conf = conf

	lvl, err := conf.Level()
	if err != nil {
		return err
	}
	a.logger = newLogger(lvl)
	return nil
}

func newLogger(lvl zerolog.Level) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func (a *app) validate() error {
	return a.conf.Validate()
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}
