/*
Package config loads the fenmove configuration file.

The file is JSON; every field is optional and falls back to its default:

	{
	  "mode": "pretrained",
	  "log_level": "info",
	  "server": {"host": "localhost", "port": 12345, "idle_timeout": "5m"},
	  "engine": {"path": "", "move_time": "100ms", "pool_size": 2},
	  "forest": {"estimators": 100, "max_depth": 5},
	  "training": {"corpus": "games.pgn", "model_path": "chess_model.fmv", "max_games": 1000}
	}
*/
package config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/fenmove/engine"
	"github.com/fenmove/forest"
	"github.com/fenmove/server"
)

// Modes the service can run in.
const (
	ModeStockfish  = "stockfish"
	ModeTrain      = "train"
	ModePretrained = "pretrained"
)

// Config is the root of the configuration file.
type Config struct {
	Mode     string         `json:"mode"`
	LogLevel string         `json:"log_level"`
	Server   ServerConfig   `json:"server"`
	Engine   EngineConfig   `json:"engine"`
	Forest   forest.Config  `json:"forest"`
	Training TrainingConfig `json:"training"`
}

type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	MaxConnections int64    `json:"max_connections"`
	IdleTimeout    Duration `json:"idle_timeout"`
	MaxLineBytes   int      `json:"max_line_bytes"`
	StrictProtocol bool     `json:"strict_protocol"`
}

type EngineConfig struct {
	Path     string   `json:"path"`
	MoveTime Duration `json:"move_time"`
	Depth    int      `json:"depth"`
	PoolSize int      `json:"pool_size"`
}

type TrainingConfig struct {
	Corpus    string `json:"corpus"`
	ModelPath string `json:"model_path"`
	MaxGames  int    `json:"max_games"`
	Registry  string `json:"registry"` // sqlite file recording training runs, empty disables it
}

// DefaultConfig mirrors the defaults of the individual packages.
func DefaultConfig() Config {
	srv := server.DefaultConfig()
	eng := engine.DefaultConfig()
	return Config{
		Mode:     ModeStockfish,
		LogLevel: zerolog.LevelInfoValue,
		Server: ServerConfig{
			Host:           srv.Host,
			Port:           srv.Port,
			MaxConnections: srv.MaxConnections,
			IdleTimeout:    Duration(srv.IdleTimeout),
			MaxLineBytes:   srv.MaxLineBytes,
			StrictProtocol: srv.StrictProtocol,
		},
		Engine: EngineConfig{
			Path:     eng.Path,
			MoveTime: Duration(eng.MoveTime),
			Depth:    eng.Depth,
			PoolSize: eng.PoolSize,
		},
		Forest: forest.DefaultConf(),
		Training: TrainingConfig{
			Corpus:    "games.pgn",
			ModelPath: "chess_model.fmv",
			MaxGames:  1000,
			Registry:  "fenmove.db",
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return conf, errors.Wrap(err, "read config")
	}
	if err := json.Unmarshal(data, &conf); err != nil {
		return conf, errors.Wrapf(err, "parse config %s", path)
	}
	return conf, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs error
	switch c.Mode {
	case ModeStockfish, ModeTrain, ModePretrained:
	default:
		errs = multierror.Append(errs, errors.Errorf("unknown mode %q", c.Mode))
	}
	if _, err := c.Level(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if !c.ServerConf().IsValid() {
		errs = multierror.Append(errs, errors.Errorf("invalid server settings %+v", c.Server))
	}
	if !c.EngineConf().IsValid() {
		errs = multierror.Append(errs, errors.Errorf("invalid engine settings %+v", c.Engine))
	}
	if !c.Forest.IsValid() {
		errs = multierror.Append(errs, errors.Errorf("invalid forest settings %+v", c.Forest))
	}
	if c.Training.ModelPath == "" {
		errs = multierror.Append(errs, errors.New("training.model_path is empty"))
	}
	return errs
}

// Level parses LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	return lvl, errors.Wrapf(err, "log level %q", c.LogLevel)
}

func (c Config) ServerConf() server.Config {
	return server.Config{
		Host:           c.Server.Host,
		Port:           c.Server.Port,
		MaxConnections: c.Server.MaxConnections,
		IdleTimeout:    time.Duration(c.Server.IdleTimeout),
		MaxLineBytes:   c.Server.MaxLineBytes,
		StrictProtocol: c.Server.StrictProtocol,
	}
}

func (c Config) EngineConf() engine.Config {
	return engine.Config{
		Path:     c.Engine.Path,
		MoveTime: time.Duration(c.Engine.MoveTime),
		Depth:    c.Engine.Depth,
		PoolSize: c.Engine.PoolSize,
	}
}

// Duration is a time.Duration written as a Go duration string ("250ms") or
// as a number of nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.WithStack(err)
	}
	switch v := v.(type) {
	case float64:
		*d = Duration(time.Duration(v))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "duration %q", v)
		}
		*d = Duration(parsed)
	default:
		return errors.Errorf("invalid duration %s", b)
	}
	return nil
}
