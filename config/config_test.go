package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConfig()
	require.NoError(t, conf.Validate())
	assert.Equal(t, "localhost:12345", conf.ServerConf().Addr())
	assert.Equal(t, 100*time.Millisecond, conf.EngineConf().MoveTime)
	assert.Equal(t, 100, conf.Forest.Estimators)
	assert.Equal(t, 5, conf.Forest.MaxDepth)

	lvl, err := conf.Level()
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fenmove.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mode": "pretrained",
		"log_level": "DEBUG",
		"server": {"host": "0.0.0.0", "port": 9000, "idle_timeout": "90s", "strict_protocol": false},
		"engine": {"move_time": 250000000, "pool_size": 4},
		"forest": {"estimators": 10},
		"training": {"model_path": "m.fmv"}
	}`), 0644))

	conf, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, ModePretrained, conf.Mode)
	srv := conf.ServerConf()
	assert.Equal(t, "0.0.0.0:9000", srv.Addr())
	assert.Equal(t, 90*time.Second, srv.IdleTimeout)
	assert.False(t, srv.StrictProtocol)
	// unset fields keep their defaults
	assert.Equal(t, 64<<10, srv.MaxLineBytes)

	eng := conf.EngineConf()
	assert.Equal(t, 250*time.Millisecond, eng.MoveTime)
	assert.Equal(t, 4, eng.PoolSize)

	assert.Equal(t, 10, conf.Forest.Estimators)
	assert.Equal(t, 5, conf.Forest.MaxDepth)
	assert.Equal(t, "m.fmv", conf.Training.ModelPath)
	assert.Equal(t, 1000, conf.Training.MaxGames)

	lvl, err := conf.Level()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"idle_timeout": "soon"}}`), 0644))
	_, err = Load(path)
	assert.Error(t, err)

	conf, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), conf)
}

func TestValidate(t *testing.T) {
	conf := DefaultConfig()
	conf.Mode = "minimax"
	conf.LogLevel = "loud"
	conf.Engine.PoolSize = 0
	conf.Forest.Estimators = 0
	conf.Server.Port = -1
	conf.Training.ModelPath = ""

	err := conf.Validate()
	require.Error(t, err)
	for _, want := range []string{"minimax", "loud", "engine", "forest", "server", "model_path"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestDurationJSON(t *testing.T) {
	b, err := json.Marshal(Duration(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(b))

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"2m"`), &d))
	assert.Equal(t, Duration(2*time.Minute), d)
	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, Duration(time.Microsecond), d)
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}
