package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fansqz/auto-debugger/config"
	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/controller"
	"github.com/fansqz/auto-debugger/debugger/replay_debugger"
	e "github.com/fansqz/auto-debugger/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 10 * time.Millisecond
)

func replayConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine.Type = constants.ReplayEngine
	cfg.Engine.Timeout = time.Second
	cfg.Replay.Script = "debugger/replay_debugger/testdata/add.yaml"
	cfg.Source.Root = "debugger/replay_debugger/testdata"
	cfg.Source.Languages = []string{"go"}
	cfg.Orchestrator.OperationIdleTimeout = 2 * time.Second
	cfg.Orchestrator.StepsPerSecond = 0
	return cfg
}

// newReplayApp 启动回放add.yaml的App，程序停在入口处
func newReplayApp(t *testing.T, forward func(interface{})) *App {
	app, err := NewApp(context.Background(), replayConfig())
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background(), forward))
	t.Cleanup(func() {
		app.Close(context.Background())
	})
	engine := app.engine.(*replay_debugger.ReplayDebugger)
	require.Eventually(t, engine.IsPaused, waitTimeout, waitTick)
	return app
}

func TestNewApp_IndexesSource(t *testing.T) {
	app, err := NewApp(context.Background(), replayConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, app.index.LookupFunction("add"))
	assert.NotEmpty(t, app.index.LookupFunction("main"))
}

func TestNewApp_EngineErrors(t *testing.T) {
	cfg := replayConfig()
	cfg.Replay.Script = ""
	_, err := NewApp(context.Background(), cfg)
	assert.ErrorIs(t, err, e.ErrReplayScriptInvalid)

	cfg = replayConfig()
	cfg.Engine.Type = "gdb"
	_, err = NewApp(context.Background(), cfg)
	assert.ErrorIs(t, err, e.ErrEngineTypeNotSupported)

	cfg = replayConfig()
	cfg.Replay.Script = "debugger/replay_debugger/testdata/missing.yaml"
	_, err = NewApp(context.Background(), cfg)
	assert.Error(t, err)
}

func TestApp_TraceThroughReplay(t *testing.T) {
	app := newReplayApp(t, nil)
	ctx := context.Background()

	response := app.controller.ExecuteCommand(ctx, "trace_function_calls", map[string]interface{}{"function": "add"})
	require.True(t, response.Success, response.Error)

	// 索引的是绝对路径，回放脚本里是main.go，断点仍然能命中
	var result *controller.OperationResult
	require.Eventually(t, func() bool {
		var ok bool
		result, ok = app.controller.GetOperationResult("trace_1")
		return ok && result.IsTerminal()
	}, waitTimeout, waitTick)
	data := result.Data.(*controller.TracingResultData)
	require.Len(t, data.Traces, 2)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, data.Traces[0].Arguments)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	cfg, err := loadConfig(&rootFlags{
		logLevel: "debug",
		script:   "run.yaml",
		port:     "9000",
		source:   "src",
	})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, constants.ReplayEngine, cfg.Engine.Type)
	assert.Equal(t, "run.yaml", cfg.Replay.Script)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "src", cfg.Source.Root)

	_, err = loadConfig(&rootFlags{engine: "gdb"})
	assert.Error(t, err)
}

func TestRootCommand_Version(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Version: "+Version+"\n", out.String())
}
