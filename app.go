package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fansqz/auto-debugger/config"
	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/controller"
	"github.com/fansqz/auto-debugger/debugger"
	"github.com/fansqz/auto-debugger/debugger/dap_debugger"
	"github.com/fansqz/auto-debugger/debugger/replay_debugger"
	dutils "github.com/fansqz/auto-debugger/debugger/utils"
	e "github.com/fansqz/auto-debugger/error"
	"github.com/fansqz/auto-debugger/metrics"
	"github.com/sirupsen/logrus"
)

// App 组合执行引擎、源码索引和编排器，供各个入口使用
type App struct {
	cfg        *config.Config
	index      *dutils.SourceIndex
	engine     debugger.ExecutionEngine
	controller *controller.Controller

	metricsServer *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	// 索引使用绝对路径，和引擎上报的相对路径按后缀匹配
	root, err := filepath.Abs(cfg.Source.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve source root %s: %w", cfg.Source.Root, err)
	}
	index := dutils.NewSourceIndex()
	languages := make([]constants.LanguageType, 0, len(cfg.Source.Languages))
	for _, language := range cfg.Source.Languages {
		languages = append(languages, constants.LanguageType(language))
	}
	if err = index.IndexDir(ctx, root, languages); err != nil {
		logrus.Warnf("[App] index source %s fail, err = %v", root, err)
	}
	logrus.Infof("[App] indexed %d functions under %s", index.Size(), root)

	engine, err := createEngine(cfg)
	if err != nil {
		return nil, err
	}
	ctrl := controller.NewController(engine, index, &controller.Options{
		EngineTimeout:        cfg.Engine.Timeout,
		EvaluateTimeout:      cfg.Engine.EvaluateTimeout,
		OperationIdleTimeout: cfg.Orchestrator.OperationIdleTimeout,
		StepsPerSecond:       cfg.Orchestrator.StepsPerSecond,
		ResultRetention:      cfg.Orchestrator.ResultRetention,
	})
	return &App{
		cfg:        cfg,
		index:      index,
		engine:     engine,
		controller: ctrl,
	}, nil
}

// createEngine 根据配置创建执行引擎
func createEngine(cfg *config.Config) (debugger.ExecutionEngine, error) {
	switch cfg.Engine.Type {
	case constants.DapEngine:
		return dap_debugger.NewDapDebugger(&dap_debugger.Options{
			Address:        cfg.Dap.Address,
			AdapterCommand: cfg.Dap.AdapterCommand,
			AdapterArgs:    cfg.Dap.AdapterArgs,
			Mode:           cfg.Dap.Mode,
			Arguments:      cfg.Dap.Arguments,
			SourceRoot:     cfg.Dap.SourceRoot,
			Timeout:        cfg.Engine.Timeout,
		}), nil
	case constants.ReplayEngine:
		if cfg.Replay.Script == "" {
			return nil, fmt.Errorf("%w: replay.script is empty", e.ErrReplayScriptInvalid)
		}
		script, err := replay_debugger.LoadScript(cfg.Replay.Script)
		if err != nil {
			return nil, err
		}
		return replay_debugger.NewReplayDebugger(script), nil
	}
	return nil, fmt.Errorf("%w: %s", e.ErrEngineTypeNotSupported, cfg.Engine.Type)
}

// Start 启动执行引擎，引擎的原始通知同时转发给forward
// 回放引擎总是停在入口处，等待编排命令
func (a *App) Start(ctx context.Context, forward debugger.NotificationCallback) error {
	if forward != nil {
		a.controller.SetNotificationForward(forward)
	}
	option := &debugger.StartOption{
		StopOnEntry: a.cfg.Dap.StopOnEntry || a.cfg.Engine.Type == constants.ReplayEngine,
		Callback:    a.controller.Callback(),
	}
	if err := a.engine.Start(ctx, option); err != nil {
		return fmt.Errorf("start %s engine: %w", a.cfg.Engine.Type, err)
	}
	a.startMetrics()
	return nil
}

func (a *App) startMetrics() {
	if a.cfg.Metrics.Address == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsServer = &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logrus.Infof("[App] metrics listening at %s", a.cfg.Metrics.Address)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("[App] metrics server fail, err = %v", err)
		}
	}()
}

// Close 结束正在进行的操作并关闭执行引擎
func (a *App) Close(ctx context.Context) {
	a.controller.Close(ctx)
	if err := a.engine.Terminate(ctx); err != nil {
		logrus.Warnf("[App] terminate engine fail, err = %v", err)
	}
	if a.metricsServer != nil {
		_ = a.metricsServer.Shutdown(ctx)
	}
}
