package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fansqz/auto-debugger/config"
	"github.com/fansqz/auto-debugger/constants"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// 定义版本号
const Version = "1.1.0"

// 关闭时等待引擎退出的时间
const shutdownTimeout = 5 * time.Second

type rootFlags struct {
	config   string
	logLevel string
	engine   string
	script   string
	port     string
	source   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "auto-debugger",
		Short: "Automated debugging operations over DAP or replayed executions",
		Long: `auto-debugger drives a debugger through long-running operations such as
tracing function calls, watching a variable for changes and stepping until a
condition holds. Clients talk to it over TCP, MCP stdio or an interactive REPL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.config, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.engine, "engine", "", "Execution engine (dap, replay)")
	cmd.PersistentFlags().StringVar(&flags.script, "script", "", "Replay script, implies --engine replay")
	cmd.PersistentFlags().StringVar(&flags.source, "source", "", "Source root to index")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve commands over TCP, one JSON request per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	serve.Flags().StringVar(&flags.port, "port", "", "TCP port to listen on")

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve commands as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context(), flags)
		},
	}

	repl := &cobra.Command{
		Use:   "repl",
		Short: "Run commands interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context(), flags)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Show the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", Version)
		},
	}

	cmd.AddCommand(serve, mcpCmd, repl, version)
	return cmd
}

// loadConfig 读取配置文件，命令行参数覆盖文件中的值
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.engine != "" {
		cfg.Engine.Type = constants.EngineType(flags.engine)
	}
	if flags.script != "" {
		cfg.Replay.Script = flags.script
		if flags.engine == "" {
			cfg.Engine.Type = constants.ReplayEngine
		}
	}
	if flags.source != "" {
		cfg.Source.Root = flags.source
	}
	if flags.port != "" {
		cfg.Server.Port = flags.port
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup 加载配置、初始化日志并创建App
func setup(ctx context.Context, flags *rootFlags) (*App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if err = SetupLogger(&cfg.Log); err != nil {
		return nil, err
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		CloseLogger()
		return nil, err
	}
	return app, nil
}

func shutdown(app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.Close(ctx)
	CloseLogger()
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func runServe(ctx context.Context, flags *rootFlags) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()
	app, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer shutdown(app)

	server := NewServer(app)
	addr, err := server.Listen(":" + app.cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("listen at %s: %w", app.cfg.Server.Port, err)
	}
	fmt.Printf("started listening at: %s\n", addr.String())
	if err = app.Start(ctx, server.Forward); err != nil {
		return err
	}
	return server.Serve(ctx)
}

// runMCP stdout只用于mcp协议，日志写到stderr或者日志文件
func runMCP(ctx context.Context, flags *rootFlags) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()
	app, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer shutdown(app)
	if app.cfg.Log.File == "" {
		logrus.SetOutput(os.Stderr)
	}
	if err = app.Start(ctx, nil); err != nil {
		return err
	}
	return NewMCPServer(app.controller).Run()
}

func runREPL(ctx context.Context, flags *rootFlags) error {
	ctx, cancel := signalContext(ctx)
	defer cancel()
	app, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer shutdown(app)
	if err = app.Start(ctx, nil); err != nil {
		return err
	}
	return NewREPL(app.controller, os.Stdout).Run(ctx)
}
