package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fansqz/auto-debugger/constants"
	"github.com/fansqz/auto-debugger/controller"
	"golang.org/x/term"
)

var replCommands = []constants.CommandType{
	constants.TraceFunctionCalls,
	constants.FindValueChange,
	constants.StepUntilCondition,
	constants.GetOperationStatus,
	constants.EvaluateExpression,
	constants.GetState,
	constants.GetFrame,
	constants.GetCallStack,
	constants.GetVariables,
	constants.SetBreakpoint,
}

// REPL 交互式命令行，每行一个命令: <command> key=value ...
type REPL struct {
	controller *controller.Controller
	out        io.Writer
}

func NewREPL(controller *controller.Controller, out io.Writer) *REPL {
	return &REPL{controller: controller, out: out}
}

func (r *REPL) Run(ctx context.Context) error {
	items := make([]readline.PrefixCompleterInterface, 0, len(replCommands)+2)
	for _, command := range replCommands {
		items = append(items, readline.PcItem(string(command)))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("quit"))

	prompt := "(auto-debugger) "
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = ""
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	// 操作在后台完成，完成时打印结果摘要
	r.controller.SetCompletionCallback(func(result *controller.OperationResult) {
		fmt.Fprintf(rl.Stdout(), "[%s] %s: %s\n", result.OperationID, result.Status, result.Message)
	})
	defer r.controller.SetCompletionCallback(nil)

	fmt.Fprintln(r.out, "Type 'help' for commands, 'quit' to exit.")
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !r.Execute(ctx, line) {
			return nil
		}
	}
}

// Execute 执行一行输入，返回false表示退出
func (r *REPL) Execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	command, params, err := parseCommandLine(line)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return true
	}
	switch command {
	case "quit", "exit", "q":
		return false
	case "help", "h", "?":
		r.printHelp()
		return true
	}
	response := r.controller.ExecuteCommand(ctx, command, params)
	if !response.Success {
		fmt.Fprintf(r.out, "error: %s\n", response.Error)
		return true
	}
	data, err := json.MarshalIndent(response.Data, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return true
	}
	fmt.Fprintln(r.out, string(data))
	return true
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	for _, command := range replCommands {
		fmt.Fprintf(r.out, "  %s\n", command)
	}
	fmt.Fprintln(r.out, "Usage: <command> key=value ...  e.g. step_until_condition condition=\"i == 5\" max_steps=20")
}

// parseCommandLine 解析 command key=value，值可以用双引号包围
// 值都保留为字符串，由编排器按参数类型转换
func parseCommandLine(line string) (string, controller.Params, error) {
	fields, err := splitFields(line)
	if err != nil {
		return "", nil, err
	}
	params := controller.Params{}
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("expected key=value, got %q", field)
		}
		params[key] = value
	}
	return fields[0], params, nil
}

// splitFields 按空白切分，双引号内的空白保留，\"表示引号本身
func splitFields(line string) ([]string, error) {
	var fields []string
	var current strings.Builder
	inQuote, hasField, escaped := false, false, false
	for _, ch := range line {
		switch {
		case escaped:
			current.WriteRune(ch)
			escaped = false
		case ch == '\\':
			escaped = true
			hasField = true
		case ch == '"':
			inQuote = !inQuote
			hasField = true
		case (ch == ' ' || ch == '\t') && !inQuote:
			if hasField {
				fields = append(fields, current.String())
				current.Reset()
				hasField = false
			}
		default:
			current.WriteRune(ch)
			hasField = true
		}
	}
	if inQuote {
		return nil, errors.New("unterminated quote")
	}
	if hasField {
		fields = append(fields, current.String())
	}
	return fields, nil
}
