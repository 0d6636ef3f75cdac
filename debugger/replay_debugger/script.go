package replay_debugger

import (
	"fmt"
	"os"

	e "github.com/fansqz/auto-debugger/error"
	"gopkg.in/yaml.v3"
)

// Script 回放脚本，按执行顺序记录程序停留过的每一行
type Script struct {
	Name string `yaml:"name"`
	// Breakpoints 会话开始前用户已经设置的断点
	Breakpoints []ScriptBreakpoint `yaml:"breakpoints"`
	Steps       []Step             `yaml:"steps"`
	ExitCode    int                `yaml:"exitCode"`
}

type ScriptBreakpoint struct {
	File      string `yaml:"file"`
	Line      int    `yaml:"line"`
	Condition string `yaml:"condition"`
	Enabled   *bool  `yaml:"enabled"`
}

// Step 程序执行到的一行
type Step struct {
	File      string                 `yaml:"file"`
	Line      int                    `yaml:"line"`
	Function  string                 `yaml:"function"`
	Variables map[string]interface{} `yaml:"variables"`
	// Evaluations 录制时在该行计算过的表达式及结果，优先于expr计算
	Evaluations map[string]interface{} `yaml:"evaluations"`
	// Stack 调用者栈帧，由近到远
	Stack []Frame `yaml:"stack"`
}

type Frame struct {
	Function  string                 `yaml:"function"`
	File      string                 `yaml:"file"`
	Line      int                    `yaml:"line"`
	Variables map[string]interface{} `yaml:"variables"`
}

// Depth 调用深度
func (s *Step) Depth() int {
	return len(s.Stack)
}

// LoadScript 读取yaml格式的回放脚本
func LoadScript(path string) (*Script, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScript(content)
}

func ParseScript(content []byte) (*Script, error) {
	script := &Script{}
	if err := yaml.Unmarshal(content, script); err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrReplayScriptInvalid, err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", e.ErrReplayScriptInvalid)
	}
	for i, step := range script.Steps {
		if step.File == "" || step.Line <= 0 {
			return nil, fmt.Errorf("%w: step %d has no location", e.ErrReplayScriptInvalid, i)
		}
	}
	for i, bp := range script.Breakpoints {
		if bp.File == "" || bp.Line <= 0 {
			return nil, fmt.Errorf("%w: breakpoint %d has no location", e.ErrReplayScriptInvalid, i)
		}
	}
	return script, nil
}
