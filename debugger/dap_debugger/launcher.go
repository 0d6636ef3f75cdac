package dap_debugger

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	e "github.com/fansqz/auto-debugger/error"
	"github.com/fansqz/auto-debugger/utils/gosync"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// listeningPattern 匹配调试适配器启动后输出的监听地址，例如
// DAP server listening at: 127.0.0.1:38697
var listeningPattern = regexp.MustCompile(`(?i)listening at:?\s*(\S+)`)

// ParseListeningAddress 从适配器的一行输出中解析监听地址
func ParseListeningAddress(line string) (string, bool) {
	match := listeningPattern.FindStringSubmatch(line)
	if match == nil {
		return "", false
	}
	return strings.TrimRight(match[1], "."), true
}

// AdapterProcess 在虚拟终端中运行的调试适配器进程
type AdapterProcess struct {
	cmd     *exec.Cmd
	ptm     *os.File
	pts     *os.File
	Address string

	closeOnce sync.Once
}

// LaunchAdapter 启动调试适配器，并等待它输出监听地址
func LaunchAdapter(ctx context.Context, command string, args []string, timeout time.Duration) (*AdapterProcess, error) {
	logrus.Infof("[LaunchAdapter] %s %s", command, strings.Join(args, " "))
	// 启动一个虚拟终端
	ptm, pts, err := pty.Open()
	if err != nil {
		logrus.Errorf("[LaunchAdapter] pty open fail, err = %v", err)
		return nil, err
	}
	if _, err = term.MakeRaw(int(ptm.Fd())); err != nil {
		logrus.Errorf("[LaunchAdapter] make raw fail, err = %v", err)
		_ = ptm.Close()
		_ = pts.Close()
		return nil, err
	}

	cmd := exec.Command(command, args...)
	cmd.Stdout = pts
	cmd.Stderr = pts
	cmd.Stdin = pts
	if err = cmd.Start(); err != nil {
		_ = ptm.Close()
		_ = pts.Close()
		return nil, err
	}
	process := &AdapterProcess{cmd: cmd, ptm: ptm, pts: pts}

	addressChan := make(chan string, 1)
	gosync.Go(context.Background(), func(ctx context.Context) {
		process.processOutput(addressChan)
	})

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case address := <-addressChan:
		process.Address = address
		logrus.Infof("[LaunchAdapter] adapter listening at %s", address)
		return process, nil
	case <-time.After(timeout):
	case <-ctx.Done():
	}
	_ = process.Stop()
	return nil, e.ErrAdapterAddressNotFound
}

// processOutput 循环读取适配器输出，第一次解析到监听地址时通知调用方
func (a *AdapterProcess) processOutput(addressChan chan<- string) {
	scanner := bufio.NewScanner(a.ptm)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		logrus.Debugf("[AdapterProcess] %s", line)
		if found {
			continue
		}
		if address, ok := ParseListeningAddress(line); ok {
			found = true
			addressChan <- address
		}
	}
}

// Stop 结束适配器进程
func (a *AdapterProcess) Stop() error {
	var err error
	a.closeOnce.Do(func() {
		if a.cmd.Process != nil {
			err = a.cmd.Process.Kill()
			_ = a.cmd.Wait()
		}
		_ = a.pts.Close()
		_ = a.ptm.Close()
	})
	return err
}
