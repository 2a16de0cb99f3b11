package reload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const killGrace = 3 * time.Second

type processExit struct {
	Code  int
	Error error
}

// childProcess runs the reloader command and can terminate it together with
// everything it spawned.
type childProcess struct {
	cmd  *exec.Cmd
	info *process.Process
	exit chan processExit
	done chan struct{}
}

func startProcess(args []string, stdout, stderr io.Writer) (*childProcess, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = getSysProcAttr()
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	p := &childProcess{
		cmd:  cmd,
		exit: make(chan processExit, 1),
		done: make(chan struct{}),
	}

	info, err := process.NewProcess(int32(cmd.Process.Pid))
	if err != nil {
		// the child may already be gone, the tree walk falls back to the pid
		slog.Debug("reload process info", "pid", cmd.Process.Pid, "error", err)
	}
	p.info = info

	go p.monitor()
	return p, nil
}

func (p *childProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *childProcess) monitor() {
	err := p.cmd.Wait()
	code := p.cmd.ProcessState.ExitCode()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	p.exit <- processExit{Code: code, Error: err}
	close(p.done)
}

// killTree sends SIGTERM to the process tree bottom-up, waits for the grace
// period and then SIGKILLs whatever is left.
func (p *childProcess) killTree() {
	pid := p.Pid()

	var tree []*process.Process
	if p.info != nil {
		var err error
		tree, err = processTreeBottomUp(p.info)
		if err != nil {
			tree = []*process.Process{p.info}
		}
	}
	if len(tree) == 0 {
		p.cmd.Process.Kill()
		return
	}

	slog.Debug("reload kill tree: SIGTERM", "pid", pid, "subprocs", len(tree))
	for _, child := range tree {
		if err := child.Terminate(); err != nil {
			slog.Debug("reload kill tree: SIGTERM", "pid", child.Pid, "ppid", pid, "error", err)
		}
	}

	grace := time.NewTimer(killGrace)
	defer grace.Stop()

	select {
	case <-p.done:
		return
	case <-grace.C:
	}

	slog.Debug("reload kill tree: SIGKILL", "pid", pid, "subprocs", len(tree))
	for _, child := range tree {
		exists, err := process.PidExists(child.Pid)
		if err != nil || !exists {
			continue
		}
		if err := child.Kill(); err != nil {
			slog.Warn("reload kill tree: SIGKILL", "pid", child.Pid, "ppid", pid, "error", err)
		}
	}
}

// processTreeBottomUp lists proc and all its descendants, children first.
func processTreeBottomUp(proc *process.Process) ([]*process.Process, error) {
	var tree []*process.Process
	children, err := proc.Children()
	if err != nil && !errors.Is(err, process.ErrorNoChildren) {
		return nil, fmt.Errorf("failed to list children for pid %d: %w", proc.Pid, err)
	}

	for _, child := range children {
		// a failing subtree must not stop the rest from being killed
		subtree, _ := processTreeBottomUp(child)
		tree = append(tree, subtree...)
	}

	return append(tree, proc), nil
}
