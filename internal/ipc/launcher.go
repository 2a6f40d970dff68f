package ipc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
)

// Process is a running surface process
type Process interface {
	Wait() error
	Kill() error
}

// Launcher starts the process that renders a surface. The process is
// expected to dial back and attach with id.
type Launcher interface {
	Launch(ctx context.Context, role types.Role, id string, bounds types.Bounds) (Process, error)
}

// ExecLauncher re-executes the gamecoach binary in surface mode. An empty
// LogLevel inherits the host's current level.
type ExecLauncher struct {
	Executable string
	SocketPath string
	LogLevel   string
	LogFile    string
}

func (l ExecLauncher) Launch(ctx context.Context, role types.Role, id string, bounds types.Bounds) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The surface outlives the request that created it, so no CommandContext
	cmd := exec.Command(l.Executable, l.args(role, id, bounds)...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s surface: %w", role, err)
	}
	logger.Debugf("Started %s surface process pid=%d id=%s", role, cmd.Process.Pid, id)
	return &execProcess{cmd: cmd}, nil
}

func (l ExecLauncher) args(role types.Role, id string, bounds types.Bounds) []string {
	args := []string{
		"surface",
		"--role", string(role),
		"--id", id,
		"--socket", l.SocketPath,
		"--x", strconv.Itoa(bounds.X),
		"--y", strconv.Itoa(bounds.Y),
		"--width", strconv.Itoa(bounds.Width),
		"--height", strconv.Itoa(bounds.Height),
	}
	level := l.LogLevel
	if level == "" {
		level = strings.ToLower(logger.GetCurrentLevel().String())
	}
	args = append(args, "--log-level", level)
	if l.LogFile != "" {
		args = append(args, "--log-filename", l.LogFile)
	}
	return args
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}
