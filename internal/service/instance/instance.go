package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/shake-couplet/internal/logger"
)

// ErrAlreadyRunning is returned when another process runs the same executable.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Guard finds and stops other processes of an executable.
type Guard struct {
	list func() ([]ps.Process, error)
	kill func(pid int) error
	self int
}

// Option configures a Guard.
type Option func(*Guard)

// WithLister replaces the process table source.
func WithLister(list func() ([]ps.Process, error)) Option {
	return func(g *Guard) {
		g.list = list
	}
}

// WithKiller replaces the function terminating a process.
func WithKiller(kill func(pid int) error) Option {
	return func(g *Guard) {
		g.kill = kill
	}
}

// WithSelf sets the process id treated as the current process.
func WithSelf(pid int) Option {
	return func(g *Guard) {
		g.self = pid
	}
}

// New creates a guard over the live process table.
func New(opts ...Option) *Guard {
	g := &Guard{
		list: ps.Processes,
		kill: killProcess,
		self: os.Getpid(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Others returns the ids of other processes running executable.
func (g *Guard) Others(executable string) ([]int, error) {
	processList, err := g.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var pids []int

	for _, process := range processList {
		if process.Pid() == g.self || process.Executable() != executable {
			continue
		}

		pids = append(pids, process.Pid())
	}

	return pids, nil
}

// Ensure makes the current process the only one running executable.
// Without replace it fails with ErrAlreadyRunning, with replace it kills the others.
func (g *Guard) Ensure(ctx context.Context, executable string, replace bool) error {
	pids, err := g.Others(executable)
	if err != nil {
		return err
	}

	if len(pids) == 0 {
		return nil
	}

	if !replace {
		return fmt.Errorf("%s (pid %d): %w", executable, pids[0], ErrAlreadyRunning)
	}

	for _, pid := range pids {
		if err = g.kill(pid); err != nil {
			return fmt.Errorf("failed to stop %s (pid %d): %w", executable, pid, err)
		}

		logger.InfoKV(ctx, "Stopped previous instance", "executable", executable, "pid", pid)
	}

	return nil
}

// Executable returns the base name of the running binary the way the process table reports it.
func Executable() string {
	path, err := os.Executable()
	if err != nil {
		path = os.Args[0]
	}

	return filepath.Base(path)
}

func killProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	return process.Kill()
}
