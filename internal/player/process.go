package player

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"
)

const (
	// DefaultBinary is the external player executable.
	DefaultBinary = "mpv"

	// socketPollInterval paces connectability probes after spawn.
	socketPollInterval = 50 * time.Millisecond

	// DefaultConnectWindow bounds how long a freshly spawned process
	// gets to bring its control socket up.
	DefaultConnectWindow = 3 * time.Second
)

// Process is one running external player instance.
type Process struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// StartProcess spawns the player in idle mode with its IPC server
// bound to socketPath. A stale socket file at that path is removed
// first; the per-session runtime directory keeps concurrent sessions
// apart.
func StartProcess(binary, socketPath string, extraArgs ...string) (*Process, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	_ = os.Remove(socketPath)

	args := []string{
		"--idle=yes",
		"--no-terminal",
		"--no-video",
		"--force-window=no",
		"--input-ipc-server=" + socketPath,
	}
	args = append(args, extraArgs...)

	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitError returns the wait result after Done is closed.
func (p *Process) ExitError() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Alive reports whether the process is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Terminate asks the process to exit and kills it if it is still
// around after the grace period.
func (p *Process) Terminate(grace time.Duration) error {
	if !p.Alive() {
		return nil
	}
	_ = p.cmd.Process.Signal(os.Interrupt)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		_ = p.cmd.Process.Kill()
		<-p.done
		return nil
	}
}

// WaitForSocket polls socketPath until it accepts a connection, the
// process dies, or ctx expires. The probe connection is closed
// immediately; the real transport dials afterwards.
func (p *Process) WaitForSocket(ctx context.Context, socketPath string) error {
	ticker := time.NewTicker(socketPollInterval)
	defer ticker.Stop()

	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			conn.Close()
			return nil
		}

		select {
		case <-p.done:
			return fmt.Errorf("%w: process exited before socket came up: %v", ErrSpawnFailed, p.waitErr)
		case <-ctx.Done():
			return fmt.Errorf("%w: socket %s never became connectable: %v", ErrSpawnFailed, socketPath, err)
		case <-ticker.C:
		}
	}
}
