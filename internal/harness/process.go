// Package harness drives a slang language server as a black-box subprocess.
// It spawns the server, speaks LSP over its standard streams, correlates
// asynchronously arriving notifications with test expectations, and keeps a
// client-side shadow of open document text so incremental edits can be sent
// and validated.
package harness

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// stopGraceWait is how long Stop waits for the server to exit on its own
// after stdin is closed, before killing it.
const stopGraceWait = 3 * time.Second

// Wrap selects how the server executable is launched. It only changes the
// launch command and the moment right after spawning; the protocol layer
// above never sees the difference.
type Wrap interface {
	// argv rewrites the launch command.
	argv(binary string, args []string) (string, []string)

	// afterStart runs once the process is up, before the handshake.
	afterStart(proc *ServerProcess, logger *zap.Logger)
}

type wrapNone struct{}

func (wrapNone) argv(binary string, args []string) (string, []string) { return binary, args }
func (wrapNone) afterStart(*ServerProcess, *zap.Logger)               {}

type wrapRecord struct{}

func (wrapRecord) argv(binary string, args []string) (string, []string) {
	return "rr", append([]string{"record", binary}, args...)
}
func (wrapRecord) afterStart(*ServerProcess, *zap.Logger) {}

type wrapDebugWait struct {
	wait time.Duration
}

func (wrapDebugWait) argv(binary string, args []string) (string, []string) {
	return binary, args
}

func (w wrapDebugWait) afterStart(proc *ServerProcess, logger *zap.Logger) {
	logger.Warn(fmt.Sprintf("run `gdb --pid %d`", proc.PID()))
	logger.Warn("waiting for debugger to attach", zap.Duration("wait", w.wait))
	time.Sleep(w.wait)
}

// WrapNone launches the server directly.
func WrapNone() Wrap { return wrapNone{} }

// WrapRecord launches the server under `rr record` so a failing run can be
// replayed later.
func WrapRecord() Wrap { return wrapRecord{} }

// WrapDebugWait launches the server normally, prints its PID, and pauses the
// handshake for the given duration so a debugger can attach.
func WrapDebugWait(wait time.Duration) Wrap { return wrapDebugWait{wait: wait} }

// StartOptions configures how the server process is spawned.
type StartOptions struct {
	// Binary is the path to the server executable.
	Binary string

	// ExtraArgs are appended to the server command line.
	ExtraArgs []string

	// Env entries are appended to the inherited environment.
	Env []string

	// Wrap selects the launch strategy. Nil means WrapNone.
	Wrap Wrap
}

// ServerProcess owns a running server subprocess and its stdio pipes.
type ServerProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	logger *zap.Logger

	// done closes once Wait has returned; waitErr is valid after that.
	done    chan struct{}
	waitErr error

	// stderrDone closes once the stderr relay has drained the pipe.
	stderrDone chan struct{}

	stopped bool
}

// StartServer spawns the server executable with stdin/stdout/stderr as pipes
// and starts a background relay that forwards stderr lines to the logger.
// The relay keeps the pipe drained so the server never blocks on it.
func StartServer(opts StartOptions, logger *zap.Logger) (*ServerProcess, error) {
	wrap := opts.Wrap
	if wrap == nil {
		wrap = WrapNone()
	}
	binary, args := wrap.argv(opts.Binary, opts.ExtraArgs)

	cmd := exec.Command(binary, args...)
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, processErr("stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, processErr("stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, processErr("stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, processErr("failed to spawn %s: %v", binary, err)
	}

	proc := &ServerProcess{
		cmd:        cmd,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		logger:     logger,
		done:       make(chan struct{}),
		stderrDone: make(chan struct{}),
	}

	go proc.relayStderr()
	go func() {
		// Wait closes the pipes once the process exits; let the relay hit
		// EOF first so trailing stderr lines are not lost.
		<-proc.stderrDone
		proc.waitErr = cmd.Wait()
		close(proc.done)
	}()

	wrap.afterStart(proc, logger)

	logger.Debug("server started",
		zap.String("binary", binary),
		zap.Strings("args", args),
		zap.Int("pid", proc.PID()))

	return proc, nil
}

// relayStderr decodes the server's stderr line by line and forwards each
// line to the logger, so the server's diagnostic chatter is visible while a
// test runs.
func (p *ServerProcess) relayStderr() {
	defer close(p.stderrDone)

	serverLog := p.logger.Named("server")
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		serverLog.Info(scanner.Text())
	}
}

// PID returns the OS process id of the server.
func (p *ServerProcess) PID() int {
	return p.cmd.Process.Pid
}

// Stdin returns the write side of the server's standard input.
func (p *ServerProcess) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns the read side of the server's standard output.
func (p *ServerProcess) Stdout() io.ReadCloser { return p.stdout }

// Done is closed once the process has exited.
func (p *ServerProcess) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has already exited.
func (p *ServerProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Kill forcibly terminates the server without the graceful stdin-close
// step.
func (p *ServerProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
		return processErr("kill pid %d: %v", p.PID(), err)
	}
	return nil
}

// Stop terminates the server. It requests a graceful exit by closing stdin,
// waits briefly, then kills the process and awaits its exit. Stop is safe to
// call on an already-exited process and never blocks indefinitely.
func (p *ServerProcess) Stop() error {
	if p.stopped {
		return nil
	}
	p.stopped = true

	// Closing stdin is the graceful signal: a conforming server exits when
	// its input stream ends.
	if err := p.stdin.Close(); err != nil {
		p.logger.Debug("closing server stdin", zap.Error(err))
	}

	select {
	case <-p.done:
	case <-time.After(stopGraceWait):
		p.logger.Warn("server did not exit, killing", zap.Int("pid", p.PID()))
		if err := p.cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
			p.logger.Warn("kill failed", zap.Error(err))
		}
		select {
		case <-p.done:
		case <-time.After(stopGraceWait):
			return processErr("server pid %d did not exit after kill", p.PID())
		}
	}

	// Join the stderr relay so no task outlives the process. The relay ends
	// on its own once the pipe hits EOF.
	select {
	case <-p.stderrDone:
	case <-time.After(stopGraceWait):
		p.logger.Warn("stderr relay did not finish")
	}

	if p.waitErr != nil {
		p.logger.Debug("server exit status", zap.Error(p.waitErr))
	}
	return nil
}

// WaitContext blocks until the process exits or ctx is cancelled.
func (p *ServerProcess) WaitContext(ctx context.Context) error {
	select {
	case <-p.done:
		return p.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
