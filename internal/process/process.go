package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("process already started")

// exit code reported when the process had to be killed
const killedExitCode = 137

// Process supervises one subprocess.
type Process struct {
	id      string
	command string
	logger  *slog.Logger

	eofTimeout      time.Duration
	gracefulTimeout time.Duration
	killTimeout     time.Duration

	env []string

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	done     chan struct{}
	exitCode int
}

// Option configures a Process.
type Option func(*Process)

// WithEnv adds KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(p *Process) {
		p.env = append(p.env, env...)
	}
}

// New creates a process for command, a shell-like string with quoting.
func New(id, command string, logger *slog.Logger, opts ...Option) *Process {
	p := &Process{
		id:              id,
		command:         command,
		logger:          logger.With("process", id),
		eofTimeout:      2 * time.Second,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the command and returns its stdin.
func (p *Process) Start() (io.WriteCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return nil, ErrAlreadyStarted
	}

	args, err := parseCommand(p.command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}
	p.cmd = cmd
	p.stdin = stdin
	p.logger.Info("Process started", "pid", cmd.Process.Pid, "command", p.command)

	var output sync.WaitGroup
	output.Add(2)
	go p.logOutput(stdout, "stdout", &output)
	go p.logOutput(stderr, "stderr", &output)

	go func() {
		output.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.exitCode = exitCodeFromError(err)
		p.mu.Unlock()
		p.logger.Info("Process exited", "exit_code", exitCodeFromError(err))
		close(p.done)
	}()

	return stdin, nil
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit status, valid after Done is closed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Stop closes stdin and waits for the process to exit on EOF. If it does not,
// the process group gets SIGINT and finally SIGKILL.
// Returns the exit code, or 137 if the process had to be killed.
func (p *Process) Stop() int {
	p.mu.Lock()
	cmd, stdin := p.cmd, p.stdin
	p.mu.Unlock()
	if cmd == nil {
		return 0
	}

	select {
	case <-p.done:
		return p.ExitCode()
	default:
	}

	_ = stdin.Close()
	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(p.eofTimeout):
	}

	p.signal(syscall.SIGINT)

	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", p.gracefulTimeout)
	p.signal(syscall.SIGKILL)
	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal")
	}
	return killedExitCode
}

// signal delivers sig to the whole process group.
func (p *Process) signal(sig syscall.Signal) {
	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("Failed to signal process", "signal", sig.String(), "error", err)
	}
}

func (p *Process) logOutput(r io.Reader, source string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "error"), strings.Contains(lower, "traceback"):
			p.logger.Warn(line, "source", source)
		default:
			p.logger.Debug(line, "source", source)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Debug("Output stream closed", "source", source, "error", err)
	}
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// parseCommand splits a command line, honoring single and double quotes and backslash escapes.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	var quote rune
	inArg := false

	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 {
		return nil, errors.New("unclosed quote in command")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
