package sink

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smazurov/camkeep/internal/process"
)

const defaultQueue = 4

// Exec pipes frames to a helper command's stdin. Frames are queued and written
// by a separate goroutine; when the queue is full the frame is dropped.
type Exec struct {
	proc   *process.Process
	queue  chan []byte
	logger *slog.Logger

	written atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// ExecConfig describes the helper command.
type ExecConfig struct {
	Command string
	Queue   int      // frames buffered before dropping, <= 0 uses a small default
	Env     []string // KEY=VALUE pairs passed through to the command
}

// NewExec starts the command and returns a sink feeding it.
func NewExec(cfg ExecConfig, logger *slog.Logger) (*Exec, error) {
	queue := cfg.Queue
	if queue <= 0 {
		queue = defaultQueue
	}
	proc := process.New("sink", cfg.Command, logger, process.WithEnv(cfg.Env...))
	stdin, err := proc.Start()
	if err != nil {
		return nil, err
	}

	e := &Exec{
		proc:   proc,
		queue:  make(chan []byte, queue),
		logger: logger,
		done:   make(chan struct{}),
	}
	go e.write(stdin)
	return e, nil
}

// Consume implements Consumer. It never blocks.
func (e *Exec) Consume(frame []byte) {
	select {
	case <-e.done:
		e.dropped.Add(1)
		return
	default:
	}

	select {
	case e.queue <- append([]byte(nil), frame...):
	default:
		if e.dropped.Add(1)%100 == 1 {
			e.logger.Warn("Sink command is falling behind, dropping frames", "dropped", e.dropped.Load())
		}
	}
}

// Stats returns frames written and dropped so far.
func (e *Exec) Stats() (written, dropped uint64) {
	return e.written.Load(), e.dropped.Load()
}

// Close stops the writer and the command, returning its exit code.
func (e *Exec) Close() int {
	e.closeOnce.Do(func() { close(e.done) })
	code := e.proc.Stop()
	written, dropped := e.Stats()
	e.logger.Info("Sink command stopped", "exit_code", code, "written", written, "dropped", dropped)
	return code
}

func (e *Exec) write(w io.Writer) {
	for {
		select {
		case <-e.done:
			return
		case <-e.proc.Done():
			e.logger.Error("Sink command exited", "exit_code", e.proc.ExitCode())
			e.closeOnce.Do(func() { close(e.done) })
			return
		case frame := <-e.queue:
			if _, err := w.Write(frame); err != nil {
				if !errors.Is(err, io.ErrClosedPipe) {
					e.logger.Warn("Failed to write frame to sink command", "error", err)
				}
				e.dropped.Add(1)
				continue
			}
			e.written.Add(1)
		}
	}
}
