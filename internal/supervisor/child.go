package supervisor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"
)

// child wraps one running encoder process: stdout piped to the hub
// reader, stderr drained into the log, stdin unused.
type child struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	started time.Time

	done    chan struct{}
	exitErr error

	stopping atomic.Bool
}

// startChild launches cmd, wiring stderr into the logger and arranging
// for done to close when the process exits.
func startChild(cmd *exec.Cmd, logger *slog.Logger) (*child, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting encoder: %w", err)
	}

	c := &child{
		cmd:     cmd,
		stdout:  stdout,
		started: time.Now(),
		done:    make(chan struct{}),
	}

	go c.drainStderr(stderr, logger)
	go func() {
		c.exitErr = cmd.Wait()
		close(c.done)
	}()

	return c, nil
}

func (c *child) pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// exited reports whether the process has finished.
func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// terminate stops the process: graceful signal, a bounded grace period,
// then SIGKILL. The final wait happens in the exit goroutine either way.
func (c *child) terminate(grace time.Duration, logger *slog.Logger) {
	c.stopping.Store(true)

	if c.cmd.Process == nil {
		return
	}
	if c.exited() {
		return
	}

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Debug("signal failed, killing encoder",
			slog.Int("pid", c.pid()),
			slog.String("error", err.Error()),
		)
		c.cmd.Process.Kill()
		return
	}

	select {
	case <-c.done:
	case <-time.After(grace):
		logger.Warn("encoder ignored termination signal, killing",
			slog.Int("pid", c.pid()),
			slog.Duration("grace", grace),
		)
		c.cmd.Process.Kill()
	}
}

// drainStderr logs encoder stderr line by line. ffmpeg rewrites its
// progress line with bare carriage returns, so the scanner splits on
// both \n and \r.
func (c *child) drainStderr(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	scanner.Split(scanLinesWithCR)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		logger.Debug("encoder stderr",
			slog.Int("pid", c.pid()),
			slog.String("line", string(line)),
		)
	}
}

// scanLinesWithCR is a bufio.SplitFunc that treats both \n and \r as
// line terminators.
func scanLinesWithCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		// swallow a \n that directly follows \r
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
