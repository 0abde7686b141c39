package player

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
)

// FFplayOutput plays audio clips through an ffplay subprocess. Pause and
// resume are implemented with SIGSTOP/SIGCONT, which is how a headless
// shell can hold a decoder mid-clip without seeking support.
type FFplayOutput struct {
	command string
}

// NewFFplayOutput creates an ffplay playback device. An empty command
// falls back to "ffplay".
func NewFFplayOutput(command string) *FFplayOutput {
	if command == "" {
		command = "ffplay"
	}
	return &FFplayOutput{command: command}
}

// Start launches ffplay on the clip; playback begins immediately.
func (o *FFplayOutput) Start(ctx context.Context, path string) (Session, error) {
	cmd := exec.CommandContext(ctx, o.command,
		"-nodisp",
		"-autoexit",
		"-loglevel", "quiet",
		path,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", o.command, err)
	}

	s := &ffplaySession{
		cmd:  cmd,
		done: make(chan error, 1),
	}
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped || err == nil {
			s.done <- nil
		} else {
			s.done <- err
		}
		close(s.done)
	}()
	return s, nil
}

type ffplaySession struct {
	cmd  *exec.Cmd
	done chan error

	mu      sync.Mutex
	stopped bool
}

func (s *ffplaySession) Pause() error {
	return s.cmd.Process.Signal(syscall.SIGSTOP)
}

func (s *ffplaySession) Resume() error {
	return s.cmd.Process.Signal(syscall.SIGCONT)
}

func (s *ffplaySession) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	// Resume first so a paused process can observe the kill.
	_ = s.cmd.Process.Signal(syscall.SIGCONT)
	_ = s.cmd.Process.Kill()
	<-s.done
	return nil
}

func (s *ffplaySession) Done() <-chan error {
	return s.done
}
