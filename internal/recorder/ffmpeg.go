package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// FFmpegDevice captures microphone audio to an MP3 clip using ffmpeg.
type FFmpegDevice struct {
	command     string
	inputFormat string // ffmpeg -f value, e.g. "pulse", "alsa", "avfoundation"
	inputDevice string
	sampleRate  int
}

// NewFFmpegDevice creates an ffmpeg capture device. Empty arguments fall
// back to "ffmpeg", "pulse", "default" and 48 kHz.
func NewFFmpegDevice(command, inputFormat, inputDevice string, sampleRate int) *FFmpegDevice {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if inputDevice == "" {
		inputDevice = "default"
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &FFmpegDevice{
		command:     command,
		inputFormat: inputFormat,
		inputDevice: inputDevice,
		sampleRate:  sampleRate,
	}
}

// Start launches ffmpeg recording mono MP3 into path until Stop.
func (d *FFmpegDevice) Start(ctx context.Context, path string) (Clip, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", d.inputFormat,
		"-i", d.inputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(d.sampleRate),
		"-codec:a", "libmp3lame",
		"-y", path,
	}

	cmd := exec.CommandContext(ctx, d.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", d.command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Catch immediate exits (bad device, missing encoder) before reporting
	// the capture as live.
	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("%s exited before capture started: %w: %s", d.command, err, trimmed(stderr.Bytes()))
		}
		return nil, errors.New("capture process exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegClip{
		process: cmd.Process,
		waitErr: waitErr,
		stderr:  &stderr,
	}, nil
}

type ffmpegClip struct {
	process *os.Process
	waitErr <-chan error
	stderr  *bytes.Buffer

	stopOnce sync.Once
	stopErr  error
}

// Stop interrupts ffmpeg so it flushes and closes the clip file, killing
// the process if it does not exit promptly.
func (c *ffmpegClip) Stop() error {
	c.stopOnce.Do(func() {
		if c.process != nil {
			_ = c.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-c.waitErr:
			if ok {
				c.stopErr = normalizeExit(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if c.process != nil {
				_ = c.process.Kill()
			}
			if err, ok := <-c.waitErr; ok {
				c.stopErr = normalizeExit(err)
			}
		}

		if c.stopErr != nil && c.stderr != nil && c.stderr.Len() > 0 {
			c.stopErr = fmt.Errorf("%w: %s", c.stopErr, trimmed(c.stderr.Bytes()))
		}
	})
	return c.stopErr
}

// normalizeExit treats the nonzero status from an interrupted ffmpeg as a
// clean stop.
func normalizeExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(b []byte) string {
	return string(bytes.TrimSpace(b))
}
