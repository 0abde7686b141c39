package recorder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/krishivoice/krishivoice/internal/bus"
)

// DefaultMaxDuration bounds a single clip so memory use and the agent
// request payload stay bounded even if the farmer forgets the mic is on.
const DefaultMaxDuration = 60 * time.Second

// Result is one finished capture: the clip base64-encoded for transport,
// or the error that ended it.
type Result struct {
	PayloadBase64 string
	Duration      time.Duration
	Err           error
}

// Config configures a Recorder.
type Config struct {
	MaxDuration time.Duration // safety ceiling per clip (default 60s)
	TempDir     string        // clip scratch directory (default os.TempDir)
}

// Recorder drives one microphone capture at a time through
// idle -> permissionPending -> recording -> stopping -> idle.
//
// The safety timer is the only mechanism besides Stop that can end an
// in-progress recording. Every stop, successful or not, deletes its own
// temp file; no orphan files survive repeated record/stop cycles.
type Recorder struct {
	device     Device
	permission PermissionChecker
	eventBus   *bus.EventBus
	logger     zerolog.Logger
	cfg        Config

	mu        sync.Mutex
	state     State
	clip      Clip
	clipPath  string
	startedAt time.Time
	timer     *time.Timer

	onResult func(Result) // timeout-path delivery, set via OnResult
}

// New creates a Recorder. A nil permission checker behaves as granted.
func New(device Device, permission PermissionChecker, eventBus *bus.EventBus, logger zerolog.Logger, cfg Config) *Recorder {
	if permission == nil {
		permission = GrantedPermission{}
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Recorder{
		device:     device,
		permission: permission,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "recorder").Logger(),
		cfg:        cfg,
		state:      State{Phase: PhaseIdle, Permission: PermissionUndetermined},
	}
}

// State returns the current recording state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnResult registers the handler invoked when the safety timeout ends a
// recording. Stop-initiated captures return their Result directly.
func (r *Recorder) OnResult(fn func(Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onResult = fn
}

// Start requests microphone permission if needed and begins capture.
// Denial returns ErrPermissionDenied and the recorder goes back to idle;
// it never silently retries.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	next, ok := transition(r.state, eventStart)
	if !ok {
		r.mu.Unlock()
		return ErrBusy
	}
	r.setStateLocked(next)
	r.mu.Unlock()

	granted, err := r.permission.Request(ctx)
	if err != nil || !granted {
		r.applyEvent(eventDenied)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Permission request failed")
			r.publishError(fmt.Errorf("%w: %v", ErrPermissionDenied, err))
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		r.logger.Info().Msg("Microphone permission denied")
		r.publishError(ErrPermissionDenied)
		return ErrPermissionDenied
	}

	clipPath := filepath.Join(r.cfg.TempDir, fmt.Sprintf("krishivoice-rec-%s.mp3", uuid.NewString()))
	clip, err := r.device.Start(ctx, clipPath)
	if err != nil {
		r.mu.Lock()
		r.setStateLocked(State{Phase: PhaseIdle, Permission: PermissionGranted})
		r.mu.Unlock()
		r.logger.Error().Err(err).Msg("Device failed to start capture")
		r.publishError(err)
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	r.mu.Lock()
	r.clip = clip
	r.clipPath = clipPath
	r.startedAt = time.Now()
	if next, ok := transition(r.state, eventGranted); ok {
		r.setStateLocked(next)
	}
	r.timer = time.AfterFunc(r.cfg.MaxDuration, r.timeoutStop)
	r.mu.Unlock()

	r.logger.Info().Str("clip", clipPath).Dur("ceiling", r.cfg.MaxDuration).Msg("Recording started")
	r.publish(bus.EventTypeRecordingStarted, nil)
	return nil
}

// Stop ends the capture, base64-encodes the clip and deletes the temp
// file. It is the user-action stop; the safety timer takes the same path.
func (r *Recorder) Stop() Result {
	return r.finish()
}

// timeoutStop is the safety-ceiling path. The result is delivered through
// the OnResult handler since no caller is blocked on Stop.
func (r *Recorder) timeoutStop() {
	r.logger.Warn().Dur("ceiling", r.cfg.MaxDuration).Msg("Recording hit safety ceiling")
	r.publish(bus.EventTypeRecordingTimeout, nil)

	res := r.finish()
	if errors.Is(res.Err, ErrNotRecording) {
		// Lost the race against an explicit Stop; that call delivered.
		return
	}

	r.mu.Lock()
	handler := r.onResult
	r.mu.Unlock()
	if handler != nil {
		handler(res)
	}
}

func (r *Recorder) finish() Result {
	r.mu.Lock()
	next, ok := transition(r.state, eventStop)
	if !ok {
		// A timeout racing an explicit Stop loses; that call owns the clip.
		r.mu.Unlock()
		return Result{Err: ErrNotRecording}
	}
	r.setStateLocked(next)

	clip := r.clip
	clipPath := r.clipPath
	duration := time.Since(r.startedAt)
	timer := r.timer
	r.clip = nil
	r.clipPath = ""
	r.timer = nil
	r.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	res := r.retrieve(clip, clipPath, duration)
	if res.Err != nil {
		r.applyEvent(eventFailed)
		r.logger.Error().Err(res.Err).Msg("Capture failed")
		r.publishError(res.Err)
	} else {
		r.applyEvent(eventFinished)
		r.logger.Info().Dur("duration", duration).Int("encodedLen", len(res.PayloadBase64)).Msg("Recording stopped")
		r.publish(bus.EventTypeRecordingStopped, map[string]any{"duration": duration.String()})
	}
	return res
}

// retrieve finalizes the device clip and encodes it. The temp file is
// deleted on every path, including errors.
func (r *Recorder) retrieve(clip Clip, clipPath string, duration time.Duration) Result {
	defer func() {
		if clipPath != "" {
			if err := os.Remove(clipPath); err != nil && !os.IsNotExist(err) {
				r.logger.Warn().Err(err).Str("clip", clipPath).Msg("Failed to delete clip file")
			}
		}
	}()

	if err := clip.Stop(); err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrStopFailed, err)}
	}

	data, err := os.ReadFile(clipPath)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrNoClip, err)}
	}
	if len(data) == 0 {
		return Result{Err: ErrNoClip}
	}

	return Result{
		PayloadBase64: base64.StdEncoding.EncodeToString(data),
		Duration:      duration,
	}
}

func (r *Recorder) applyEvent(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if next, ok := transition(r.state, e); ok {
		r.setStateLocked(next)
	}
}

// setStateLocked records the new state and announces the change.
// Caller must hold r.mu.
func (r *Recorder) setStateLocked(next State) {
	old := r.state
	r.state = next
	if old == next || r.eventBus == nil {
		return
	}
	r.eventBus.Publish(bus.Event{
		Type: bus.EventTypeRecordingStateChanged,
		Data: map[string]any{
			"old_phase":  string(old.Phase),
			"new_phase":  string(next.Phase),
			"permission": string(next.Permission),
		},
	})
}

func (r *Recorder) publish(t bus.EventType, data map[string]any) {
	if r.eventBus == nil {
		return
	}
	r.eventBus.Publish(bus.Event{Type: t, Data: data})
}

func (r *Recorder) publishError(err error) {
	r.publish(bus.EventTypeRecordingError, map[string]any{"error": err.Error()})
}
