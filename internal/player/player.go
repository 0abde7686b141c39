package player

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/krishivoice/krishivoice/internal/bus"
)

// Player drives play/pause/replay of one base64 audio clip at a time.
//
// The decoded clip lives in a temp file scoped to this controller: loading
// a new payload deletes the previous file first, and Dispose deletes it on
// every exit path, including teardown mid-playback. A caller observing
// PhaseReady may Play without a further wait; the file is already on disk.
type Player struct {
	output   Output
	eventBus *bus.EventBus
	logger   zerolog.Logger
	tempDir  string

	mu       sync.Mutex
	state    State
	session  Session
	watchGen int // invalidates completion watchers from stale sessions
}

// New creates a Player. An empty tempDir falls back to os.TempDir.
func New(output Output, eventBus *bus.EventBus, logger zerolog.Logger, tempDir string) *Player {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Player{
		output:   output,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "player").Logger(),
		tempDir:  tempDir,
		state:    State{Phase: PhaseIdle},
	}
}

// State returns the current playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Load decodes the payload to a fresh temp file, replacing and deleting
// any previously loaded clip first. At most one temp playback file exists
// per controller at any time.
func (p *Player) Load(payloadBase64 string) error {
	p.mu.Lock()
	// Invalidate even a session that is still inside output.Start.
	p.watchGen++
	p.stopSessionLocked()
	p.removeFileLocked()
	p.setStateLocked(State{Phase: PhaseLoading})
	p.mu.Unlock()

	if payloadBase64 == "" {
		p.fail(ErrEmptyPayload)
		return ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(payloadBase64)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		p.fail(wrapped)
		return wrapped
	}

	path := filepath.Join(p.tempDir, fmt.Sprintf("krishivoice-play-%s.mp3", uuid.NewString()))
	if err := os.WriteFile(path, data, 0600); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		p.fail(wrapped)
		return wrapped
	}

	p.mu.Lock()
	p.setStateLocked(State{Phase: PhaseReady, LocalFileRef: path})
	p.mu.Unlock()

	p.logger.Debug().Str("clip", path).Int("bytes", len(data)).Msg("Clip loaded")
	return nil
}

// Play begins playback from ready, or resumes from paused.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()

	switch p.state.Phase {
	case PhasePaused:
		session := p.session
		p.setStateLocked(State{Phase: PhasePlaying, LocalFileRef: p.state.LocalFileRef})
		p.mu.Unlock()
		if err := session.Resume(); err != nil {
			p.fail(fmt.Errorf("%w: %v", ErrPlaybackFailed, err))
			return fmt.Errorf("%w: %v", ErrPlaybackFailed, err)
		}
		return nil
	case PhaseReady:
		return p.startLocked(ctx)
	default:
		phase := p.state.Phase
		p.mu.Unlock()
		return fmt.Errorf("%w: play from %s", ErrInvalidState, phase)
	}
}

// Pause suspends playback; valid only while playing.
func (p *Player) Pause() error {
	p.mu.Lock()
	if p.state.Phase != PhasePlaying {
		phase := p.state.Phase
		p.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", ErrInvalidState, phase)
	}
	session := p.session
	p.setStateLocked(State{Phase: PhasePaused, LocalFileRef: p.state.LocalFileRef})
	p.mu.Unlock()

	if err := session.Pause(); err != nil {
		p.fail(fmt.Errorf("%w: %v", ErrPlaybackFailed, err))
		return fmt.Errorf("%w: %v", ErrPlaybackFailed, err)
	}
	return nil
}

// Replay restarts the clip from the beginning regardless of position;
// valid from ready, playing or paused.
func (p *Player) Replay(ctx context.Context) error {
	p.mu.Lock()
	switch p.state.Phase {
	case PhaseReady, PhasePlaying, PhasePaused:
		p.stopSessionLocked()
		p.setStateLocked(State{Phase: PhaseReady, LocalFileRef: p.state.LocalFileRef})
		return p.startLocked(ctx)
	default:
		phase := p.state.Phase
		p.mu.Unlock()
		return fmt.Errorf("%w: replay from %s", ErrInvalidState, phase)
	}
}

// Dispose stops playback if active and deletes the temp file. It is
// idempotent and must run on every teardown path, including unmounting
// the hosting UI mid-playback.
func (p *Player) Dispose() {
	p.mu.Lock()
	// Invalidate even a session that is still inside output.Start.
	p.watchGen++
	p.stopSessionLocked()
	p.removeFileLocked()
	p.setStateLocked(State{Phase: PhaseIdle})
	p.mu.Unlock()
}

// startLocked launches a device session for the loaded clip. Caller must
// hold p.mu; the lock is released before returning.
func (p *Player) startLocked(ctx context.Context) error {
	path := p.state.LocalFileRef
	p.watchGen++
	gen := p.watchGen
	p.mu.Unlock()

	session, err := p.output.Start(ctx, path)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrPlaybackFailed, err)
		p.fail(wrapped)
		return wrapped
	}

	p.mu.Lock()
	if p.watchGen != gen {
		// Disposed or replaced while the device was starting.
		p.mu.Unlock()
		_ = session.Stop()
		return fmt.Errorf("%w: controller was torn down", ErrInvalidState)
	}
	p.session = session
	p.setStateLocked(State{Phase: PhasePlaying, LocalFileRef: path})
	p.mu.Unlock()

	p.publish(bus.EventTypePlaybackStarted, map[string]any{"clip": path})
	go p.watchCompletion(session, gen)
	return nil
}

// watchCompletion returns the controller to ready when the clip finishes
// so the farmer can replay it.
func (p *Player) watchCompletion(session Session, gen int) {
	err := <-session.Done()

	p.mu.Lock()
	if p.watchGen != gen || p.session != session {
		p.mu.Unlock()
		return
	}
	p.session = nil
	if err != nil {
		p.removeFileLocked()
		p.setStateLocked(State{Phase: PhaseError, ErrorMessage: err.Error()})
		p.mu.Unlock()
		p.logger.Error().Err(err).Msg("Playback failed mid-clip")
		p.publish(bus.EventTypePlaybackError, map[string]any{"error": err.Error()})
		return
	}
	p.setStateLocked(State{Phase: PhaseReady, LocalFileRef: p.state.LocalFileRef})
	p.mu.Unlock()
	p.publish(bus.EventTypePlaybackFinished, nil)
}

// stopSessionLocked ends any active device session. Caller must hold p.mu.
func (p *Player) stopSessionLocked() {
	if p.session == nil {
		return
	}
	p.watchGen++
	if err := p.session.Stop(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to stop playback session")
	}
	p.session = nil
}

// removeFileLocked deletes the decoded clip and clears the ref. Caller
// must hold p.mu.
func (p *Player) removeFileLocked() {
	if p.state.LocalFileRef == "" {
		return
	}
	if err := os.Remove(p.state.LocalFileRef); err != nil && !os.IsNotExist(err) {
		p.logger.Warn().Err(err).Str("clip", p.state.LocalFileRef).Msg("Failed to delete playback file")
	}
	p.state.LocalFileRef = ""
}

// fail parks the controller in PhaseError and releases the clip file.
// Transport controls stay disabled until a new Load.
func (p *Player) fail(err error) {
	p.mu.Lock()
	p.stopSessionLocked()
	p.removeFileLocked()
	p.setStateLocked(State{Phase: PhaseError, ErrorMessage: err.Error()})
	p.mu.Unlock()

	p.logger.Error().Err(err).Msg("Playback error")
	p.publish(bus.EventTypePlaybackError, map[string]any{"error": err.Error()})
}

// setStateLocked records the new state and announces phase changes.
// Caller must hold p.mu.
func (p *Player) setStateLocked(next State) {
	old := p.state
	p.state = next
	if old.Phase == next.Phase || p.eventBus == nil {
		return
	}
	p.eventBus.Publish(bus.Event{
		Type: bus.EventTypePlaybackStateChanged,
		Data: map[string]any{
			"old_phase": string(old.Phase),
			"new_phase": string(next.Phase),
		},
	})
}

func (p *Player) publish(t bus.EventType, data map[string]any) {
	if p.eventBus == nil {
		return
	}
	p.eventBus.Publish(bus.Event{Type: t, Data: data})
}
