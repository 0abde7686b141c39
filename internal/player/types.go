// Package player provides the audio clip playback controller.
package player

import (
	"context"
	"errors"
)

// Common errors. Decode and transport failures park the controller in
// PhaseError until a new Load; they are never thrown uncaught.
var (
	ErrDecodeFailed   = errors.New("failed to decode audio payload")
	ErrPlaybackFailed = errors.New("playback failed")
	ErrInvalidState   = errors.New("operation not valid in current playback state")
	ErrEmptyPayload   = errors.New("empty audio payload")
)

// Phase is the playback lifecycle phase.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseError   Phase = "error"
)

// State is the externally observable playback state.
type State struct {
	Phase        Phase
	LocalFileRef string // decoded temp file; set only while it exists on disk
	ErrorMessage string
}

// Output is the platform audio-playback capability. Start begins playing
// the file at path immediately.
type Output interface {
	Start(ctx context.Context, path string) (Session, error)
}

// Session is one in-progress playback of a clip.
type Session interface {
	Pause() error
	Resume() error
	// Stop ends playback; Done is closed afterwards.
	Stop() error
	// Done yields the playback outcome: nil when the clip finished or was
	// stopped, an error when the device failed mid-clip.
	Done() <-chan error
}
