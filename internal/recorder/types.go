// Package recorder provides the microphone capture controller.
package recorder

import (
	"context"
	"errors"
)

// Common errors signaled to the caller. None of these should crash the
// host UI; they are recoverable events.
var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrStartFailed      = errors.New("failed to start recording")
	ErrStopFailed       = errors.New("failed to stop recording")
	ErrNoClip           = errors.New("recorder produced no retrievable clip")
	ErrEncodeFailed     = errors.New("failed to encode clip")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrBusy             = errors.New("recording already in progress")
)

// Phase is the capture lifecycle phase.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhasePermissionPending Phase = "permissionPending"
	PhaseRecording         Phase = "recording"
	PhaseStopping          Phase = "stopping"
)

// Permission is the microphone permission status.
type Permission string

const (
	PermissionUndetermined Permission = "undetermined"
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
)

// State is the externally observable recording state.
type State struct {
	Phase      Phase
	Permission Permission
}

// event drives the capture state machine.
type event string

const (
	eventStart     event = "start"
	eventGranted   event = "granted"
	eventDenied    event = "denied"
	eventStop      event = "stop"
	eventFinished  event = "finished"
	eventFailed    event = "failed"
)

// transition is the pure capture state function. It returns the next
// state; ok is false when the event is not valid in the current state.
func transition(s State, e event) (State, bool) {
	switch e {
	case eventStart:
		if s.Phase != PhaseIdle {
			return s, false
		}
		s.Phase = PhasePermissionPending
		return s, true
	case eventGranted:
		if s.Phase != PhasePermissionPending {
			return s, false
		}
		s.Phase = PhaseRecording
		s.Permission = PermissionGranted
		return s, true
	case eventDenied:
		if s.Phase != PhasePermissionPending {
			return s, false
		}
		s.Phase = PhaseIdle
		s.Permission = PermissionDenied
		return s, true
	case eventStop:
		if s.Phase != PhaseRecording {
			return s, false
		}
		s.Phase = PhaseStopping
		return s, true
	case eventFinished, eventFailed:
		s.Phase = PhaseIdle
		return s, true
	}
	return s, false
}

// Device is the platform audio-recording capability. Start begins
// capturing into the file at path; the returned Clip ends the capture.
type Device interface {
	Start(ctx context.Context, path string) (Clip, error)
}

// Clip is one in-progress device capture.
type Clip interface {
	// Stop finalizes the capture; the clip file must be complete when
	// Stop returns.
	Stop() error
}

// PermissionChecker resolves microphone access before capture begins.
type PermissionChecker interface {
	Request(ctx context.Context) (granted bool, err error)
}

// GrantedPermission is a PermissionChecker for hosts without a runtime
// permission prompt (desktop shells).
type GrantedPermission struct{}

func (GrantedPermission) Request(context.Context) (bool, error) { return true, nil }
