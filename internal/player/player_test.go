package player

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// fakeOutput records sessions and lets tests drive clip completion.
type fakeOutput struct {
	mu           sync.Mutex
	startErr     error
	sessions     []*fakeSession
	startEntered chan struct{} // signalled when Start is reached
	startGate    chan struct{} // when set, Start blocks until closed
}

type fakeSession struct {
	mu      sync.Mutex
	paused  bool
	resumed bool
	stopped bool
	done    chan error
}

func (o *fakeOutput) Start(_ context.Context, path string) (Session, error) {
	if o.startErr != nil {
		return nil, o.startErr
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if o.startEntered != nil {
		o.startEntered <- struct{}{}
	}
	if o.startGate != nil {
		<-o.startGate
	}
	s := &fakeSession{done: make(chan error, 1)}
	o.mu.Lock()
	o.sessions = append(o.sessions, s)
	o.mu.Unlock()
	return s, nil
}

func (o *fakeOutput) last() *fakeSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sessions) == 0 {
		return nil
	}
	return o.sessions[len(o.sessions)-1]
}

func (s *fakeSession) Pause() error  { s.mu.Lock(); defer s.mu.Unlock(); s.paused = true; return nil }
func (s *fakeSession) Resume() error { s.mu.Lock(); defer s.mu.Unlock(); s.resumed = true; return nil }

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		s.done <- nil
		close(s.done)
	}
	return nil
}

func (s *fakeSession) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		s.done <- nil
		close(s.done)
	}
}

func (s *fakeSession) Done() <-chan error { return s.done }

func payload(t *testing.T, content string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(content))
}

func tempClips(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "krishivoice-play-*"))
	require.NoError(t, err)
	return matches
}

func newTestPlayer(t *testing.T) (*Player, *fakeOutput, string) {
	t.Helper()
	dir := t.TempDir()
	out := &fakeOutput{}
	return New(out, nil, zerolog.Nop(), dir), out, dir
}

func TestLoad_DecodesToDiskBeforeReady(t *testing.T) {
	p, _, dir := newTestPlayer(t)

	require.NoError(t, p.Load(payload(t, "mp3 reply")))

	s := p.State()
	assert.Equal(t, PhaseReady, s.Phase)
	require.NotEmpty(t, s.LocalFileRef)

	// Ready means the decoded clip is on disk; Play needs no further wait.
	data, err := os.ReadFile(s.LocalFileRef)
	require.NoError(t, err)
	assert.Equal(t, "mp3 reply", string(data))
	assert.Len(t, tempClips(t, dir), 1)
}

func TestLoad_TwiceKeepsExactlyOneTempFile(t *testing.T) {
	p, _, dir := newTestPlayer(t)

	require.NoError(t, p.Load(payload(t, "first")))
	first := p.State().LocalFileRef

	require.NoError(t, p.Load(payload(t, "second")))
	second := p.State().LocalFileRef

	assert.NotEqual(t, first, second)
	_, err := os.Stat(first)
	assert.True(t, os.IsNotExist(err), "first clip must be deleted")
	assert.Len(t, tempClips(t, dir), 1)
}

func TestLoad_InvalidBase64(t *testing.T) {
	p, _, dir := newTestPlayer(t)

	err := p.Load("not-base64!!!")
	require.ErrorIs(t, err, ErrDecodeFailed)

	s := p.State()
	assert.Equal(t, PhaseError, s.Phase)
	assert.NotEmpty(t, s.ErrorMessage)
	assert.Empty(t, s.LocalFileRef)
	assert.Empty(t, tempClips(t, dir))

	// Transport controls stay disabled until a new Load.
	assert.ErrorIs(t, p.Play(context.Background()), ErrInvalidState)
	assert.ErrorIs(t, p.Pause(), ErrInvalidState)
	assert.ErrorIs(t, p.Replay(context.Background()), ErrInvalidState)

	// A fresh Load recovers.
	require.NoError(t, p.Load(payload(t, "recovered")))
	assert.Equal(t, PhaseReady, p.State().Phase)
}

func TestPlayPauseResume(t *testing.T) {
	p, out, _ := newTestPlayer(t)
	require.NoError(t, p.Load(payload(t, "clip")))

	require.NoError(t, p.Play(context.Background()))
	assert.Equal(t, PhasePlaying, p.State().Phase)

	require.NoError(t, p.Pause())
	assert.Equal(t, PhasePaused, p.State().Phase)
	assert.True(t, out.last().paused)

	require.NoError(t, p.Play(context.Background()))
	assert.Equal(t, PhasePlaying, p.State().Phase)
	assert.True(t, out.last().resumed)
}

func TestPlay_InvalidFromIdle(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	assert.ErrorIs(t, p.Play(context.Background()), ErrInvalidState)
}

func TestPause_InvalidUnlessPlaying(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	require.NoError(t, p.Load(payload(t, "clip")))
	assert.ErrorIs(t, p.Pause(), ErrInvalidState)
}

func TestReplay_RestartsFromAnyTransportState(t *testing.T) {
	p, out, _ := newTestPlayer(t)
	require.NoError(t, p.Load(payload(t, "clip")))

	// From ready.
	require.NoError(t, p.Replay(context.Background()))
	assert.Equal(t, PhasePlaying, p.State().Phase)

	// From playing: old session is stopped, a new one starts at the top.
	require.NoError(t, p.Replay(context.Background()))
	assert.Len(t, out.sessions, 2)
	assert.True(t, out.sessions[0].stopped)

	// From paused.
	require.NoError(t, p.Pause())
	require.NoError(t, p.Replay(context.Background()))
	assert.Len(t, out.sessions, 3)
	assert.Equal(t, PhasePlaying, p.State().Phase)
}

func TestClipCompletion_ReturnsToReady(t *testing.T) {
	p, out, _ := newTestPlayer(t)
	require.NoError(t, p.Load(payload(t, "clip")))
	require.NoError(t, p.Play(context.Background()))

	out.last().finish()

	assert.Eventually(t, func() bool {
		return p.State().Phase == PhaseReady
	}, waitFor, tick, "finished clip should be replayable")
	assert.NotEmpty(t, p.State().LocalFileRef)
}

func TestDeviceFailureMidClip_TransitionsToError(t *testing.T) {
	p, out, dir := newTestPlayer(t)
	require.NoError(t, p.Load(payload(t, "clip")))
	require.NoError(t, p.Play(context.Background()))

	s := out.last()
	s.mu.Lock()
	s.stopped = true
	s.done <- errors.New("decoder crashed")
	close(s.done)
	s.mu.Unlock()

	assert.Eventually(t, func() bool {
		return p.State().Phase == PhaseError
	}, waitFor, tick)
	assert.Empty(t, tempClips(t, dir))
}

func TestDispose_MidPlaybackDeletesTempFile(t *testing.T) {
	p, out, dir := newTestPlayer(t)
	require.NoError(t, p.Load(payload(t, "clip")))
	require.NoError(t, p.Play(context.Background()))

	clip := p.State().LocalFileRef
	require.NotEmpty(t, clip)

	// Hosting screen torn down mid-playback.
	p.Dispose()

	_, err := os.Stat(clip)
	assert.True(t, os.IsNotExist(err), "temp file must be absent after teardown")
	assert.Empty(t, tempClips(t, dir))
	assert.Equal(t, PhaseIdle, p.State().Phase)
	assert.True(t, out.last().stopped)
}

func TestDispose_DuringDeviceStartInvalidatesSession(t *testing.T) {
	p, out, dir := newTestPlayer(t)
	out.startEntered = make(chan struct{}, 1)
	out.startGate = make(chan struct{})

	require.NoError(t, p.Load(payload(t, "clip")))

	playErr := make(chan error, 1)
	go func() { playErr <- p.Play(context.Background()) }()

	// Tear down while the device is still starting.
	<-out.startEntered
	p.Dispose()
	close(out.startGate)

	require.ErrorIs(t, <-playErr, ErrInvalidState)
	assert.Eventually(t, func() bool {
		s := out.last()
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.stopped
	}, waitFor, tick, "orphaned session must be stopped")
	assert.Equal(t, PhaseIdle, p.State().Phase)
	assert.Empty(t, tempClips(t, dir))
}

func TestTwoPlayers_IndependentClipLifetimes(t *testing.T) {
	dir := t.TempDir()
	first := New(&fakeOutput{}, nil, zerolog.Nop(), dir)
	second := New(&fakeOutput{}, nil, zerolog.Nop(), dir)

	require.NoError(t, first.Load(payload(t, "reply one")))
	require.NoError(t, second.Load(payload(t, "reply two")))

	// Retiring the older reply's controller leaves the newer one playable.
	first.Dispose()

	s := second.State()
	assert.Equal(t, PhaseReady, s.Phase)
	_, err := os.Stat(s.LocalFileRef)
	require.NoError(t, err)
	require.NoError(t, second.Play(context.Background()))

	second.Dispose()
	assert.Empty(t, tempClips(t, dir))
}

func TestDispose_Idempotent(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	require.NoError(t, p.Load(payload(t, "clip")))
	p.Dispose()
	p.Dispose()
	assert.Equal(t, PhaseIdle, p.State().Phase)
}

func TestPlay_OutputStartFailure(t *testing.T) {
	dir := t.TempDir()
	out := &fakeOutput{startErr: errors.New("no audio device")}
	p := New(out, nil, zerolog.Nop(), dir)

	require.NoError(t, p.Load(payload(t, "clip")))
	err := p.Play(context.Background())
	require.ErrorIs(t, err, ErrPlaybackFailed)
	assert.Equal(t, PhaseError, p.State().Phase)
	assert.Empty(t, tempClips(t, dir))
}
