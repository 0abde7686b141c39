package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishivoice/krishivoice/internal/agent"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// fakeInvoker scripts agent replies and records requests.
type fakeInvoker struct {
	mu            sync.Mutex
	textErr       error
	voiceErr      error
	textResp      agent.TextResponse
	voiceResp     agent.VoiceResponse
	textReqs      []agent.TextRequest
	voiceReqs     []agent.VoiceRequest
	translations  map[string]string
	translateReqs []string
	block         chan struct{} // when set, InvokeText waits until closed
}

func (f *fakeInvoker) InvokeText(_ context.Context, req agent.TextRequest) (*agent.TextResponse, error) {
	f.mu.Lock()
	f.textReqs = append(f.textReqs, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.textErr != nil {
		return nil, f.textErr
	}
	resp := f.textResp
	return &resp, nil
}

func (f *fakeInvoker) InvokeVoice(_ context.Context, req agent.VoiceRequest) (*agent.VoiceResponse, error) {
	f.mu.Lock()
	f.voiceReqs = append(f.voiceReqs, req)
	f.mu.Unlock()
	if f.voiceErr != nil {
		return nil, f.voiceErr
	}
	resp := f.voiceResp
	return &resp, nil
}

func (f *fakeInvoker) Translate(_ context.Context, text, target string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.translateReqs = append(f.translateReqs, target)
	if t, ok := f.translations[text+"|"+target]; ok {
		return t
	}
	return text
}

type fakeIdentity struct{}

func (fakeIdentity) UserID() string    { return "farmer-1" }
func (fakeIdentity) SessionID() string { return "sess-1" }

func newTestOrchestrator(inv *fakeInvoker) *Orchestrator {
	return NewOrchestrator(inv, fakeIdentity{}, nil, zerolog.Nop(), DefaultOrchestratorConfig())
}

func TestSubmitText_AppendsUserThenAssistant(t *testing.T) {
	inv := &fakeInvoker{textResp: agent.TextResponse{Success: true, AgentResponse: "sow at monsoon onset"}}
	o := newTestOrchestrator(inv)

	reply, err := o.SubmitText(context.Background(), "when to sow ragi?")
	require.NoError(t, err)
	assert.Equal(t, "sow at monsoon onset", reply.Text)

	msgs := o.History().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "when to sow ragi?", msgs[0].Text)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, TurnIdle, o.Phase())

	require.Len(t, inv.textReqs, 1)
	assert.Equal(t, "farmer-1", inv.textReqs[0].UserID)
	assert.Equal(t, "sess-1", inv.textReqs[0].SessionID)
}

func TestSubmitText_PrefersTranslatedReply(t *testing.T) {
	inv := &fakeInvoker{textResp: agent.TextResponse{
		Success:                 true,
		AgentResponse:           "english answer",
		AgentResponseTranslated: "ಕನ್ನಡ ಉತ್ತರ",
	}}
	o := newTestOrchestrator(inv)

	reply, err := o.SubmitText(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "ಕನ್ನಡ ಉತ್ತರ", reply.Text)
}

func TestSubmitText_SequentialTurnsKeepCompletionOrder(t *testing.T) {
	inv := &fakeInvoker{textResp: agent.TextResponse{Success: true, AgentResponse: "a"}}
	o := newTestOrchestrator(inv)

	_, err := o.SubmitText(context.Background(), "first")
	require.NoError(t, err)
	_, err = o.SubmitText(context.Background(), "second")
	require.NoError(t, err)

	msgs := o.History().Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "second", msgs[2].Text)
	assert.Equal(t, RoleAssistant, msgs[3].Role)
}

func TestSubmit_RejectsSecondTurnInFlight(t *testing.T) {
	inv := &fakeInvoker{
		textResp: agent.TextResponse{Success: true, AgentResponse: "a"},
		block:    make(chan struct{}),
	}
	o := newTestOrchestrator(inv)

	done := make(chan error, 1)
	go func() {
		_, err := o.SubmitText(context.Background(), "first")
		done <- err
	}()

	// Wait for the first turn to reach the agent call.
	require.Eventually(t, func() bool {
		inv.mu.Lock()
		defer inv.mu.Unlock()
		return len(inv.textReqs) == 1
	}, waitFor, tick)

	before := o.History().Len()
	reply, err := o.SubmitText(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Zero(t, reply, "rejected submit returns no message")
	reply, err = o.SubmitVoice(context.Background(), "cGF5bG9hZA==")
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Zero(t, reply)
	// Rejected submits leave no trace in the transcript.
	assert.Equal(t, before, o.History().Len())

	close(inv.block)
	require.NoError(t, <-done)
	assert.Len(t, o.History().Messages(), 2)
}

func TestSubmitText_FailureAppendsSingleNotice(t *testing.T) {
	inv := &fakeInvoker{textErr: errors.New("connection refused")}
	o := newTestOrchestrator(inv)

	_, err := o.SubmitText(context.Background(), "hello")
	require.ErrorIs(t, err, ErrTurnFailed)

	msgs := o.History().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, failureNotice, msgs[1].Text)
	assert.Equal(t, TurnIdle, o.Phase(), "a failed turn releases the slot")

	// The failed turn is never rolled back or retried.
	inv.textErr = nil
	inv.textResp = agent.TextResponse{Success: true, AgentResponse: "recovered"}
	_, err = o.SubmitText(context.Background(), "again")
	require.NoError(t, err)
	assert.Len(t, o.History().Messages(), 4)
}

func TestSubmitText_FailureNoticeIsLocalized(t *testing.T) {
	inv := &fakeInvoker{
		textErr: errors.New("timeout"),
		translations: map[string]string{
			failureNotice + "|kn": "ಕ್ಷಮಿಸಿ, ಸಹಾಯಕನನ್ನು ತಲುಪಲು ಆಗಲಿಲ್ಲ.",
		},
	}
	o := newTestOrchestrator(inv)
	o.SetLanguage("kannada")

	_, err := o.SubmitText(context.Background(), "hello")
	require.ErrorIs(t, err, ErrTurnFailed)

	msgs := o.History().Messages()
	assert.Equal(t, "ಕ್ಷಮಿಸಿ, ಸಹಾಯಕನನ್ನು ತಲುಪಲು ಆಗಲಿಲ್ಲ.", msgs[len(msgs)-1].Text)
}

func TestSubmitVoice_AppendsAdjacentPairWithAudio(t *testing.T) {
	inv := &fakeInvoker{voiceResp: agent.VoiceResponse{
		Success:               true,
		OriginalTranscript:    "ರಾಗಿ ಬಿತ್ತನೆ ಯಾವಾಗ",
		AgentResponse:         "at monsoon onset",
		ResponseAudioData:     "bXAzLXJlcGx5",
		ResponseAudioEncoding: "MP3",
	}}
	o := newTestOrchestrator(inv)
	o.SetLanguage("kannada")

	reply, err := o.SubmitVoice(context.Background(), "cmVjb3JkaW5n")
	require.NoError(t, err)
	assert.True(t, reply.HasAudio)
	assert.Equal(t, "bXAzLXJlcGx5", reply.AudioPayload)

	msgs := o.History().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "ರಾಗಿ ಬಿತ್ತನೆ ಯಾವಾಗ", msgs[0].Text)
	assert.Equal(t, RoleAssistant, msgs[1].Role)

	require.Len(t, inv.voiceReqs, 1)
	req := inv.voiceReqs[0]
	assert.Equal(t, "kn-IN", req.LanguageCode)
	assert.Equal(t, "MP3", req.AudioEncoding)
	assert.Equal(t, 48000, req.SampleRate)
	assert.Equal(t, "cmVjb3JkaW5n", req.AudioData)
}

func TestSubmitVoice_UnsupportedLanguageUsesFallbackSpeechCode(t *testing.T) {
	inv := &fakeInvoker{voiceResp: agent.VoiceResponse{Success: true, AgentResponse: "ok"}}
	o := newTestOrchestrator(inv)
	o.SetLanguage("tulu")

	_, err := o.SubmitVoice(context.Background(), "cGF5bG9hZA==")
	require.NoError(t, err)
	assert.Equal(t, "kn-IN", inv.voiceReqs[0].LanguageCode)
}

func TestSubmit_EmptyInput(t *testing.T) {
	o := newTestOrchestrator(&fakeInvoker{})

	reply, err := o.SubmitText(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, reply, "rejected submit returns no message")
	reply, err = o.SubmitVoice(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, reply)
	assert.Zero(t, o.History().Len())
}

func TestSetLanguage_UnknownFallsBackToDefault(t *testing.T) {
	o := newTestOrchestrator(&fakeInvoker{})
	sel := o.SetLanguage("klingon")
	assert.Equal(t, "kannada", sel.ID)
}
