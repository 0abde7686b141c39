package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/krishivoice/krishivoice/internal/agent"
	"github.com/krishivoice/krishivoice/internal/bus"
	"github.com/krishivoice/krishivoice/internal/language"
)

const failureNotice = "Sorry, I could not reach the assistant. Please try again."

// Invoker is the agent platform surface the orchestrator needs.
type Invoker interface {
	InvokeText(ctx context.Context, req agent.TextRequest) (*agent.TextResponse, error)
	InvokeVoice(ctx context.Context, req agent.VoiceRequest) (*agent.VoiceResponse, error)
	Translate(ctx context.Context, text, targetLanguage string) string
}

// Identity supplies the stable user ID and current session ID.
type Identity interface {
	UserID() string
	SessionID() string
}

// OrchestratorConfig configures turn dispatch.
type OrchestratorConfig struct {
	SampleRate int // recorded clip sample rate reported to the agent
}

// DefaultOrchestratorConfig returns sensible defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{SampleRate: 48000}
}

// Orchestrator runs conversational turns. One turn is in flight at a
// time; a submit while busy is rejected without touching the transcript.
// Completed turns append to the history in completion order and are never
// rolled back.
type Orchestrator struct {
	invoker  Invoker
	identity Identity
	history  *History
	eventBus *bus.EventBus
	logger   zerolog.Logger
	cfg      OrchestratorConfig

	mu    sync.Mutex
	phase TurnPhase
	lang  language.Selection
}

// NewOrchestrator creates a turn orchestrator.
func NewOrchestrator(invoker Invoker, identity Identity, eventBus *bus.EventBus, logger zerolog.Logger, cfg OrchestratorConfig) *Orchestrator {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &Orchestrator{
		invoker:  invoker,
		identity: identity,
		history:  NewHistory(),
		eventBus: eventBus,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		cfg:      cfg,
		phase:    TurnIdle,
		lang:     language.Resolve(language.DefaultID),
	}
}

// History returns the conversation transcript.
func (o *Orchestrator) History() *History {
	return o.history
}

// Phase returns the current turn phase.
func (o *Orchestrator) Phase() TurnPhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Language returns the active language selection.
func (o *Orchestrator) Language() language.Selection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lang
}

// SetLanguage switches the conversation language. Unknown IDs fall back
// to the default selection.
func (o *Orchestrator) SetLanguage(id string) language.Selection {
	sel := language.Resolve(id)
	o.mu.Lock()
	o.lang = sel
	o.mu.Unlock()
	o.logger.Info().Str("language", sel.ID).Str("speech", sel.SpeechCode).Msg("Language selected")
	return sel
}

// SubmitText runs one typed-text turn and returns the assistant reply
// message once it has been appended to the history.
func (o *Orchestrator) SubmitText(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyInput
	}

	lang, err := o.begin()
	if err != nil {
		return Message{}, err
	}

	o.appendAndAnnounce(Message{Role: RoleUser, Text: text})

	o.setPhase(TurnAwaitingResponse)
	resp, err := o.invoker.InvokeText(ctx, agent.TextRequest{
		UserID:    o.identity.UserID(),
		SessionID: o.identity.SessionID(),
		TextData:  text,
	})
	if err != nil {
		return o.failTurn(ctx, lang, err)
	}

	o.setPhase(TurnApplyingResponse)
	reply := o.appendAndAnnounce(Message{Role: RoleAssistant, Text: replyText(resp.AgentResponseTranslated, resp.AgentResponse)})
	o.complete(reply)
	return reply, nil
}

// SubmitVoice runs one recorded-audio turn. The transcript of what the
// farmer said and the assistant reply are appended as an adjacent pair;
// the reply message carries the spoken audio when the agent returned one.
func (o *Orchestrator) SubmitVoice(ctx context.Context, payloadBase64 string) (Message, error) {
	if payloadBase64 == "" {
		return Message{}, ErrEmptyInput
	}

	lang, err := o.begin()
	if err != nil {
		return Message{}, err
	}

	o.setPhase(TurnAwaitingResponse)
	resp, err := o.invoker.InvokeVoice(ctx, agent.VoiceRequest{
		UserID:        o.identity.UserID(),
		SessionID:     o.identity.SessionID(),
		AudioData:     payloadBase64,
		AudioEncoding: "MP3",
		SampleRate:    o.cfg.SampleRate,
		LanguageCode:  lang.SpeechCode,
	})
	if err != nil {
		return o.failTurn(ctx, lang, err)
	}

	o.setPhase(TurnApplyingResponse)
	userMsg := Message{Role: RoleUser, Text: resp.OriginalTranscript}
	replyMsg := Message{
		Role:         RoleAssistant,
		Text:         replyText(resp.AgentResponseTranslated, resp.AgentResponse),
		HasAudio:     resp.ResponseAudioData != "",
		AudioPayload: resp.ResponseAudioData,
	}
	stamped := o.history.Append(userMsg, replyMsg)
	for _, m := range stamped {
		o.announce(m)
	}

	reply := stamped[1]
	o.logger.Debug().
		Str("transcript", resp.OriginalTranscript).
		Float64("confidence", resp.TranscriptionConfidence).
		Bool("audio_reply", reply.HasAudio).
		Msg("Voice turn applied")
	o.complete(reply)
	return reply, nil
}

// begin claims the single in-flight turn slot.
func (o *Orchestrator) begin() (language.Selection, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != TurnIdle {
		return language.Selection{}, ErrTurnInFlight
	}
	o.setPhaseLocked(TurnDispatching)
	return o.lang, nil
}

// failTurn appends exactly one failure notice and releases the turn slot.
// Already-appended messages stay; there is no rollback.
func (o *Orchestrator) failTurn(ctx context.Context, lang language.Selection, cause error) (Message, error) {
	o.logger.Error().Err(cause).Msg("Turn failed")

	notice := failureNotice
	if lang.TextCode != "" && lang.TextCode != "en" {
		notice = o.invoker.Translate(ctx, failureNotice, lang.TextCode)
	}
	msg := o.appendAndAnnounce(Message{Role: RoleAssistant, Text: notice})

	o.setPhase(TurnIdle)
	o.publish(bus.EventTypeTurnFailed, map[string]any{"error": cause.Error()})
	return msg, fmt.Errorf("%w: %v", ErrTurnFailed, cause)
}

func (o *Orchestrator) complete(reply Message) {
	o.setPhase(TurnIdle)
	o.publish(bus.EventTypeTurnCompleted, map[string]any{"message_id": reply.ID})
}

func (o *Orchestrator) appendAndAnnounce(m Message) Message {
	stamped := o.history.Append(m)
	o.announce(stamped[0])
	return stamped[0]
}

func (o *Orchestrator) announce(m Message) {
	o.publish(bus.EventTypeMessageAppended, map[string]any{
		"message_id": m.ID,
		"role":       string(m.Role),
	})
}

func (o *Orchestrator) setPhase(p TurnPhase) {
	o.mu.Lock()
	o.setPhaseLocked(p)
	o.mu.Unlock()
}

// setPhaseLocked records the phase change. Caller must hold o.mu.
func (o *Orchestrator) setPhaseLocked(p TurnPhase) {
	old := o.phase
	o.phase = p
	if old == p {
		return
	}
	o.publish(bus.EventTypeTurnStateChanged, map[string]any{
		"old_phase": string(old),
		"new_phase": string(p),
	})
}

func (o *Orchestrator) publish(t bus.EventType, data map[string]any) {
	if o.eventBus == nil {
		return
	}
	o.eventBus.Publish(bus.Event{Type: t, Data: data})
}

// replyText prefers the reply already translated into the farmer's
// language, falling back to the agent's untranslated answer.
func replyText(translated, original string) string {
	if translated != "" {
		return translated
	}
	return original
}
