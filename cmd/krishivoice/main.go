// KrishiVoice - voice and text assistant client for farmers
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/krishivoice/krishivoice/internal/agent"
	"github.com/krishivoice/krishivoice/internal/bus"
	"github.com/krishivoice/krishivoice/internal/chat"
	"github.com/krishivoice/krishivoice/internal/config"
	"github.com/krishivoice/krishivoice/internal/discovery"
	"github.com/krishivoice/krishivoice/internal/language"
	"github.com/krishivoice/krishivoice/internal/logging"
	"github.com/krishivoice/krishivoice/internal/player"
	"github.com/krishivoice/krishivoice/internal/recorder"
	"github.com/krishivoice/krishivoice/internal/session"
)

// app bundles the wired pipeline for the REPL.
type app struct {
	cfg          *config.Config
	logger       *logging.Logger
	eventBus     *bus.EventBus
	sessions     *session.Manager
	client       *agent.Client
	orchestrator *chat.Orchestrator
	recorder     *recorder.Recorder

	// One playback controller per audio-bearing reply; this is the most
	// recent one, target of /replay. Nil until the first spoken reply.
	output player.Output
	player *player.Player
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v (continuing with defaults)\n", err)
	}

	logCfg := logging.DefaultConfig()
	if cfg.Logging.Dir != "" {
		logCfg.LogDir = cfg.Logging.Dir
	}
	if cfg.Logging.Level != "" {
		logCfg.Level = logging.Level(cfg.Logging.Level)
	}
	logCfg.Console = cfg.Logging.Console

	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	a := wire(cfg, logger)
	defer a.disposePlayer()

	log := logger.Component("main")
	log.Info().
		Str("server", cfg.Agent.ServerURL).
		Str("user", a.sessions.UserID()).
		Str("session", a.sessions.SessionID()).
		Msg("KrishiVoice started")

	config.Watch(func(next *config.Config) {
		log.Info().Msg("Configuration reloaded")
		a.cfg = next
	})

	a.run()
}

// wire assembles the pipeline from configuration.
func wire(cfg *config.Config, logger *logging.Logger) *app {
	eventBus := bus.NewEventBus()
	zl := logger.Zerolog()

	configDir, _ := config.Dir()
	sessions := session.NewManager(configDir, zl, session.WithEventBus(eventBus))

	client := agent.NewClient(&agent.ClientConfig{
		ServerURL: cfg.Agent.ServerURL,
		Timeout:   cfg.Agent.Timeout,
	}, zl)

	orchestrator := chat.NewOrchestrator(client, sessions, eventBus, zl, chat.OrchestratorConfig{
		SampleRate: cfg.Audio.SampleRate,
	})
	orchestrator.SetLanguage(cfg.Language.Selected)

	device := recorder.NewFFmpegDevice(cfg.Audio.RecordCommand, cfg.Audio.InputFormat, cfg.Audio.InputDevice, cfg.Audio.SampleRate)
	rec := recorder.New(device, nil, eventBus, zl, recorder.Config{
		MaxDuration: cfg.Audio.MaxRecording,
		TempDir:     cfg.Audio.TempDir,
	})

	a := &app{
		cfg:          cfg,
		logger:       logger,
		eventBus:     eventBus,
		sessions:     sessions,
		client:       client,
		orchestrator: orchestrator,
		recorder:     rec,
		output:       player.NewFFplayOutput(cfg.Audio.PlayerCommand),
	}
	a.subscribeNotices()
	return a
}

// subscribeNotices surfaces pipeline events on the console. The
// controllers only publish; this is the subscribing UI layer.
func (a *app) subscribeNotices() {
	a.eventBus.Subscribe(bus.EventTypeRecordingTimeout, func(bus.Event) {
		fmt.Println("\nRecording stopped at the safety limit.")
	})
	a.eventBus.Subscribe(bus.EventTypePlaybackFinished, func(bus.Event) {
		fmt.Println("(spoken reply finished; /replay plays it again)")
	})
	log := a.logger.Component("main")
	a.eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventTypeTurnFailed,
		bus.EventTypeRecordingError,
		bus.EventTypePlaybackError,
	}, func(e bus.Event) {
		msg, _ := e.Data["error"].(string)
		log.Warn().Str("event", string(e.Type)).Str("error", msg).Msg("Pipeline error")
	})
}

// disposePlayer retires the current reply's playback controller.
func (a *app) disposePlayer() {
	if a.player != nil {
		a.player.Dispose()
		a.player = nil
	}
}

func (a *app) run() {
	fmt.Println("KrishiVoice ready. Type a question, or /help for commands.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			a.textTurn(line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/help":
			printHelp()
		case "/record":
			a.voiceTurn(scanner)
		case "/replay":
			a.replay()
		case "/lang":
			a.switchLanguage(arg)
		case "/new":
			a.newSession()
		case "/reset":
			a.resetIdentity()
		case "/history":
			a.printHistory()
		case "/status":
			a.printStatus()
		case "/logs":
			a.printLogs()
		case "/diagnose":
			a.diagnose(arg)
		case "/quit", "/exit":
			return
		default:
			fmt.Printf("Unknown command %s; try /help\n", cmd)
		}
	}
}

func (a *app) textTurn(text string) {
	reply, err := a.orchestrator.SubmitText(context.Background(), text)
	if err != nil && !errors.Is(err, chat.ErrTurnFailed) {
		// Rejected before dispatch; nothing was appended.
		fmt.Printf("Could not send: %v\n", err)
		return
	}
	// On a failed turn the reply is the appended failure notice.
	fmt.Printf("assistant: %s\n", reply.Text)
}

// voiceTurn records until the farmer presses Enter or the safety ceiling
// ends the clip. The speaker stays quiet while the mic is open: any
// active playback is disposed before capture starts.
func (a *app) voiceTurn(scanner *bufio.Scanner) {
	a.disposePlayer()

	ctx := context.Background()

	// Ceiling-ended captures arrive through this handler.
	resultCh := make(chan recorder.Result, 1)
	a.recorder.OnResult(func(res recorder.Result) {
		resultCh <- res
	})

	if err := a.recorder.Start(ctx); err != nil {
		fmt.Printf("Could not start recording: %v\n", err)
		return
	}
	fmt.Println("Recording... press Enter to stop.")

	stopped := make(chan struct{})
	go func() {
		scanner.Scan()
		close(stopped)
	}()

	var res recorder.Result
	select {
	case res = <-resultCh:
		fmt.Println("Press Enter to continue.")
		<-stopped
	case <-stopped:
		res = a.recorder.Stop()
	}

	if res.Err != nil {
		fmt.Printf("Recording failed: %v\n", res.Err)
		return
	}
	fmt.Printf("Captured %s of audio, sending...\n", res.Duration.Round(time.Second))

	reply, err := a.orchestrator.SubmitVoice(ctx, res.PayloadBase64)
	if err != nil && !errors.Is(err, chat.ErrTurnFailed) {
		fmt.Printf("Could not send: %v\n", err)
		return
	}
	fmt.Printf("assistant: %s\n", reply.Text)
	if err != nil {
		return
	}

	if reply.HasAudio {
		// Each spoken reply gets its own playback controller.
		p := player.New(a.output, a.eventBus, a.logger.Zerolog(), a.cfg.Audio.TempDir)
		if err := p.Load(reply.AudioPayload); err != nil {
			fmt.Printf("Could not prepare the spoken reply: %v\n", err)
			p.Dispose()
			return
		}
		a.player = p
		if err := p.Play(ctx); err != nil {
			fmt.Printf("Could not play the spoken reply: %v\n", err)
		}
	}
}

func (a *app) replay() {
	if a.player == nil {
		fmt.Println("No spoken reply yet.")
		return
	}
	if err := a.player.Replay(context.Background()); err != nil {
		fmt.Printf("Nothing to replay: %v\n", err)
	}
}

func (a *app) switchLanguage(id string) {
	if id == "" {
		fmt.Print("Available languages:")
		for _, sel := range language.All() {
			fmt.Printf(" %s", sel.ID)
		}
		fmt.Println()
		return
	}
	sel := a.orchestrator.SetLanguage(id)
	if sel.ID != id {
		fmt.Printf("Unknown language %q, using %s\n", id, sel.DisplayName)
		return
	}
	fmt.Printf("Language set to %s\n", sel.DisplayName)

	a.cfg.Language.Selected = sel.ID
	if err := config.Save(a.cfg); err != nil {
		mlog := a.logger.Component("main")
		mlog.Warn().Err(err).Msg("Failed to persist language selection")
	}
}

func (a *app) newSession() {
	a.sessions.StartNewSession()
	a.orchestrator.History().Clear()
	a.disposePlayer()
	fmt.Printf("New session: %s\n", a.sessions.SessionID())
}

// resetIdentity forgets the durable user id as well as the session, like
// a logout on a device the farmer is handing over.
func (a *app) resetIdentity() {
	a.sessions.ClearSession()
	a.orchestrator.History().Clear()
	a.disposePlayer()
	fmt.Printf("Identity cleared. New user: %s\n", a.sessions.UserID())
}

func (a *app) printHistory() {
	msgs := a.orchestrator.History().Messages()
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	for _, m := range msgs {
		marker := ""
		if m.HasAudio {
			marker = " [audio]"
		}
		fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Text, marker)
	}
}

func (a *app) printLogs() {
	entries := a.logger.History(20)
	if len(entries) == 0 {
		fmt.Println("No log entries yet.")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s %-5s %s\n", e.Timestamp, e.Level, e.Message)
	}
	fmt.Printf("Full log: %s\n", a.logger.LogPath())
}

// printStatus health-checks the configured backend and scans the usual
// local ports for alternatives.
func (a *app) printStatus() {
	svc := discovery.NewService(&discovery.Config{
		Ports:      discovery.DefaultConfig().Ports,
		CustomURLs: []string{a.cfg.Agent.ServerURL},
		Timeout:    2 * time.Second,
	})

	backends := svc.Scan()
	if len(backends) == 0 {
		fmt.Printf("No backend reachable (configured: %s)\n", a.cfg.Agent.ServerURL)
		return
	}
	for _, b := range backends {
		current := ""
		if b.URL == a.cfg.Agent.ServerURL {
			current = " (configured)"
		}
		fmt.Printf("%-8s %s %s %s %dms%s\n", b.Status, b.URL, b.Service, b.Version, b.Latency, current)
	}
}

func (a *app) diagnose(arg string) {
	imagePath, description, _ := strings.Cut(arg, " ")
	if imagePath == "" {
		fmt.Println("Usage: /diagnose <image-path> [description]")
		return
	}

	result, err := a.client.DiagnoseCrop(context.Background(), imagePath, strings.TrimSpace(description))
	if err != nil {
		fmt.Printf("Diagnosis failed: %v\n", err)
		return
	}
	if !result.Parsed() {
		fmt.Println("Could not interpret the diagnosis; raw reply:")
		fmt.Println(result.RawText)
		return
	}

	d := result.Diagnosis
	if d.CropHealthDiagnosis != nil {
		c := d.CropHealthDiagnosis
		if c.DiseaseDetected {
			fmt.Printf("Disease: %s (confidence %s, severity %s)\n", c.DiseaseName, c.Confidence, c.Severity)
		} else {
			fmt.Println("No disease detected.")
		}
		if c.Description != "" {
			fmt.Println(c.Description)
		}
	}
	if d.TreatmentRecommendation != nil {
		tr := d.TreatmentRecommendation
		if tr.ImmediateAction != "" {
			fmt.Printf("Immediate action: %s\n", tr.ImmediateAction)
		}
		if tr.OrganicTreatment != "" {
			fmt.Printf("Organic treatment: %s\n", tr.OrganicTreatment)
		}
		if tr.ChemicalTreatment != "" {
			fmt.Printf("Chemical treatment: %s\n", tr.ChemicalTreatment)
		}
	}
	if d.Disclaimer != "" {
		fmt.Println(d.Disclaimer)
	}
}

// loadEnvFiles loads environment overrides from ~/.krishivoice/.env and a
// local .env, if present.
func loadEnvFiles() {
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".krishivoice", ".env"))
	}
	_ = godotenv.Load()
}

func printHelp() {
	fmt.Println(`Commands:
  <text>              ask the assistant
  /record             record a voice question (Enter stops)
  /replay             replay the last spoken reply
  /lang [id]          list languages or switch
  /new                start a new session
  /reset              clear the stored identity
  /history            show the conversation
  /status             check backend availability
  /logs               show recent log entries
  /diagnose <image>   analyze a crop photo
  /quit               exit`)
}
