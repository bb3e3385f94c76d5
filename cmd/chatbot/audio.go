package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/onchain-voice-lab/internal/agent"
	"github.com/onchain-voice-lab/internal/config"
	"github.com/onchain-voice-lab/internal/logging"
	"github.com/onchain-voice-lab/internal/mcp"
	"github.com/onchain-voice-lab/internal/realtime"
	"github.com/onchain-voice-lab/internal/server"
	"github.com/onchain-voice-lab/internal/ui"
	"github.com/onchain-voice-lab/internal/voice"
	"github.com/onchain-voice-lab/internal/wallet"
)

const taskGrace = 5 * time.Second

func sessionConfig(cfg config.Config) realtime.SessionConfig {
	sc := realtime.SessionConfig{
		Modalities:        cfg.Realtime.Modalities,
		Instructions:      cfg.Realtime.Instructions,
		Voice:             cfg.Realtime.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}
	if cfg.Realtime.TurnDetection != "" {
		sc.TurnDetection = &realtime.TurnDetection{Type: cfg.Realtime.TurnDetection}
	}
	return sc
}

func captureConfig(cfg config.AudioConfig) voice.CaptureConfig {
	return voice.CaptureConfig{
		FFmpegPath: cfg.FFmpegPath,
		Format:     cfg.InputFormat,
		Device:     cfg.InputDevice,
		SampleRate: cfg.SampleRate,
		FrameMs:    cfg.FrameMs,
	}
}

// runAudio runs the voice loops under the terminal UI until the user quits,
// ctx ends or the realtime connection cannot be established.
func runAudio(ctx context.Context, cfg config.Config, ag voice.Agent) error {
	if cfg.Realtime.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required for audio mode")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := voice.NewState()
	tasks := voice.NewTasks(ctx)

	src, err := voice.StartFFmpegSource(ctx, captureConfig(cfg.Audio))
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	// The model reads the streamer; the display needs the program. Build
	// the streamer with a display that is bound once the program exists.
	display := &lateDisplay{}
	streamer := voice.NewStreamer(src, state, display)
	program := tea.NewProgram(ui.NewModel(ctx, streamer), tea.WithAltScreen(), tea.WithContext(ctx))
	display.bind(ui.NewDisplay(program))

	var player voice.Player
	if p, err := voice.NewFFplayPlayer(cfg.Audio.FFplayPath, cfg.Audio.SampleRate); err != nil {
		logging.Warnw("audio playback disabled", "error", err)
		player = voice.DiscardPlayer()
	} else {
		player = p
	}
	defer func() { _ = player.Close() }()

	router := voice.NewRouter(voice.RouterConfig{
		State:      state,
		Agent:      ag,
		ThreadID:   cfg.Agent.ThreadID,
		Classifier: voice.NewClassifier(cfg.Router.Keywords),
		Log:        voice.NewContextLog(),
		Tasks:      tasks,
		Display:    display,
	})

	dialer := realtime.Dialer{
		URL:       cfg.Realtime.RealtimeURL(),
		APIKey:    cfg.Realtime.APIKey,
		Handshake: cfg.Realtime.ConnectTimeout,
	}
	manager := voice.NewManager(voice.ManagerConfig{
		Dialer: voice.DialFunc(func(ctx context.Context) (voice.Stream, error) {
			conn, err := dialer.Dial(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}),
		State:          state,
		Router:         router,
		Player:         player,
		Display:        display,
		Session:        sessionConfig(cfg),
		MaxRetries:     cfg.Realtime.MaxRetries,
		RetryDelay:     cfg.Realtime.RetryDelay,
		ConnectTimeout: cfg.Realtime.ConnectTimeout,
	})

	managerErr := make(chan error, 1)
	go func() {
		err := manager.Run(ctx)
		managerErr <- err
		if errors.Is(err, voice.ErrRetriesExhausted) {
			// keep the terminal message visible before tearing down
			time.Sleep(2 * time.Second)
			program.Quit()
		}
	}()
	go func() {
		if err := streamer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Errorw("audio streamer stopped", "error", err)
			display.Write(fmt.Sprintf("Microphone error: %v", err))
		}
	}()

	_, uiErr := program.Run()
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), taskGrace)
	defer done()
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		logging.Warnw("pending agent requests abandoned", "error", err)
	}

	var runErr error
	select {
	case runErr = <-managerErr:
	case <-time.After(taskGrace):
		logging.Warnw("realtime manager did not stop in time")
	}
	if errors.Is(runErr, voice.ErrRetriesExhausted) {
		return runErr
	}
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return uiErr
	}
	return nil
}

// lateDisplay drops output until a display is bound.
type lateDisplay struct {
	d voice.Display
}

func (l *lateDisplay) bind(d voice.Display) { l.d = d }

func (l *lateDisplay) Write(line string) {
	if l.d != nil {
		l.d.Write(line)
	}
}

func (l *lateDisplay) Replace(text string) {
	if l.d != nil {
		l.d.Replace(text)
	}
}

func (l *lateDisplay) Clear() {
	if l.d != nil {
		l.d.Clear()
	}
}

func (l *lateDisplay) SetSessionID(id string) {
	if l.d != nil {
		l.d.SetSessionID(id)
	}
}

func (l *lateDisplay) SetRecording(on bool) {
	if l.d != nil {
		l.d.SetRecording(on)
	}
}

// runMicTest records a short sample and reports its level.
func runMicTest(ctx context.Context, cfg config.Config, out io.Writer) error {
	fmt.Fprintf(out, "Testing microphone for %s...\n", cfg.Audio.TestDuration)
	src, err := voice.StartFFmpegSource(ctx, captureConfig(cfg.Audio))
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	report, err := voice.TestMicrophone(ctx, src, cfg.Audio.TestDuration, cfg.Audio.SampleRate, cfg.Audio.TestWAVPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report.String())
	return nil
}

// runServe exposes the agent on /api/chatbot and the tool servers behind
// it on /mcp/ws.
func runServe(ctx context.Context, cfg config.Config, ag agent.Runner, tools *mcp.Toolbox, svc *wallet.Service) error {
	e := server.New()
	server.MountChatbot(e, ag)
	server.MountMCP(e, wallet.NewServer(svc, version))

	errCh := make(chan error, 1)
	go func() {
		logging.Infow("chatbot server listening", "addr", cfg.Server.Addr, "tools", tools.Len())
		errCh <- e.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
