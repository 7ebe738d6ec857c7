// pianodebug is a live terminal dashboard for exercising the practice
// pipeline against the local microphone without a WebSocket client.
//
// Usage:
//
//	pianodebug [-exercise c-major-scale] [-mode hybrid]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/pianopractice/internal/config"
	"github.com/hammamikhairi/pianopractice/internal/detect"
	"github.com/hammamikhairi/pianopractice/internal/domain"
	"github.com/hammamikhairi/pianopractice/internal/exercise"
	"github.com/hammamikhairi/pianopractice/internal/follower"
	"github.com/hammamikhairi/pianopractice/internal/harmonic"
	"github.com/hammamikhairi/pianopractice/internal/ingress"
	"github.com/hammamikhairi/pianopractice/internal/logger"
	"github.com/hammamikhairi/pianopractice/internal/mono"
	"github.com/hammamikhairi/pianopractice/internal/onset"
	"github.com/hammamikhairi/pianopractice/internal/ring"
	"github.com/hammamikhairi/pianopractice/internal/session"
)

func main() {
	exerciseName := flag.String("exercise", "c-major-scale", "built-in exercise name")
	mode := flag.String("mode", "single", "single | chord | hybrid")
	backend := flag.String("input", "malgo", "mic capture backend: malgo | portaudio")
	flag.Parse()

	log := logger.New(logger.LevelOff, nil) // the dashboard owns the screen; no stderr logging

	cfg := config.Default()
	monoEstimator := mono.New(cfg.Ring.SampleRate, mono.PresetV3)
	cqt := detect.NewCQTFallback(cfg.Onset.FFTSize, cfg.Ring.SampleRate, 21, 108, 0.15)
	arbiter := detect.New(monoEstimator, nil, cqt, detect.MatchConfig{})

	exercises := exercise.NewMemorySource(log)
	ex, err := exercises.Get(context.Background(), *exerciseName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exercise %q not found\n", *exerciseName)
		os.Exit(1)
	}

	detMode := detect.ModeSingle
	switch *mode {
	case "chord":
		detMode = detect.ModeChord
	case "hybrid":
		detMode = detect.ModeHybrid
	}

	sink := &programSink{}
	deps := session.Deps{
		Log:      log,
		Sink:     sink,
		Registry: session.NewMemoryRegistry(log),
		Arbiter:  arbiter,
		RingConfig: ring.Config{
			WindowSamples: cfg.Ring.WindowSamples,
			HopRatio:      cfg.Ring.HopRatio,
			SampleRate:    cfg.Ring.SampleRate,
		},
		OnsetConfig: onset.Config{
			FFTSize:         cfg.Onset.FFTSize,
			EnergyThreshold: cfg.Onset.EnergyThreshold,
			SampleRate:      cfg.Ring.SampleRate,
			HistorySize:     cfg.Onset.HistorySize,
		},
		ConsensusConfig: harmonic.ConsensusConfig{
			DedupWindowS: float64(cfg.Harmonic.DedupWindowMs) / 1000.0,
		},
		SlowPathWorkers: cfg.SlowPathWorkers,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	followerCfg := follower.Config{
		LookaheadGroups:      cfg.Follower.LookaheadGroups,
		FrequencyToleranceHz: cfg.Detect.FrequencyToleranceHz,
		PracticeMode:         true,
	}
	coord, err := session.New(ctx, "debug", ex, followerCfg, detMode, deps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session init failed: %v\n", err)
		os.Exit(1)
	}
	defer coord.Close(context.Background())

	var mic domain.FrameSource
	switch *backend {
	case "portaudio":
		mic, err = ingress.NewPortAudioSource(cfg.Ring.SampleRate, cfg.Ring.WindowSamples, log)
	default:
		mic, err = ingress.NewMicSource(cfg.Ring.SampleRate, log)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "microphone init failed: %v\n", err)
		os.Exit(1)
	}
	if closer, ok := mic.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	go func() {
		for {
			frame, ok, err := mic.Next(ctx)
			if err != nil || !ok {
				return
			}
			if err := coord.IngestChunk(ctx, frame.Samples); err != nil {
				return
			}
		}
	}()

	m := dashboardModel{
		exerciseName: ex.Name,
		bpm:          ex.BPM,
		progress:     coord.Progress,
		bar:          progress.New(progress.WithDefaultGradient()),
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	sink.program = p

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
		os.Exit(1)
	}
}

// programSink forwards every pipeline event into the Bubble Tea
// program as a message.
type programSink struct {
	program *tea.Program
}

func (s *programSink) Emit(ctx context.Context, ev domain.EventEnvelope) error {
	if s.program != nil {
		s.program.Send(eventMsg(ev))
	}
	return nil
}

type eventMsg domain.EventEnvelope

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#bbf7d0")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#a1a1aa"))
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#bae6fd"))
	correctStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80"))
	missedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fca5a5"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#71717a"))
)

const maxLogLines = 12

type dashboardModel struct {
	exerciseName string
	bpm          float64
	progress     func() follower.Progress
	bar          progress.Model

	lines []string
}

func (m dashboardModel) Init() tea.Cmd {
	return tickCmd()
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tickCmd()
	case eventMsg:
		m.lines = append(m.lines, formatEvent(domain.EventEnvelope(msg)))
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
	}
	return m, nil
}

func formatEvent(ev domain.EventEnvelope) string {
	switch ev.Type {
	case "onset_detected":
		return dimStyle.Render("onset")
	case "note_detected":
		return noteStyle.Render(fmt.Sprintf("note %v", ev.Payload))
	case "judgement":
		j, ok := ev.Payload.(follower.Judgement)
		if !ok {
			return fmt.Sprintf("judgement %v", ev.Payload)
		}
		text := fmt.Sprintf("%s — %s", j.Action, j.FeedbackString)
		if j.Action == follower.ActionAccept {
			return correctStyle.Render(text)
		}
		return missedStyle.Render(text)
	default:
		return fmt.Sprintf("%s %v", ev.Type, ev.Payload)
	}
}

func (m dashboardModel) View() string {
	p := m.progress()

	b := headerStyle.Render(fmt.Sprintf("piano practice — %s (%.0f BPM)", m.exerciseName, m.bpm)) + "\n\n"
	b += m.bar.ViewAs(p.CompletionPercent) + "\n"
	b += labelStyle.Render(fmt.Sprintf(
		"correct=%d partial=%d missed=%d / %d  bar=%d",
		p.CorrectGroups, p.PartialGroups, p.MissedGroups, p.TotalGroups, p.CurrentBar,
	)) + "\n\n"

	for _, l := range m.lines {
		b += l + "\n"
	}
	b += "\n" + dimStyle.Render("press q to quit")
	return b
}
