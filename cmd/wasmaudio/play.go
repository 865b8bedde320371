package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/backend"
	"github.com/wippyai/wasm-audio/bench"
	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	loadedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	meterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))
)

func (a *app) playCmd() *cobra.Command {
	var (
		interactive  bool
		duration     time.Duration
		playbackPath string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Drive a simulated audio callback from the active backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if playbackPath != "" {
				a.cfg.Audio.Playback = playbackPath
			}
			clip, err := a.playback()
			if err != nil {
				return err
			}
			a.clip = clip

			if interactive {
				// the TUI owns the terminal
				a.log = zap.NewNop()
				backend.SetLogger(nil)
				engine.SetLogger(nil)
				bridge.SetLogger(nil)
			}
			rack := engine.NewRack(a.backendConfig())
			defer rack.Close(context.Background())

			if interactive {
				p := tea.NewProgram(newPlayModel(a, rack), tea.WithAltScreen())
				_, err := p.Run()
				return err
			}
			return a.playHeadless(cmd, rack, duration)
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "interactive backend selector")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 2*time.Second, "how long to play without -i")
	cmd.Flags().StringVar(&playbackPath, "playback", "", "WAV file looped under the tone (default audio.playback)")
	return cmd
}

func (a *app) newAudioLoop(rack *engine.Rack) *audioLoop {
	au := a.cfg.Audio
	return newAudioLoop(rack, au.Channels, au.BlockSize, au.SampleRate, au.ToneGain, au.PlaybackGain, a.clip)
}

// prepare loads every backend into rack, through the benchmark when it is
// enabled, and returns the report (if any) and the per-backend failures.
func (a *app) prepare(ctx context.Context, rack *engine.Rack) (*bench.Report, map[backend.Kind]error, error) {
	images, err := a.images()
	if err != nil {
		return nil, nil, err
	}
	export, err := a.cfg.Export()
	if err != nil {
		return nil, nil, err
	}

	if !a.cfg.Bench.Enabled {
		return nil, rack.Prepare(ctx, images, export), nil
	}

	sc, err := a.cfg.Scenario()
	if err != nil {
		return nil, nil, err
	}
	if sc.Export.Name != export.Name {
		// only the export the bridge plays can be kept loaded
		sc = scenarioFor(export)
	}
	h := bench.New(rack, bench.Config{
		Scenario:   sc,
		Iterations: a.cfg.Bench.Iterations,
		Keep:       backend.Order[:],
		Logger:     a.log,
	})
	rep, err := h.Run(ctx, images)
	if err != nil {
		return nil, nil, err
	}
	failed := make(map[backend.Kind]error)
	for _, r := range rep.Failed() {
		failed[r.Backend] = r.Err
	}
	return rep, failed, nil
}

func scenarioFor(export backend.Export) bench.Scenario {
	for _, sc := range bench.Scenarios {
		if sc.Export.Name == export.Name {
			return sc
		}
	}
	return bench.Scenario{Name: export.Name, Export: export, Args: bench.SampleScenario.Args}
}

func (a *app) playHeadless(cmd *cobra.Command, rack *engine.Rack, d time.Duration) error {
	_, failed, err := a.prepare(cmd.Context(), rack)
	if err != nil {
		return err
	}
	for k, err := range failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s unavailable: %v\n", k, err)
	}
	kind, err := a.cfg.ActiveKind()
	if err != nil {
		return err
	}
	if err := rack.SetActive(kind); err != nil {
		return err
	}

	loop := a.newAudioLoop(rack)
	loop.start()
	select {
	case <-time.After(d):
	case <-cmd.Context().Done():
	}
	loop.close()
	loop.src.ReportTraps()

	st := loop.src.Stats().Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "played %s for %s: calls %d, traps %d, setup errors %d, bypassed %d, peak %.4f\n",
		kind, d, st.Calls, st.Traps, st.SetupErrors, st.Bypassed, st.Peak)
	return nil
}

type playKeys struct {
	AOT        key.Binding
	Transpiled key.Binding
	Interp     key.Binding
	Bypass     key.Binding
	Quit       key.Binding
}

func (k playKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.AOT, k.Transpiled, k.Interp, k.Bypass, k.Quit}
}

func (k playKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultKeys = playKeys{
	AOT:        key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "aot")),
	Transpiled: key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "transpiled")),
	Interp:     key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "interp")),
	Bypass:     key.NewBinding(key.WithKeys("0", "b"), key.WithHelp("0/b", "bypass")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type playModel struct {
	app     *app
	rack    *engine.Rack
	loop    *audioLoop
	report  *bench.Report
	failed  map[backend.Kind]error
	err     error
	keys    playKeys
	help    help.Model
	spin    spinner.Model
	stats   bridge.Snapshot
	level   float32
	started time.Time
}

type preparedMsg struct {
	err    error
	report *bench.Report
	failed map[backend.Kind]error
}

type tickMsg time.Time

func newPlayModel(a *app, rack *engine.Rack) *playModel {
	return &playModel{
		app:  a,
		rack: rack,
		keys: defaultKeys,
		help: help.New(),
		spin: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m *playModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.prepare)
}

func (m *playModel) prepare() tea.Msg {
	rep, failed, err := m.app.prepare(context.Background(), m.rack)
	return preparedMsg{err: err, report: rep, failed: failed}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.loop != nil {
				m.loop.close()
				m.loop = nil
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.AOT):
			m.setActive(backend.AOT)
		case key.Matches(msg, m.keys.Transpiled):
			m.setActive(backend.Transpiled)
		case key.Matches(msg, m.keys.Interp):
			m.setActive(backend.Interp)
		case key.Matches(msg, m.keys.Bypass):
			m.setActive(backend.Bypass)
		}

	case preparedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.report = msg.report
		m.failed = msg.failed
		if k, err := m.app.cfg.ActiveKind(); err == nil {
			m.setActive(k)
		}
		// the benchmark is done with the rack before the callback starts
		m.loop = m.app.newAudioLoop(m.rack)
		m.loop.start()
		m.started = time.Now()
		return m, tick()

	case tickMsg:
		if m.loop == nil {
			return m, nil
		}
		m.stats = m.loop.src.Stats().Snapshot()
		m.level = m.loop.Level()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *playModel) setActive(k backend.Kind) {
	if err := m.rack.SetActive(k); err != nil {
		m.err = err
	}
}

func (m *playModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.loop == nil {
		return m.spin.View() + " Loading backends and running the benchmark..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("wasm-audio"))
	b.WriteString(fmt.Sprintf(" %d Hz, %d frames, %d ch\n\n",
		m.app.cfg.Audio.SampleRate, m.app.cfg.Audio.BlockSize, m.app.cfg.Audio.Channels))

	active := m.rack.Active()
	for i, k := range append([]backend.Kind{backend.Bypass}, backend.Order[:]...) {
		line := fmt.Sprintf("%d %-11s", i, k)
		switch {
		case k == backend.Bypass:
			line += dimStyle.Render("silence")
		case m.failed[k] != nil:
			line += errorStyle.Render("unavailable: " + m.failed[k].Error())
		case m.rack.Handle(k).Loaded():
			line += loadedStyle.Render("loaded")
			if m.report != nil {
				if r, ok := m.report.Result(k); ok && !r.Failed {
					line += dimStyle.Render(fmt.Sprintf("  load %s  per call %s", r.Load, r.PerCall))
				}
			}
		default:
			line += dimStyle.Render("not loaded")
		}
		if k == active {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(meterStyle.Render(meter(m.level, 40)))
	b.WriteString(fmt.Sprintf(" %.3f\n", m.level))
	b.WriteString(fmt.Sprintf("calls %d  traps %d  bypassed %d  peak %.3f  %s\n",
		m.stats.Calls, m.stats.Traps, m.stats.Bypassed, m.stats.Peak,
		time.Since(m.started).Truncate(time.Second)))
	if active.Valid() {
		if tr, ok := m.loop.src.FirstTrap(active); ok {
			b.WriteString(errorStyle.Render(fmt.Sprintf("first trap at call %d: %v", tr.Call, tr.Err)))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func meter(v float32, width int) string {
	n := int(v * float32(width))
	n = min(max(n, 0), width)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}
