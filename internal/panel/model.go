package panel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dooshek/gamecoach/internal/clipboard"
	"github.com/dooshek/gamecoach/internal/types"
)

const actionTimeout = 10 * time.Second

// Controller is what the panel can ask the host to do
type Controller interface {
	StartAnalysis(ctx context.Context) error
	StopAnalysis(ctx context.Context) error
	ShowOverlay(ctx context.Context) error
	HideOverlay(ctx context.Context) error
	SetSettings(ctx context.Context, patch types.SettingsPatch) error
}

type stateMsg types.GlobalState

type resultMsg struct {
	action string
	err    error
}

type disconnectedMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	onStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	adviceBox  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

// Model is the primary surface: a live view of the host state with
// controls for analysis and the overlay
type Model struct {
	ctrl   Controller
	copy   func(string) error
	state  types.GlobalState
	help   help.Model
	status string
	err    error
	width  int
	gone   bool
}

func New(ctrl Controller, initial types.GlobalState) Model {
	return Model{ctrl: ctrl, copy: clipboard.Copy, state: initial, help: help.New(), width: 80}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		gs := types.GlobalState(msg)
		if gs.Version >= m.state.Version {
			m.state = gs
		}
		return m, nil

	case resultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.action
		} else {
			m.status = ""
		}
		return m, nil

	case disconnectedMsg:
		m.gone = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Start):
			return m, m.do("analysis started", m.ctrl.StartAnalysis)
		case key.Matches(msg, keys.Stop):
			return m, m.do("analysis stopped", m.ctrl.StopAnalysis)
		case key.Matches(msg, keys.Show):
			return m, m.do("overlay shown", m.ctrl.ShowOverlay)
		case key.Matches(msg, keys.Hide):
			return m, m.do("overlay hidden", m.ctrl.HideOverlay)
		case key.Matches(msg, keys.Copy):
			a := m.state.LastAnalysis
			if a == nil || a.Provider == types.ProviderNameError {
				return m, nil
			}
			text := a.Advice
			return m, m.do("advice copied", func(context.Context) error {
				return m.copy(text)
			})
		case key.Matches(msg, keys.ToggleOverlay):
			next := !m.state.Settings.OverlayEnabled
			return m, m.do(fmt.Sprintf("auto-show %s", onOff(next)), func(ctx context.Context) error {
				return m.ctrl.SetSettings(ctx, types.SettingsPatch{"overlayEnabled": next})
			})
		}
	}
	return m, nil
}

func (m Model) do(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return resultMsg{action: action, err: fn(ctx)}
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func flag(v bool) string {
	if v {
		return onStyle.Render("yes")
	}
	return offStyle.Render("no")
}

func (m Model) View() string {
	if m.gone {
		return "Host disconnected.\n"
	}

	st := m.state
	var b strings.Builder
	b.WriteString(titleStyle.Render("Game Coach"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	game := st.Settings.Game.Name
	if game == "" {
		game = "game"
	}
	row(game+" running", flag(st.GameState.Detected))
	row("Capturing", flag(st.GameState.Capturing))
	source := st.GameState.CurrentSourceID
	if source == "" {
		source = st.Settings.CaptureSourceID
	}
	if source == "" {
		source = offStyle.Render("none selected")
	}
	row("Source", source)
	row("Analyzing", flag(st.IsAnalyzing))
	row("Overlay visible", flag(st.IsOverlayVisible))
	row("Overlay auto-show", flag(st.Settings.OverlayEnabled))
	row("Provider", fmt.Sprintf("%s (%s)", st.Settings.Provider.Name, modelName(st.Settings.Provider)))

	b.WriteString("\n")
	if a := st.LastAnalysis; a != nil {
		text := a.Advice
		if a.Provider != types.ProviderNameError {
			text += offStyle.Render(fmt.Sprintf("\n%s · %.0f%% · %s", a.Provider, a.Confidence*100, a.Timestamp.Format("15:04:05")))
		} else {
			text = errStyle.Render(text)
		}
		b.WriteString(adviceBox.Width(max(m.width-4, 20)).Render(text))
	} else {
		b.WriteString(offStyle.Render("No advice yet."))
	}
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(onStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(keys))
	b.WriteString("\n")
	return b.String()
}

func modelName(p types.ProviderSettings) string {
	if p.Model != "" {
		return p.Model
	}
	return types.DefaultModel(p.Name)
}
