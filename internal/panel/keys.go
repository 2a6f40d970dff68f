package panel

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start         key.Binding
	Stop          key.Binding
	Show          key.Binding
	Hide          key.Binding
	ToggleOverlay key.Binding
	Copy          key.Binding
	Quit          key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Show, k.Hide, k.ToggleOverlay, k.Copy, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Stop},
		{k.Show, k.Hide, k.ToggleOverlay},
		{k.Copy, k.Quit},
	}
}

var keys = keyMap{
	Start: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "start analysis"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop analysis"),
	),
	Show: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "show overlay"),
	),
	Hide: key.NewBinding(
		key.WithKeys("h"),
		key.WithHelp("h", "hide overlay"),
	),
	ToggleOverlay: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "auto-show on/off"),
	),
	Copy: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "copy advice"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
