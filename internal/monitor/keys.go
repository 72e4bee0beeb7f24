package monitor

import "github.com/charmbracelet/bubbles/key"

// keyMap defines key bindings for the monitor screen
type keyMap struct {
	Ping   key.Binding
	Params key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Ping, k.Params, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Ping, k.Params},
		{k.Help, k.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Ping: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "ping now"),
		),
		Params: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resolve params"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
