package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the dashboard.
type KeyMap struct {
	Page      key.Binding
	Country   key.Binding
	Device    key.Binding
	Clear     key.Binding
	Refresh   key.Binding
	Reconnect key.Binding
	Quit      key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Page: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "page filter"),
		),
		Country: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "country filter"),
		),
		Device: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "device filter"),
		),
		Clear: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "clear filters"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh stats"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "reconnect"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// helpLine renders the footer from the bindings' help text.
func (k KeyMap) helpLine() string {
	line := " "
	for _, b := range []key.Binding{k.Page, k.Country, k.Device, k.Clear, k.Refresh, k.Reconnect, k.Quit} {
		h := b.Help()
		line += " " + h.Key + ":" + h.Desc
	}
	return line
}
