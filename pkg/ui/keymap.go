package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Submit        key.Binding
	NewChat       key.Binding
	PrevThread    key.Binding
	NextThread    key.Binding
	ToggleSidebar key.Binding
	ScrollUp      key.Binding
	ScrollDown    key.Binding
	Cancel        key.Binding
	Help          key.Binding
	Quit          key.Binding
}

var DefaultKeyMap = KeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "enviar"),
	),
	NewChat: key.NewBinding(
		key.WithKeys("ctrl+n"),
		key.WithHelp("ctrl+n", "novo chat"),
	),
	PrevThread: key.NewBinding(
		key.WithKeys("ctrl+up", "alt+k"),
		key.WithHelp("ctrl+↑", "chat anterior"),
	),
	NextThread: key.NewBinding(
		key.WithKeys("ctrl+down", "alt+j"),
		key.WithHelp("ctrl+↓", "próximo chat"),
	),
	ToggleSidebar: key.NewBinding(
		key.WithKeys("ctrl+b"),
		key.WithHelp("ctrl+b", "barra lateral"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "rolar"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdown", "rolar"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancelar envio"),
	),
	Help: key.NewBinding(
		key.WithKeys("f1"),
		key.WithHelp("f1", "ajuda"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "sair"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.NewChat, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Cancel, k.NewChat},
		{k.PrevThread, k.NextThread, k.ToggleSidebar},
		{k.ScrollUp, k.ScrollDown, k.Help, k.Quit},
	}
}
