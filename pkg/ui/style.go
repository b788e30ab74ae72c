package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	Header       lipgloss.Style
	HeaderUser   lipgloss.Style
	Sidebar      lipgloss.Style
	SidebarTitle lipgloss.Style
	SidebarItem  lipgloss.Style
	ActiveItem   lipgloss.Style
	Muted        lipgloss.Style

	UserMessage lipgloss.Style
	AIMessage   lipgloss.Style
	Badge       lipgloss.Style
	AIBadge     lipgloss.Style
	Time        lipgloss.Style

	Welcome     lipgloss.Style
	Status      lipgloss.Style
	Error       lipgloss.Style
	Attachment  lipgloss.Style
	Input       lipgloss.Style
	InputLocked lipgloss.Style
}

type Colors struct {
	Accent  string
	Border  string
	Muted   string
	Error   string
	UserBox string
}

func DefaultStyles() *Style {
	light := Colors{
		Accent:  "#1D4ED8",
		Border:  "#CCCCCC",
		Muted:   "#888888",
		Error:   "#B91C1C",
		UserBox: "#DBEAFE",
	}
	dark := Colors{
		Accent:  "#60A5FA",
		Border:  "#444444",
		Muted:   "#777777",
		Error:   "#F87171",
		UserBox: "#1E3A8A",
	}
	c := func(f func(Colors) string) lipgloss.AdaptiveColor {
		return lipgloss.AdaptiveColor{Light: f(light), Dark: f(dark)}
	}
	accent := c(func(c Colors) string { return c.Accent })
	border := c(func(c Colors) string { return c.Border })
	muted := c(func(c Colors) string { return c.Muted })

	return &Style{
		Header: lipgloss.NewStyle().Bold(true).Foreground(accent).
			Padding(0, 1),
		HeaderUser: lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		Sidebar: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(border).
			Padding(0, 1),
		SidebarTitle: lipgloss.NewStyle().Bold(true).MarginTop(1),
		SidebarItem:  lipgloss.NewStyle(),
		ActiveItem:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		Muted:        lipgloss.NewStyle().Foreground(muted).Italic(true),

		UserMessage: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c(func(c Colors) string { return c.UserBox })).
			Padding(0, 1),
		AIMessage: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(border).
			Padding(0, 1),
		Badge:   lipgloss.NewStyle().Bold(true).Padding(0, 1).Reverse(true),
		AIBadge: lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(accent).Reverse(true),
		Time:    lipgloss.NewStyle().Foreground(muted),

		Welcome:     lipgloss.NewStyle().Bold(true).Foreground(accent),
		Status:      lipgloss.NewStyle().Foreground(muted),
		Error:       lipgloss.NewStyle().Foreground(c(func(c Colors) string { return c.Error })),
		Attachment:  lipgloss.NewStyle().Foreground(accent),
		Input:       lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(border),
		InputLocked: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(muted).Faint(true),
	}
}
