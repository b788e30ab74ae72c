// Package ui is the terminal chat shell: a sidebar with the threads and the
// recent queries, the active thread and a composer.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/aira/pkg/conversation"
	"github.com/go-go-golems/aira/pkg/identity"
	"github.com/go-go-golems/aira/pkg/session"
)

const (
	AppTitle         = "AIRA"
	NewChatLabel     = "+ Novo Chat"
	ThreadsTitle     = "Conversas"
	RecentTitle      = "Chats Recentes"
	NoRecentQueries  = "Nenhuma conversa ainda"
	UntitledThread   = "Nova conversa"
	PendingLabel     = "Aguardando resposta..."
	InputPlaceholder = "Digite sua mensagem..."

	sidebarWidth    = 30
	minSidebarWidth = 60
)

type sendDoneMsg struct {
	result *session.SendResult
	err    error
}

type Model struct {
	ctx     context.Context
	session *session.Session

	keyMap   KeyMap
	style    *Style
	textArea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	renderer *messageRenderer

	user        *identity.User
	snapshot    conversation.Snapshot
	recent      []string
	showSidebar bool
	pending     bool
	status      string
	statusErr   bool

	width  int
	height int
}

type Option func(*Model)

func WithKeyMap(k KeyMap) Option {
	return func(m *Model) {
		m.keyMap = k
	}
}

func WithStyle(s *Style) Option {
	return func(m *Model) {
		m.style = s
	}
}

// WithMarkdown toggles glamour rendering of AI answers.
func WithMarkdown(enabled bool) Option {
	return func(m *Model) {
		m.renderer.markdown = enabled
	}
}

func WithSidebar(show bool) Option {
	return func(m *Model) {
		m.showSidebar = show
	}
}

func NewModel(ctx context.Context, s *session.Session, options ...Option) Model {
	ret := Model{
		ctx:         ctx,
		session:     s,
		keyMap:      DefaultKeyMap,
		style:       DefaultStyles(),
		help:        help.New(),
		renderer:    &messageRenderer{markdown: true},
		showSidebar: true,
		width:       80,
		height:      24,
	}
	for _, option := range options {
		option(&ret)
	}
	ret.renderer.style = ret.style

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = InputPlaceholder
	ret.textArea.ShowLineNumbers = false
	ret.textArea.SetHeight(3)
	ret.textArea.Focus()

	ret.spinner = spinner.New(spinner.WithSpinner(spinner.Dot))
	ret.viewport = viewport.New(0, 0)

	ret.user = s.CurrentUser(ctx)
	ret.layout()

	return ret
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			_ = m.session.CancelActive()
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.layout()

		case key.Matches(msg, m.keyMap.Cancel):
			if m.pending {
				if err := m.session.CancelActive(); err != nil {
					log.Debug().Err(err).Msg("nothing to cancel")
				}
			}

		case key.Matches(msg, m.keyMap.NewChat):
			m.session.NewThread()
			m.setStatus("")
			m.refresh()

		case key.Matches(msg, m.keyMap.PrevThread):
			m.selectRelative(-1)

		case key.Matches(msg, m.keyMap.NextThread):
			m.selectRelative(1)

		case key.Matches(msg, m.keyMap.ToggleSidebar):
			m.showSidebar = !m.showSidebar
			m.layout()

		case key.Matches(msg, m.keyMap.ScrollUp):
			m.viewport.ViewUp()

		case key.Matches(msg, m.keyMap.ScrollDown):
			m.viewport.ViewDown()

		case key.Matches(msg, m.keyMap.Submit):
			if m.pending {
				m.setStatus("Aguarde a resposta anterior.")
				return m, nil
			}
			return m.submit()

		default:
			if !m.pending {
				m.textArea, cmd = m.textArea.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case EventMsg:
		m.refresh()

	case sendDoneMsg:
		m.pending = false
		cmds = append(cmds, m.textArea.Focus())
		if msg.err != nil {
			// the error text is already part of the thread
			log.Debug().Err(msg.err).Msg("send failed")
		}
		m.refresh()

	case spinner.TickMsg:
		if m.pending {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	default:
		m.textArea, cmd = m.textArea.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) selectRelative(delta int) {
	if err := m.session.SelectRelative(delta); err != nil {
		m.setError(err)
		return
	}
	m.refresh()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.textArea.Value()
	if line := strings.TrimSpace(text); strings.HasPrefix(line, "/") {
		m.textArea.Reset()
		return m.runCommand(line)
	}

	m.session.SetInput(text)
	h, err := m.session.StartSend(m.ctx)
	return m.started(h, err)
}

func (m Model) started(h *session.SendHandle, err error) (tea.Model, tea.Cmd) {
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSendInProgress):
			m.setStatus("Aguarde a resposta anterior.")
		case errors.Is(err, session.ErrSkipped):
		default:
			m.setError(err)
		}
		return m, nil
	}

	m.textArea.Reset()
	m.textArea.Blur()
	m.pending = true
	m.setStatus("")
	m.refresh()

	return m, tea.Batch(waitFor(h), m.spinner.Tick)
}

func waitFor(h *session.SendHandle) tea.Cmd {
	return func() tea.Msg {
		res, err := h.Wait()
		return sendDoneMsg{result: res, err: err}
	}
}

func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/new", "/novo":
		m.session.NewThread()
		m.setStatus("")
		m.refresh()

	case "/attach", "/anexar":
		if rest == "" {
			m.setStatus("Uso: /attach CAMINHO")
			return m, nil
		}
		a, err := session.NewAttachment(rest)
		if err != nil {
			m.setError(err)
			return m, nil
		}
		m.session.SelectAttachment(a)
		m.setStatus("Anexo selecionado: " + a.Name)

	case "/detach":
		m.session.SelectAttachment(nil)
		m.setStatus("Anexo removido.")

	case "/alertas", "/alerts":
		days := session.DefaultAlertDays
		if rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil || n < 1 {
				m.setStatus(fmt.Sprintf("Número de dias inválido: %s", rest))
				return m, nil
			}
			days = n
		}
		h, err := m.session.StartAlerts(m.ctx, days)
		return m.started(h, err)

	case "/logout", "/sair":
		m.session.SignOut(m.ctx)
		m.user = m.session.CurrentUser(m.ctx)
		m.setStatus("Sessão encerrada.")
		m.refresh()

	case "/quit":
		_ = m.session.CancelActive()
		return m, tea.Quit

	default:
		m.setStatus(fmt.Sprintf("Comando desconhecido: %s", name))
	}
	return m, nil
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
}

// refresh re-reads the session and re-renders the active thread.
func (m *Model) refresh() {
	prev := m.snapshot
	m.snapshot = m.session.Snapshot()
	m.recent = m.session.RecentQueries()

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderer.renderThread(m.snapshot.Active(), m.user))
	if atBottom || prev.Version != m.snapshot.Version || prev.ActiveID != m.snapshot.ActiveID {
		m.viewport.GotoBottom()
	}
}

func (m *Model) sidebarWidth() int {
	if !m.showSidebar || m.width < minSidebarWidth {
		return 0
	}
	return sidebarWidth
}

func (m *Model) layout() {
	mainWidth := m.width - m.sidebarWidth()
	frame, _ := m.style.Input.GetFrameSize()
	m.textArea.SetWidth(mainWidth - frame)
	m.help.Width = mainWidth

	_, inputFrame := m.style.Input.GetFrameSize()
	used := 1 + 1 + m.textArea.Height() + inputFrame + lipgloss.Height(m.help.View(m.keyMap))
	height := m.height - used
	if height < 1 {
		height = 1
	}
	m.viewport.Width = mainWidth
	m.viewport.Height = height

	m.renderer.setWidth(mainWidth - 2)
	if m.session != nil {
		m.refresh()
	}
}

func (m Model) View() string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		m.style.Header.Render(AppTitle),
		m.style.HeaderUser.Render(identity.Initial(m.user)+" "+identity.DisplayName(m.user)),
	)

	input := m.style.Input
	if m.pending {
		input = m.style.InputLocked
	}
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.statusView(),
		input.Render(m.textArea.View()),
		m.help.View(m.keyMap),
	)

	body := main
	if w := m.sidebarWidth(); w > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(w), main)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func (m Model) statusView() string {
	var parts []string
	if m.pending {
		parts = append(parts, m.spinner.View()+" "+PendingLabel)
	}
	if a := m.session.Draft().Attachment; a != nil {
		parts = append(parts, m.style.Attachment.Render("📎 "+a.Name))
	}
	if m.status != "" {
		if m.statusErr {
			parts = append(parts, m.style.Error.Render(m.status))
		} else {
			parts = append(parts, m.style.Status.Render(m.status))
		}
	}
	return strings.Join(parts, "  ")
}

func (m Model) sidebarView(width int) string {
	inner := width - 3
	line := func(s string) string {
		return truncate.StringWithTail(s, uint(inner), "…")
	}

	var sb strings.Builder
	sb.WriteString(m.style.ActiveItem.Render(NewChatLabel))
	sb.WriteString("\n")

	sb.WriteString(m.style.SidebarTitle.Render(ThreadsTitle))
	sb.WriteString("\n")
	for i := range m.snapshot.Threads {
		th := &m.snapshot.Threads[i]
		title := th.Title()
		if title == "" {
			title = UntitledThread
		}
		if th.ID == m.snapshot.ActiveID {
			sb.WriteString(m.style.ActiveItem.Render(line("› " + title)))
		} else {
			sb.WriteString(m.style.SidebarItem.Render(line("  " + title)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(m.style.SidebarTitle.Render(RecentTitle))
	sb.WriteString("\n")
	if len(m.recent) == 0 {
		sb.WriteString(m.style.Muted.Render(NoRecentQueries))
	}
	for i, q := range m.recent {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.style.SidebarItem.Render(line(strings.Join(strings.Fields(q), " "))))
	}

	return m.style.Sidebar.Width(width - 1).Height(m.height - 1).Render(sb.String())
}
