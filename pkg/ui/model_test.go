package ui

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/aira/pkg/conversation"
	"github.com/go-go-golems/aira/pkg/gateway"
	"github.com/go-go-golems/aira/pkg/identity"
	"github.com/go-go-golems/aira/pkg/session"
)

type fakeBackend struct {
	ask    func(ctx context.Context, question string) (string, error)
	alerts func(ctx context.Context, days int) (*gateway.AlertAnalysis, error)
}

func (f fakeBackend) Ask(ctx context.Context, question string) (string, error) {
	return f.ask(ctx, question)
}

func (f fakeBackend) AnalyzeAlerts(ctx context.Context, days int) (*gateway.AlertAnalysis, error) {
	return f.alerts(ctx, days)
}

func answering(answer string) fakeBackend {
	return fakeBackend{
		ask: func(ctx context.Context, question string) (string, error) {
			return answer, nil
		},
		alerts: func(ctx context.Context, days int) (*gateway.AlertAnalysis, error) {
			return &gateway.AlertAnalysis{Days: days, Analysis: "Sem alertas."}, nil
		},
	}
}

func newTestModel(t *testing.T, gw gateway.Gateway) Model {
	t.Helper()
	s, err := session.New(gw, identity.NewStatic(identity.User{DisplayName: "Maria"}))
	require.NoError(t, err)
	return NewModel(context.Background(), s, WithMarkdown(false))
}

// runCmd executes cmd once, flattening batches. Follow-up commands are
// not executed.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var ret []tea.Msg
		for _, c := range batch {
			ret = append(ret, runCmd(c)...)
		}
		return ret
	}
	return []tea.Msg{msg}
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func submit(m Model, text string) (Model, tea.Cmd) {
	m.textArea.SetValue(text)
	return update(m, tea.KeyMsg{Type: tea.KeyEnter})
}

func settle(m Model, cmd tea.Cmd) Model {
	for _, msg := range runCmd(cmd) {
		m, _ = update(m, msg)
	}
	return m
}

func TestInitialView(t *testing.T) {
	m := newTestModel(t, answering("ok"))

	v := m.View()
	require.Contains(t, v, AppTitle)
	require.Contains(t, v, "Maria")
	require.Contains(t, v, WelcomeTitle)
	require.Contains(t, v, WelcomeSubtitle)
	require.Contains(t, v, NewChatLabel)
	require.Contains(t, v, RecentTitle)
	require.Contains(t, v, NoRecentQueries)
	require.Equal(t, "Digite sua mensagem...", m.textArea.Placeholder)
}

func TestSubmitAppendsQuestionAndAnswer(t *testing.T) {
	m := newTestModel(t, answering("Nível normal."))

	m, cmd := submit(m, "Qual o nível do rio?")
	require.NotNil(t, cmd)
	require.True(t, m.pending)
	require.Empty(t, m.textArea.Value())
	require.Contains(t, m.View(), PendingLabel)

	m = settle(m, cmd)
	require.False(t, m.pending)

	th := m.snapshot.Active()
	require.Len(t, th.Messages, 2)
	require.Equal(t, conversation.SenderUser, th.Messages[0].Sender)
	require.Equal(t, "Nível normal.", th.Messages[1].Text)

	v := m.View()
	require.Contains(t, v, "Qual o nível do rio?")
	require.Contains(t, v, "Nível normal.")
	require.NotContains(t, v, NoRecentQueries)
	require.Equal(t, []string{"Qual o nível do rio?"}, m.recent)
}

func TestSubmitFailureShowsErrorText(t *testing.T) {
	m := newTestModel(t, fakeBackend{ask: func(ctx context.Context, question string) (string, error) {
		return "", errors.New("connection refused")
	}})

	m, cmd := submit(m, "Oi")
	m = settle(m, cmd)

	th := m.snapshot.Active()
	require.Len(t, th.Messages, 2)
	require.Equal(t, session.DefaultErrorText, th.Messages[1].Text)
	require.Contains(t, m.View(), session.DefaultErrorText)
}

func TestSubmitEmptyIsIgnored(t *testing.T) {
	m := newTestModel(t, answering("ok"))

	m, cmd := submit(m, "   ")
	require.Nil(t, cmd)
	require.False(t, m.pending)
	require.Empty(t, m.snapshot.Threads)
}

func TestSubmitWhilePendingKeepsInput(t *testing.T) {
	release := make(chan struct{})
	m := newTestModel(t, fakeBackend{ask: func(ctx context.Context, question string) (string, error) {
		select {
		case <-release:
			return "resposta", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}})

	m, cmd := submit(m, "primeira")
	require.True(t, m.pending)

	m, cmd2 := submit(m, "segunda")
	require.Nil(t, cmd2)
	require.Equal(t, "segunda", m.textArea.Value())
	require.Equal(t, "Aguarde a resposta anterior.", m.status)

	close(release)
	m = settle(m, cmd)
	require.False(t, m.pending)
	require.Len(t, m.snapshot.Active().Messages, 2)
}

func TestNewChatAndNavigation(t *testing.T) {
	m := newTestModel(t, answering("ok"))

	m, cmd := submit(m, "primeira")
	m = settle(m, cmd)
	first := m.snapshot.ActiveID

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlN})
	require.Len(t, m.snapshot.Threads, 2)
	require.Equal(t, 1, m.snapshot.ActiveIndex)
	require.Contains(t, m.View(), WelcomeTitle)
	require.Contains(t, m.View(), UntitledThread)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlUp})
	require.Equal(t, first, m.snapshot.ActiveID)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}, Alt: true})
	require.Equal(t, 1, m.snapshot.ActiveIndex)

	m, _ = submit(m, "/new")
	require.Len(t, m.snapshot.Threads, 3)
}

func TestToggleSidebar(t *testing.T) {
	m := newTestModel(t, answering("ok"))
	require.Contains(t, m.View(), RecentTitle)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlB})
	require.NotContains(t, m.View(), RecentTitle)
	require.Equal(t, 80, m.viewport.Width)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlB})
	require.Contains(t, m.View(), RecentTitle)
	require.Equal(t, 80-sidebarWidth, m.viewport.Width)
}

func TestWindowSize(t *testing.T) {
	m := newTestModel(t, answering("ok"))
	m, _ = update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	require.Equal(t, 120-sidebarWidth, m.viewport.Width)

	m, _ = update(m, tea.WindowSizeMsg{Width: 50, Height: 20})
	require.Equal(t, 50, m.viewport.Width)
	require.NotContains(t, m.View(), RecentTitle)
}

func TestAttachCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relatorio.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

	m := newTestModel(t, answering("ok"))

	m, _ = submit(m, "/attach "+path)
	a := m.session.Draft().Attachment
	require.NotNil(t, a)
	require.Equal(t, "relatorio.pdf", a.Name)
	require.Contains(t, m.View(), "relatorio.pdf")

	m, _ = submit(m, "/detach")
	require.Nil(t, m.session.Draft().Attachment)

	m, _ = submit(m, "/attach")
	require.Equal(t, "Uso: /attach CAMINHO", m.status)

	m, _ = submit(m, "/attach "+filepath.Join(t.TempDir(), "missing.pdf"))
	require.True(t, m.statusErr)
}

func TestAttachmentOnlySendAppendsErrorText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foto.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))

	called := false
	m := newTestModel(t, fakeBackend{ask: func(ctx context.Context, question string) (string, error) {
		called = true
		return "ok", nil
	}})
	m, _ = submit(m, "/attach "+path)

	m, cmd := submit(m, "")
	require.NotNil(t, cmd)
	m = settle(m, cmd)

	require.False(t, called)
	th := m.snapshot.Active()
	require.Len(t, th.Messages, 1)
	require.Equal(t, session.DefaultErrorText, th.Messages[0].Text)
	require.Nil(t, m.session.Draft().Attachment)
}

func TestAlertsCommand(t *testing.T) {
	var asked int
	backend := answering("ok")
	backend.alerts = func(ctx context.Context, days int) (*gateway.AlertAnalysis, error) {
		asked = days
		return &gateway.AlertAnalysis{Days: days, Analysis: "Dois alertas."}, nil
	}
	m := newTestModel(t, backend)

	m, cmd := submit(m, "/alertas 3")
	require.True(t, m.pending)
	m = settle(m, cmd)

	require.Equal(t, 3, asked)
	th := m.snapshot.Active()
	require.Len(t, th.Messages, 2)
	require.Equal(t, "Análise de alertas dos últimos 3 dias", th.Messages[0].Text)
	require.Equal(t, "Dois alertas.", th.Messages[1].Text)

	m, cmd = submit(m, "/alertas")
	m = settle(m, cmd)
	require.Equal(t, session.DefaultAlertDays, asked)

	m, cmd = submit(m, "/alertas zero")
	require.Nil(t, cmd)
	require.Equal(t, "Número de dias inválido: zero", m.status)
}

func TestLogoutAndUnknownCommand(t *testing.T) {
	m := newTestModel(t, answering("ok"))
	require.Contains(t, m.View(), "M Maria")

	m, _ = submit(m, "/logout")
	require.Nil(t, m.user)
	require.Contains(t, m.View(), identity.AnonymousName)

	m, _ = submit(m, "/foo bar")
	require.Equal(t, "Comando desconhecido: /foo", m.status)
}

func TestQuit(t *testing.T) {
	m := newTestModel(t, answering("ok"))

	_, cmd := update(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.Equal(t, tea.Quit(), cmd())

	_, cmd = submit(m, "/quit")
	require.NotNil(t, cmd)
	require.Equal(t, tea.Quit(), cmd())
}

func TestEventMsgRefreshes(t *testing.T) {
	m := newTestModel(t, answering("ok"))

	_, err := m.session.Store().AppendToActive(conversation.SenderUser, "de fora")
	require.NoError(t, err)
	require.Empty(t, m.snapshot.Threads)

	m, _ = update(m, EventMsg{})
	require.Len(t, m.snapshot.Threads, 1)
	require.Contains(t, m.View(), "de fora")
}
