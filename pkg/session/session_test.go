package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/aira/pkg/conversation"
	"github.com/go-go-golems/aira/pkg/events"
	"github.com/go-go-golems/aira/pkg/gateway"
	"github.com/go-go-golems/aira/pkg/identity"
)

type fakeGateway struct {
	ask func(ctx context.Context, question string) (string, error)
}

func (g fakeGateway) Ask(ctx context.Context, question string) (string, error) {
	return g.ask(ctx, question)
}

func answering(answer string) fakeGateway {
	return fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		return answer, nil
	}}
}

// blockingGateway answers only when release is closed.
func blockingGateway(started chan<- string, release <-chan struct{}) fakeGateway {
	return fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		if started != nil {
			started <- question
		}
		select {
		case <-release:
			return "answer to " + question, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
}

func newTestSession(t *testing.T, gw gateway.Gateway, options ...Option) *Session {
	t.Helper()
	s, err := New(gw, identity.NewStatic(identity.User{Email: "ana@example.com"}), options...)
	require.NoError(t, err)
	return s
}

func TestNewRequiresGateway(t *testing.T) {
	_, err := New(nil, nil)
	require.ErrorIs(t, err, ErrGatewayNil)
}

func TestSendScenarioSuccess(t *testing.T) {
	var asked string
	s := newTestSession(t, fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		asked = question
		return "12.3m", nil
	}})

	res, err := s.SendText(context.Background(), "Qual o nível do rio?")
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, "Qual o nível do rio?", asked)

	th := s.ActiveThread()
	require.Len(t, th.Messages, 2)
	require.Equal(t, conversation.SenderUser, th.Messages[0].Sender)
	require.Equal(t, "Qual o nível do rio?", th.Messages[0].Text)
	require.Equal(t, 1, th.Messages[0].ID)
	require.Equal(t, conversation.SenderAI, th.Messages[1].Sender)
	require.Equal(t, "12.3m", th.Messages[1].Text)
	require.Equal(t, 2, th.Messages[1].ID)

	require.Equal(t, []string{"Qual o nível do rio?"}, s.RecentQueries())
	require.False(t, s.IsPending())
	require.Equal(t, th.ID, res.ThreadID)
	require.Equal(t, "12.3m", res.Reply.Text)
}

func TestSendScenarioFailure(t *testing.T) {
	s := newTestSession(t, fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		return "", &gateway.BackendError{Op: gateway.OpAsk, Err: gateway.ErrTransport}
	}})

	res, err := s.SendText(context.Background(), "oi")
	require.Error(t, err)
	require.ErrorIs(t, err, gateway.ErrTransport)
	require.True(t, res.Failed())

	th := s.ActiveThread()
	require.Len(t, th.Messages, 2)
	require.Equal(t, conversation.SenderAI, th.Messages[1].Sender)
	require.Equal(t, DefaultErrorText, th.Messages[1].Text)
	require.False(t, s.IsPending())
}

func TestSendNormalizesForeignErrors(t *testing.T) {
	s := newTestSession(t, fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		return "", errors.New("plain failure")
	}}, WithErrorText("falhou"))

	res, err := s.SendText(context.Background(), "oi")
	var be *gateway.BackendError
	require.True(t, errors.As(err, &be))
	require.Equal(t, "falhou", res.Reply.Text)
}

func TestSendEmptyDraftLeavesStateUnchanged(t *testing.T) {
	called := false
	s := newTestSession(t, fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		called = true
		return "", nil
	}})

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := s.SendText(context.Background(), input)
		require.ErrorIs(t, err, ErrEmptyDraft)
		require.ErrorIs(t, err, ErrSkipped)
	}

	require.False(t, called)
	require.Equal(t, 0, s.Store().Len())
	require.Equal(t, uint64(0), s.Store().Version())
	require.Empty(t, s.RecentQueries())
	require.False(t, s.IsPending())
}

func TestSecondSendRejectedWhileAwaitingBackend(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	s := newTestSession(t, blockingGateway(started, release))

	s.SetInput("primeira")
	h, err := s.StartSend(context.Background())
	require.NoError(t, err)
	<-started
	require.True(t, s.IsPending())

	s.SetInput("segunda")
	_, err = s.StartSend(context.Background())
	require.ErrorIs(t, err, ErrSendInProgress)
	require.ErrorIs(t, err, ErrSkipped)

	// the rejected draft is kept for later
	require.Equal(t, "segunda", s.Draft().Text)
	require.Len(t, s.ActiveThread().Messages, 1)

	close(release)
	_, err = h.Wait()
	require.NoError(t, err)
	require.False(t, s.IsPending())

	_, err = s.Send(context.Background())
	require.NoError(t, err)

	msgs := s.ActiveThread().Messages
	require.Len(t, msgs, 4)
	require.Equal(t, "primeira", msgs[0].Text)
	require.Equal(t, "answer to primeira", msgs[1].Text)
	require.Equal(t, "segunda", msgs[2].Text)
	require.Equal(t, "answer to segunda", msgs[3].Text)
}

func TestSendAlternatesUserAndAI(t *testing.T) {
	n := 0
	s := newTestSession(t, fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		n++
		if n%3 == 0 {
			return "", errors.New("flaky")
		}
		return "ok " + question, nil
	}})

	for i := 0; i < 9; i++ {
		_, _ = s.SendText(context.Background(), fmt.Sprintf("q%d", i))
	}

	msgs := s.ActiveThread().Messages
	require.Len(t, msgs, 18)
	for i, m := range msgs {
		require.Equal(t, i+1, m.ID)
		if i%2 == 0 {
			require.Equal(t, conversation.SenderUser, m.Sender)
		} else {
			require.Equal(t, conversation.SenderAI, m.Sender)
		}
	}
	// only the opening query is recorded
	require.Equal(t, []string{"q0"}, s.RecentQueries())
}

func TestDraftIsClearedBeforeBackendResolves(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	s := newTestSession(t, blockingGateway(started, release))

	dir := t.TempDir()
	path := filepath.Join(dir, "relatorio.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o600))
	a, err := NewAttachment(path)
	require.NoError(t, err)

	s.SetInput("com anexo")
	s.SelectAttachment(a)
	h, err := s.StartSend(context.Background())
	require.NoError(t, err)

	require.Equal(t, "com anexo", <-started)
	require.Equal(t, Draft{}, s.Draft())

	close(release)
	_, err = h.Wait()
	require.NoError(t, err)
}

func TestAttachmentOnlySendAppendsErrorMessage(t *testing.T) {
	called := false
	s := newTestSession(t, fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		called = true
		return "", nil
	}})

	dir := t.TempDir()
	path := filepath.Join(dir, "foto.png")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o600))
	a, err := NewAttachment(path)
	require.NoError(t, err)
	require.Equal(t, int64(3), a.Size)

	s.SelectAttachment(a)
	res, err := s.Send(context.Background())
	require.ErrorIs(t, err, ErrNoQuestion)
	require.Nil(t, res.User)
	require.False(t, called)

	th := s.ActiveThread()
	require.Len(t, th.Messages, 1)
	require.Equal(t, DefaultErrorText, th.Messages[0].Text)
	require.Empty(t, s.RecentQueries())
	require.Nil(t, s.Draft().Attachment)
}

func TestReplyLandsInThreadCapturedAtSendTime(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	s := newTestSession(t, blockingGateway(started, release))

	s.SetInput("no fio A")
	h, err := s.StartSend(context.Background())
	require.NoError(t, err)
	<-started

	a := h.ThreadID
	b := s.NewThread()
	s.NewThread()
	require.NoError(t, s.SelectThread(b.ID))

	close(release)
	res, err := h.Wait()
	require.NoError(t, err)
	require.Equal(t, a, res.ThreadID)

	snap := s.Snapshot()
	ta, ok := snap.Thread(a)
	require.True(t, ok)
	require.Len(t, ta.Messages, 2)
	require.Equal(t, "answer to no fio A", ta.Messages[1].Text)

	tb, ok := snap.Thread(b.ID)
	require.True(t, ok)
	require.Empty(t, tb.Messages)
	require.Equal(t, b.ID, snap.ActiveID)
}

func TestOpeningQueryRecordedPerThread(t *testing.T) {
	s := newTestSession(t, answering("ok"))

	_, err := s.SendText(context.Background(), "  primeira  ")
	require.NoError(t, err)
	_, err = s.SendText(context.Background(), "segunda")
	require.NoError(t, err)
	s.NewThread()
	_, err = s.SendText(context.Background(), "  primeira  ")
	require.NoError(t, err)

	require.Equal(t, []string{"  primeira  ", "  primeira  "}, s.RecentQueries())
}

func TestRecentQueriesCappedAcrossThreads(t *testing.T) {
	s := newTestSession(t, answering("ok"))
	for i := 1; i <= 12; i++ {
		s.NewThread()
		_, err := s.SendText(context.Background(), fmt.Sprintf("Q%d", i))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"Q12", "Q11", "Q10", "Q9", "Q8", "Q7", "Q6", "Q5", "Q4", "Q3"}, s.RecentQueries())
}

func TestSendTimeoutBecomesFailure(t *testing.T) {
	s := newTestSession(t, blockingGateway(nil, make(chan struct{})), WithTimeout(20*time.Millisecond))

	res, err := s.SendText(context.Background(), "demorada")
	require.Error(t, err)
	require.True(t, gateway.IsTimeout(err))
	require.Equal(t, DefaultErrorText, res.Reply.Text)
	require.False(t, s.IsPending())
}

func TestCancelActiveResolvesAsFailure(t *testing.T) {
	started := make(chan string, 1)
	s := newTestSession(t, blockingGateway(started, make(chan struct{})))

	require.ErrorIs(t, s.CancelActive(), ErrNoActiveSend)

	s.SetInput("cancelar")
	h, err := s.StartSend(context.Background())
	require.NoError(t, err)
	<-started

	require.NoError(t, s.CancelActive())
	res, err := h.Wait()
	require.ErrorIs(t, err, gateway.ErrCanceled)
	require.Equal(t, DefaultErrorText, res.Reply.Text)
	require.False(t, s.IsPending())
}

func TestPanickingGatewayReleasesPending(t *testing.T) {
	s := newTestSession(t, fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		panic("boom")
	}})

	res, err := s.SendText(context.Background(), "oi")
	require.Error(t, err)
	require.True(t, res.Failed())
	require.False(t, s.IsPending())
	require.Len(t, s.ActiveThread().Messages, 2)
}

func TestConcurrentStartSendOnlyOneWins(t *testing.T) {
	release := make(chan struct{})
	s := newTestSession(t, blockingGateway(nil, release))

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetInput(fmt.Sprintf("q%d", i))
			_, err := s.StartSend(context.Background())
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrSkipped)
	}
	require.Equal(t, 1, ok)
	require.Len(t, s.ActiveThread().Messages, 1)
	close(release)
}

func TestSessionPublishesEvents(t *testing.T) {
	var mu sync.Mutex
	var got []events.EventType
	sink := events.SinkFunc(func(e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type())
		return nil
	})
	s := newTestSession(t, answering("12.3m"), WithEventSink(sink))

	_, err := s.SendText(context.Background(), "Qual o nível do rio?")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []events.EventType{
		events.EventTypeThreadCreated,
		events.EventTypeMessageAppended,
		events.EventTypeSendStarted,
		events.EventTypeMessageAppended,
		events.EventTypeSendFinished,
	}, got)
}

func TestGatewaySeesSendMeta(t *testing.T) {
	var sessionID, sendID, threadID string
	s := newTestSession(t, fakeGateway{ask: func(ctx context.Context, question string) (string, error) {
		sessionID = gateway.SessionIDFromContext(ctx)
		sendID = gateway.SendIDFromContext(ctx)
		threadID = gateway.ThreadIDFromContext(ctx)
		return "ok", nil
	}}, WithSessionID("sess-1"))

	res, err := s.SendText(context.Background(), "oi")
	require.NoError(t, err)
	require.Equal(t, "sess-1", sessionID)
	require.Equal(t, res.SendID, sendID)
	require.Equal(t, string(res.ThreadID), threadID)
}

func TestStartAlerts(t *testing.T) {
	echo := &gateway.Echo{Prefix: "eco: "}
	s := newTestSession(t, echo)

	h, err := s.StartAlerts(context.Background(), 3)
	require.NoError(t, err)
	res, err := h.Wait()
	require.NoError(t, err)
	require.Contains(t, res.Reply.Text, "3 dias")

	msgs := s.ActiveThread().Messages
	require.Len(t, msgs, 2)
	require.Equal(t, conversation.SenderUser, msgs[0].Sender)
	require.Empty(t, s.RecentQueries())
}

func TestQuestionAfterAlertsOpensRecentQueries(t *testing.T) {
	s := newTestSession(t, &gateway.Echo{Prefix: "eco: "})

	h, err := s.StartAlerts(context.Background(), 7)
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)
	require.Empty(t, s.RecentQueries())

	_, err = s.SendText(context.Background(), "Qual o nível do rio?")
	require.NoError(t, err)
	_, err = s.SendText(context.Background(), "E amanhã?")
	require.NoError(t, err)

	require.Len(t, s.ActiveThread().Messages, 6)
	require.Equal(t, []string{"Qual o nível do rio?"}, s.RecentQueries())
}

func TestStartAlertsRejectsInvalidDays(t *testing.T) {
	s := newTestSession(t, &gateway.Echo{})

	for _, days := range []int{0, -3} {
		_, err := s.StartAlerts(context.Background(), days)
		var be *gateway.BackendError
		require.True(t, errors.As(err, &be))
		require.Equal(t, gateway.OpAlerts, be.Op)
		require.ErrorIs(t, err, gateway.ErrInvalidDays)
	}
	require.Equal(t, 0, s.Store().Len())
	require.False(t, s.IsPending())
}

func TestStartAlertsUnsupported(t *testing.T) {
	s := newTestSession(t, answering("ok"))
	_, err := s.StartAlerts(context.Background(), 7)
	require.ErrorIs(t, err, ErrAlertsUnsupported)
}

func TestCurrentUserAndSignOut(t *testing.T) {
	s := newTestSession(t, answering("ok"))
	u := s.CurrentUser(context.Background())
	require.NotNil(t, u)
	require.Equal(t, "ana", identity.DisplayName(u))

	s.SignOut(context.Background())
	require.Nil(t, s.CurrentUser(context.Background()))
}

func TestNewAttachmentErrors(t *testing.T) {
	_, err := NewAttachment("")
	require.Error(t, err)
	_, err = NewAttachment(t.TempDir())
	require.Error(t, err)
	_, err = NewAttachment(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
