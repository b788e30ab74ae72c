package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/aira/pkg/conversation"
	"github.com/go-go-golems/aira/pkg/events"
	"github.com/go-go-golems/aira/pkg/gateway"
	"github.com/go-go-golems/aira/pkg/identity"
)

const (
	DefaultErrorText = "⚠️ Erro ao falar com o servidor."
	DefaultTimeout   = 60 * time.Second
	DefaultAlertDays = 7
)

var (
	ErrSessionNil        = errors.New("session is nil")
	ErrGatewayNil        = errors.New("session gateway is nil")
	ErrNoActiveSend      = errors.New("session has no active send")
	ErrNoQuestion        = errors.New("draft has no question text")
	ErrAlertsUnsupported = errors.New("gateway cannot analyze alerts")

	// ErrSkipped marks sends rejected before anything changed. Callers
	// usually ignore it.
	ErrSkipped        = errors.New("send skipped")
	ErrEmptyDraft     = fmt.Errorf("%w: empty draft", ErrSkipped)
	ErrSendInProgress = fmt.Errorf("%w: send already in progress", ErrSkipped)
)

// Session is one user's chat session: the threads, the recent-query log,
// the composer draft and the single in-flight send.
//
// The gateway and the identity provider are passed in explicitly; nothing
// is looked up globally.
type Session struct {
	ID string

	store    *conversation.Store
	recent   *conversation.RecentQueryLog
	gateway  gateway.Gateway
	alerts   gateway.AlertAnalyzer
	identity identity.Provider
	sink     events.EventSink

	timeout   time.Duration
	errorText string

	mu     sync.Mutex
	draft  Draft
	active *SendHandle

	// threads whose user messages are all alert prompts so far
	alertOnly map[conversation.ThreadID]bool
}

type Option func(*Session)

// WithStore uses an existing store instead of a fresh one.
func WithStore(store *conversation.Store) Option {
	return func(s *Session) {
		s.store = store
	}
}

func WithRecentLimit(limit int) Option {
	return func(s *Session) {
		s.recent = conversation.NewRecentQueryLog(limit)
	}
}

// WithEventSink publishes store and send events to sink.
func WithEventSink(sink events.EventSink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithTimeout bounds every backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithErrorText sets the text of the ai message appended when a send fails.
func WithErrorText(text string) Option {
	return func(s *Session) {
		if text != "" {
			s.errorText = text
		}
	}
}

// WithAlertAnalyzer overrides the analyzer used by StartAlerts. By default
// the gateway is used when it implements gateway.AlertAnalyzer.
func WithAlertAnalyzer(a gateway.AlertAnalyzer) Option {
	return func(s *Session) {
		s.alerts = a
	}
}

func WithSessionID(id string) Option {
	return func(s *Session) {
		s.ID = id
	}
}

// New constructs a session talking to gw on behalf of the user reported by
// ident. ident may be nil.
func New(gw gateway.Gateway, ident identity.Provider, options ...Option) (*Session, error) {
	if gw == nil {
		return nil, ErrGatewayNil
	}
	s := &Session{
		ID:        uuid.NewString(),
		gateway:   gw,
		identity:  ident,
		timeout:   DefaultTimeout,
		errorText: DefaultErrorText,
		alertOnly: map[conversation.ThreadID]bool{},
	}
	if a, ok := gw.(gateway.AlertAnalyzer); ok {
		s.alerts = a
	}
	for _, o := range options {
		o(s)
	}
	if s.store == nil {
		s.store = conversation.NewStore()
	}
	if s.recent == nil {
		s.recent = conversation.NewRecentQueryLog(conversation.DefaultRecentLimit)
	}
	if s.sink != nil {
		s.store.OnChange(events.StoreListener(s.sink))
	}
	return s, nil
}

func (s *Session) Store() *conversation.Store {
	return s.store
}

func (s *Session) Snapshot() conversation.Snapshot {
	return s.store.Snapshot()
}

func (s *Session) ActiveThread() conversation.Thread {
	return s.store.ActiveThread()
}

// RecentQueries lists the opening queries, most recent first.
func (s *Session) RecentQueries() []string {
	return s.recent.List()
}

// NewThread starts a new empty conversation and makes it active.
func (s *Session) NewThread() conversation.Thread {
	return s.store.CreateThread()
}

func (s *Session) SelectThread(id conversation.ThreadID) error {
	return s.store.SelectThread(id)
}

func (s *Session) SelectRelative(delta int) error {
	return s.store.SelectRelative(delta)
}

// SetInput replaces the draft text.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Text = text
}

// SelectAttachment sets the draft attachment; nil clears it.
func (s *Session) SelectAttachment(a *Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Attachment = a
}

func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// IsPending reports whether a send is waiting for the backend.
func (s *Session) IsPending() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.IsRunning()
}

// CurrentUser returns the signed-in user, or nil.
func (s *Session) CurrentUser(ctx context.Context) *identity.User {
	if s.identity == nil {
		return nil
	}
	u, err := s.identity.CurrentUser(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not get current user")
		return nil
	}
	return u
}

// SignOut signs out through the identity provider. Failures are logged only.
func (s *Session) SignOut(ctx context.Context) {
	identity.SignOut(ctx, s.identity)
}

// SendText sets the draft text and sends it.
func (s *Session) SendText(ctx context.Context, text string) (*SendResult, error) {
	s.SetInput(text)
	return s.Send(ctx)
}

// Send sends the draft and waits for the outcome. The conversation is
// updated whether or not the backend answered; the returned error is
// either an ErrSkipped validation error (nothing changed) or the backend
// failure that was turned into the error message.
func (s *Session) Send(ctx context.Context) (*SendResult, error) {
	h, err := s.StartSend(ctx)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// StartSend validates the draft, appends the user message to the active
// thread, clears the draft and starts the backend call in the background.
func (s *Session) StartSend(ctx context.Context) (*SendHandle, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	return s.start(ctx, func(d Draft) (request, error) {
		if d.IsEmpty() {
			return request{}, ErrEmptyDraft
		}
		r := request{
			op:         gateway.OpAsk,
			text:       d.Text,
			question:   d.Text,
			attachment: d.Attachment,
			record:     true,
		}
		if !d.HasQuestion() {
			// an attachment alone has nothing to ask
			r.text = ""
			r.question = ""
			r.call = func(ctx context.Context) (string, error) {
				return "", &gateway.BackendError{Op: gateway.OpAsk, Err: ErrNoQuestion}
			}
			return r, nil
		}
		question := d.Text
		r.call = func(ctx context.Context) (string, error) {
			return s.gateway.Ask(ctx, question)
		}
		return r, nil
	}, true)
}

// StartAlerts asks for an analysis of the alerts of the last days and
// appends it to the active thread, following the same rules as a send.
// The draft is left alone and the prompt is not recorded as a recent
// query. days must be at least 1.
func (s *Session) StartAlerts(ctx context.Context, days int) (*SendHandle, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	if s.alerts == nil {
		return nil, ErrAlertsUnsupported
	}
	if days < 1 {
		return nil, &gateway.BackendError{Op: gateway.OpAlerts, Err: gateway.ErrInvalidDays}
	}
	return s.start(ctx, func(Draft) (request, error) {
		text := fmt.Sprintf("Análise de alertas dos últimos %d dias", days)
		return request{
			op:       gateway.OpAlerts,
			text:     text,
			question: text,
			call: func(ctx context.Context) (string, error) {
				a, err := s.alerts.AnalyzeAlerts(ctx, days)
				if err != nil {
					return "", err
				}
				return a.Analysis, nil
			},
		}, nil
	}, false)
}

// CancelActive cancels the in-flight send, if any.
func (s *Session) CancelActive() error {
	if s == nil {
		return ErrSessionNil
	}
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	if h == nil || !h.IsRunning() {
		return ErrNoActiveSend
	}
	h.Cancel()
	return nil
}

type request struct {
	op         string
	text       string
	question   string
	attachment *Attachment
	// record puts text in the recent-query log when it opens the thread
	record     bool
	call       func(ctx context.Context) (string, error)
}

func (s *Session) start(ctx context.Context, build func(Draft) (request, error), consumeDraft bool) (*SendHandle, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.active != nil && s.active.IsRunning() {
		s.mu.Unlock()
		return nil, ErrSendInProgress
	}
	req, err := build(s.draft)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var (
		threadID conversation.ThreadID
		user     *conversation.Message
	)
	if req.text != "" {
		res, err := s.store.AppendToActive(conversation.SenderUser, req.text)
		if err != nil {
			s.mu.Unlock()
			return nil, errors.Wrap(err, "could not append user message")
		}
		switch {
		case !req.record:
			if res.Opening {
				s.alertOnly[res.ThreadID] = true
			}
		case res.Opening || s.alertOnly[res.ThreadID]:
			delete(s.alertOnly, res.ThreadID)
			s.recent.Record(req.text)
		}
		threadID = res.ThreadID
		msg := res.Message
		user = &msg
	} else {
		threadID, _ = s.store.EnsureActive()
	}
	if consumeDraft {
		s.draft = Draft{}
	}

	sendID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	h := newSendHandle(s.ID, sendID, threadID, req.question, cancel)
	s.active = h
	s.mu.Unlock()

	go s.run(runCtx, h, req, user)

	return h, nil
}

func (s *Session) run(ctx context.Context, h *SendHandle, req request, user *conversation.Message) {
	start := time.Now()
	result := &SendResult{
		SendID:   h.SendID,
		ThreadID: h.ThreadID,
		Question: req.question,
		User:     user,
	}
	defer func() {
		s.mu.Lock()
		if s.active == h {
			s.active = nil
		}
		s.mu.Unlock()
		h.setResult(result)
	}()

	logger := log.With().
		Str("session_id", s.ID).
		Str("send_id", h.SendID).
		Str("thread_id", string(h.ThreadID)).
		Str("op", req.op).
		Logger()

	md := events.NewEventMetadata(h.ThreadID, h.SendID)
	attachment := ""
	if req.attachment != nil {
		attachment = req.attachment.Name
	}
	events.PublishBlind(s.sink, events.NewSendStartedEvent(md, req.question, attachment))
	logger.Debug().Msg("send started")

	callCtx := gateway.WithSendMeta(ctx, s.ID, h.SendID, string(h.ThreadID))
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, s.timeout)
		defer cancel()
	}

	answer, err := s.call(callCtx, req)
	result.Duration = time.Since(start)

	replyText := answer
	if err != nil {
		result.Err = gateway.AsBackendError(req.op, err)
		replyText = s.errorText
	} else {
		result.Answer = answer
	}

	reply, appendErr := s.store.AppendToThread(h.ThreadID, conversation.SenderAI, replyText)
	if appendErr != nil {
		// threads are never removed, so this only happens with a foreign store
		logger.Error().Err(appendErr).Msg("could not append reply")
	}
	result.Reply = reply.Message

	md = events.NewEventMetadata(h.ThreadID, h.SendID)
	if result.Err != nil {
		logger.Warn().Err(result.Err).Dur("duration", result.Duration).Msg("send failed")
		events.PublishBlind(s.sink, events.NewSendFailedEvent(md, result.Err, gateway.IsTimeout(result.Err), result.Duration.Milliseconds()))
		return
	}
	logger.Debug().Dur("duration", result.Duration).Msg("send finished")
	events.PublishBlind(s.sink, events.NewSendFinishedEvent(md, answer, result.Duration.Milliseconds()))
}

// call runs the backend call and turns panics into failures so that the
// pending send is always released.
func (s *Session) call(ctx context.Context, req request) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("backend call panicked: %v", r)
		}
	}()
	return req.call(ctx)
}
