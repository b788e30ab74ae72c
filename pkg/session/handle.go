package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/aira/pkg/conversation"
)

var ErrSendHandleNil = errors.New("send handle is nil")

// SendResult is the outcome of one send.
type SendResult struct {
	SendID   string
	ThreadID conversation.ThreadID
	Question string
	// User is nil for attachment-only sends.
	User *conversation.Message
	// Reply is the ai message appended to the thread: the answer or the
	// fixed error text.
	Reply    conversation.Message
	Answer   string
	Err      error
	Duration time.Duration
}

// Failed reports whether the backend could not provide an answer.
func (r *SendResult) Failed() bool {
	return r != nil && r.Err != nil
}

// SendHandle represents one in-flight send. It is cancelable and waitable.
type SendHandle struct {
	SessionID string
	SendID    string
	ThreadID  conversation.ThreadID
	Question  string

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	result *SendResult
}

func newSendHandle(sessionID, sendID string, threadID conversation.ThreadID, question string, cancel context.CancelFunc) *SendHandle {
	return &SendHandle{
		SessionID: sessionID,
		SendID:    sendID,
		ThreadID:  threadID,
		Question:  question,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

func (h *SendHandle) setResult(r *SendResult) {
	h.mu.Lock()
	h.result = r
	cancel := h.cancel
	h.cancel = nil
	close(h.done)
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cancel aborts the backend call. The send then resolves as failed. It is
// safe to call multiple times.
func (h *SendHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once the send resolved.
func (h *SendHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the send resolved. The returned error is the backend
// failure, if any; the thread already contains the error message by then.
func (h *SendHandle) Wait() (*SendResult, error) {
	if h == nil {
		return nil, ErrSendHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.result.Err
}

// IsRunning reports whether the send is still waiting for the backend.
func (h *SendHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
