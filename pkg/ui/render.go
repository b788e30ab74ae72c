package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/aira/pkg/conversation"
	"github.com/go-go-golems/aira/pkg/identity"
)

const (
	WelcomeTitle    = "Bem-vindo ao AIRA"
	WelcomeSubtitle = "Como posso ajudar você hoje?"
	aiBadge         = "AI"
	timeLayout      = "15:04"
)

type messageRenderer struct {
	style    *Style
	markdown bool

	width int
	md    *glamour.TermRenderer
}

func (r *messageRenderer) setWidth(width int) {
	if width == r.width && (r.md != nil || !r.markdown) {
		return
	}
	r.width = width
	r.md = nil
	if !r.markdown || width <= 0 {
		return
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Warn().Err(err).Msg("could not create markdown renderer")
		return
	}
	r.md = md
}

func (r *messageRenderer) body(m conversation.Message, width int) string {
	if m.IsAI() && r.md != nil {
		out, err := r.md.Render(m.Text)
		if err == nil {
			return strings.Trim(out, "\n")
		}
		log.Debug().Err(err).Int("message_id", m.ID).Msg("could not render markdown")
	}
	return wordwrap.String(m.Text, width)
}

// renderThread renders the messages of th, or the welcome text for an
// empty thread.
func (r *messageRenderer) renderThread(th conversation.Thread, user *identity.User) string {
	if len(th.Messages) == 0 {
		return r.style.Welcome.Render(WelcomeTitle) + "\n" + r.style.Muted.Render(WelcomeSubtitle)
	}

	frame, _ := r.style.AIMessage.GetFrameSize()
	inner := r.width - frame
	if inner < 10 {
		inner = 10
	}

	var sb strings.Builder
	for i, m := range th.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		badge := r.style.AIBadge.Render(aiBadge)
		box := r.style.AIMessage
		if m.IsUser() {
			badge = r.style.Badge.Render(identity.Initial(user))
			box = r.style.UserMessage
		}
		sb.WriteString(badge)
		sb.WriteString(" ")
		sb.WriteString(r.style.Time.Render(m.Timestamp.Format(timeLayout)))
		sb.WriteString("\n")
		sb.WriteString(box.Width(inner).Render(r.body(m, inner-2)))
		sb.WriteString("\n")
	}
	return sb.String()
}
