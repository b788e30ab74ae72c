package main

import (
	"time"

	"github.com/go-go-golems/glazed/pkg/types"

	"github.com/go-go-golems/aira/pkg/conversation"
	"github.com/go-go-golems/aira/pkg/gateway"
	"github.com/go-go-golems/aira/pkg/identity"
)

// threadRows turns every message of th into a row. Replies whose id is in
// failed are flagged; their text is the configured error text.
func threadRows(th conversation.Thread, user *identity.User, failed map[int]bool) []types.Row {
	ret := make([]types.Row, 0, len(th.Messages))
	for _, m := range th.Messages {
		who := "AIRA"
		if m.IsUser() {
			who = identity.DisplayName(user)
		}
		ret = append(ret, types.NewRow(
			types.MRP("thread", string(th.ID)),
			types.MRP("id", m.ID),
			types.MRP("time", m.Timestamp.Format(time.RFC3339)),
			types.MRP("sender", string(m.Sender)),
			types.MRP("author", who),
			types.MRP("text", m.Text),
			types.MRP("failed", failed[m.ID]),
		))
	}
	return ret
}

func alertsRow(a *gateway.AlertAnalysis) types.Row {
	return types.NewRow(
		types.MRP("dias", a.Days),
		types.MRP("analise", a.Analysis),
	)
}
