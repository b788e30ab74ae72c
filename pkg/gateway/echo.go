package gateway

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

// Echo is an offline gateway that answers with the question itself,
// spending TimePerCharacter per rune to mimic a slow backend.
type Echo struct {
	TimePerCharacter time.Duration
	Prefix           string
}

var _ Gateway = &Echo{}
var _ AlertAnalyzer = &Echo{}

func NewEcho() *Echo {
	return &Echo{
		TimePerCharacter: 10 * time.Millisecond,
		Prefix:           "eco: ",
	}
}

func (e *Echo) Ask(ctx context.Context, question string) (string, error) {
	if err := e.wait(ctx, utf8.RuneCountInString(question)); err != nil {
		return "", NewBackendError(OpAsk, err)
	}
	return e.Prefix + question, nil
}

func (e *Echo) AnalyzeAlerts(ctx context.Context, days int) (*AlertAnalysis, error) {
	if days < 1 {
		return nil, &BackendError{Op: OpAlerts, Err: ErrInvalidDays}
	}
	if err := e.wait(ctx, days); err != nil {
		return nil, NewBackendError(OpAlerts, err)
	}
	return &AlertAnalysis{
		Days:     days,
		Analysis: fmt.Sprintf("Nenhum alerta registrado nos últimos %d dias.", days),
	}, nil
}

func (e *Echo) wait(ctx context.Context, units int) error {
	d := e.TimePerCharacter * time.Duration(units)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
