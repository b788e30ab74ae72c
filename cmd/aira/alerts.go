package main

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/pkg/errors"

	"github.com/go-go-golems/aira/pkg/gateway"
	"github.com/go-go-golems/aira/pkg/session"
)

type AlertsSettings struct {
	Days int `glazed.parameter:"dias"`
}

// AlertsCommand emits the backend's analysis of the recent deforestation
// alerts as a single row.
type AlertsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = &AlertsCommand{}

func NewAlertsCommand() (*AlertsCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}

	return &AlertsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"alerts",
			cmds.WithShort("Analyze the deforestation alerts of the last days"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"dias",
					parameters.ParameterTypeInteger,
					parameters.WithHelp("Number of days to analyze"),
					parameters.WithDefault(session.DefaultAlertDays),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *AlertsCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &AlertsSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "could not initialize alerts settings")
	}
	if s.Days < 1 {
		return &gateway.BackendError{Op: gateway.OpAlerts, Err: gateway.ErrInvalidDays}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	if a.alerts == nil {
		return session.ErrAlertsUnsupported
	}

	analysis, err := a.alerts.AnalyzeAlerts(ctx, s.Days)
	if err != nil {
		return err
	}
	return gp.AddRow(ctx, alertsRow(analysis))
}
