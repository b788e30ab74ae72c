package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/aira/pkg/events"
	"github.com/go-go-golems/aira/pkg/gateway"
	"github.com/go-go-golems/aira/pkg/identity"
	"github.com/go-go-golems/aira/pkg/metrics"
	"github.com/go-go-golems/aira/pkg/session"
	"github.com/go-go-golems/aira/pkg/settings"
)

// app holds what every command builds from the settings.
type app struct {
	settings *settings.Settings
	gateway  gateway.Gateway
	alerts   gateway.AlertAnalyzer
	// client is nil when the echo gateway is configured.
	client   *gateway.Client
	identity *identity.Static
}

func newApp() (*app, error) {
	s, err := settings.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	ret := &app{
		settings: s,
		identity: identity.NewStatic(s.User),
	}

	switch s.Gateway {
	case settings.GatewayEcho:
		e := gateway.NewEcho()
		e.TimePerCharacter = s.EchoDelay
		ret.gateway = e
		ret.alerts = e
	default:
		c, err := gateway.NewClient(s.BackendURL,
			gateway.WithTimeout(s.Timeout),
			gateway.WithUserAgent(gateway.DefaultUserAgent+"/"+version),
		)
		if err != nil {
			return nil, errors.Wrap(err, "could not create backend client")
		}
		ret.client = c
		ret.gateway = c
		ret.alerts = c
	}

	if s.AlertsCacheTTL > 0 {
		ret.alerts = gateway.NewCachedAlerts(ret.alerts, s.AlertsCacheTTL)
	}

	return ret, nil
}

func (a *app) newSession(sink events.EventSink) (*session.Session, error) {
	options := []session.Option{
		session.WithTimeout(a.settings.Timeout),
		session.WithErrorText(a.settings.ErrorText),
		session.WithRecentLimit(a.settings.RecentLimit),
		session.WithAlertAnalyzer(a.alerts),
	}
	if sink != nil {
		options = append(options, session.WithEventSink(sink))
	}
	return session.New(a.gateway, a.identity, options...)
}

// eventing is the in-process event bus of a session: the router, the sink
// publishing to it and the metrics fed by the same events.
type eventing struct {
	router  *events.EventRouter
	sink    events.EventSink
	metrics *metrics.Metrics
}

func newEventing() (*eventing, error) {
	router, err := events.NewEventRouter(
		events.WithVerbose(viper.GetBool("verbose")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not create event router")
	}
	m := metrics.New()
	return &eventing{
		router:  router,
		sink:    events.MultiSink{events.NewWatermillSink(router.Publisher, events.DefaultTopic), m},
		metrics: m,
	}, nil
}
