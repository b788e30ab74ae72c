package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/aira/pkg/events"
	"github.com/go-go-golems/aira/pkg/session"
)

type AskSettings struct {
	PrintEvents bool     `glazed.parameter:"print-events"`
	Raw         bool     `glazed.parameter:"raw"`
	Questions   []string `glazed.parameter:"question"`
}

// AskCommand sends questions in a single conversation and emits one row
// per message of the resulting thread.
type AskCommand struct {
	*cmds.CommandDescription
	in     io.Reader
	events io.Writer
}

var _ cmds.GlazeCommand = &AskCommand{}

func NewAskCommand() (*AskCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}

	return &AskCommand{
		CommandDescription: cmds.NewCommandDescription(
			"ask",
			cmds.WithShort("Ask one question, or every line of stdin, in a single conversation"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"print-events",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Print session events to stderr"),
					parameters.WithDefault(false),
				),
				parameters.NewParameterDefinition(
					"raw",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Print events as raw JSON (with --print-events)"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"question",
					parameters.ParameterTypeStringList,
					parameters.WithHelp("Question to ask; stdin lines are read when empty"),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
		in:     os.Stdin,
		events: os.Stderr,
	}, nil
}

func readQuestions(args []string, in io.Reader) ([]string, error) {
	if len(args) > 0 {
		return []string{strings.Join(args, " ")}, nil
	}
	var ret []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if line := scanner.Text(); strings.TrimSpace(line) != "" {
			ret = append(ret, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "could not read questions")
	}
	return ret, nil
}

func (c *AskCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &AskSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "could not initialize ask settings")
	}

	questions, err := readQuestions(s.Questions, c.in)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return errors.New("no question given")
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	if !s.PrintEvents {
		sess, err := a.newSession(nil)
		if err != nil {
			return err
		}
		return askAll(ctx, sess, questions, gp)
	}

	router, err := events.NewEventRouter(
		events.WithVerbose(viper.GetBool("verbose")),
		events.WithDumpWriter(c.events),
	)
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()
	if s.Raw {
		router.AddHandler("raw", events.DefaultTopic, router.DumpRawEvents)
	} else {
		router.AddHandler("printer", events.DefaultTopic, events.PrinterFunc(c.events))
	}

	sess, err := a.newSession(events.NewWatermillSink(router.Publisher, events.DefaultTopic))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg := errgroup.Group{}

	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})

	eg.Go(func() error {
		defer cancel()
		if !waitRunning(ctx, router) {
			return nil
		}
		return askAll(ctx, sess, questions, gp)
	})

	return eg.Wait()
}

// askAll sends the questions one after the other and emits the thread.
// Failed sends are flagged on their reply row and logged.
func askAll(ctx context.Context, sess *session.Session, questions []string, gp middlewares.Processor) error {
	failed := map[int]bool{}
	for _, q := range questions {
		res, err := sess.SendText(ctx, q)
		if errors.Is(err, session.ErrSkipped) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("question", q).Msg("send failed")
			if res != nil {
				failed[res.Reply.ID] = true
			}
			continue
		}
		log.Debug().Str("send_id", res.SendID).Dur("duration", res.Duration).Msg("answered")
	}

	for _, row := range threadRows(sess.ActiveThread(), sess.CurrentUser(ctx), failed) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
