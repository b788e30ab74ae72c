package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/aira/pkg/events"
	"github.com/go-go-golems/aira/pkg/ui"
)

func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-markdown", false, "Show answers as plain text")
	cmd.Flags().Bool("no-sidebar", false, "Start with the sidebar hidden")
}

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat interface",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
	addChatFlags(cmd)
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	if !isTerminal(os.Stdout) {
		return errors.New("chat needs a terminal, use aira ask instead")
	}
	noMarkdown, _ := cmd.Flags().GetBool("no-markdown")
	noSidebar, _ := cmd.Flags().GetBool("no-sidebar")

	// the TUI owns the screen from here on
	if err := initLogger(true); err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ev, err := newEventing()
	if err != nil {
		return err
	}
	defer func() {
		_ = ev.router.Close()
	}()

	sess, err := a.newSession(ev.sink)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	options := []tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	}
	if !isTerminal(os.Stdin) {
		tty, err := ui.OpenTTY()
		if err != nil {
			return errors.Wrap(err, "could not open terminal")
		}
		defer func() {
			_ = tty.Close()
		}()
		options = append(options, tea.WithInput(tty))
	}

	model := ui.NewModel(ctx, sess,
		ui.WithMarkdown(!noMarkdown),
		ui.WithSidebar(!noSidebar),
	)
	p := tea.NewProgram(model, options...)

	fwd := ui.NewForwarder(ui.DefaultForwarderBuffer)
	ev.router.AddHandler("ui", events.DefaultTopic, fwd.Handle)

	eg.Go(func() error {
		defer cancel()
		return ev.router.Run(ctx)
	})

	eg.Go(func() error {
		if !waitRunning(ctx, ev.router) {
			return nil
		}
		return fwd.Run(ctx, p)
	})

	if addr := a.settings.MetricsAddr; addr != "" {
		eg.Go(func() error {
			return ev.metrics.Serve(ctx, addr)
		})
	}

	eg.Go(func() error {
		defer cancel()
		if !waitRunning(ctx, ev.router) {
			return nil
		}
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	log.Debug().Str("session_id", sess.ID).Msg("chat closed")
	return nil
}

// waitRunning blocks until the router runs. It returns false if ctx is done
// first.
func waitRunning(ctx context.Context, r *events.EventRouter) bool {
	select {
	case <-r.Running():
		return true
	case <-ctx.Done():
		return false
	}
}
