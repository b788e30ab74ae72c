package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/aira/pkg/devserver"
	"github.com/go-go-golems/aira/pkg/identity"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if a.client == nil {
				return errors.Errorf("health needs the http gateway, configured gateway is %q", a.settings.Gateway)
			}
			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n%s\n", a.client.BaseURL(), h.Message, h.Docs)
			return err
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the configured user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			u, err := a.identity.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(w, "%s (%s)\n", identity.DisplayName(u), identity.Initial(u)); err != nil {
				return err
			}
			if u != nil && u.Email != "" {
				_, err = fmt.Fprintln(w, u.Email)
			}
			return err
		},
	}
}

func newDevServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Serve a local stand-in for the AIRA backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			failRate, _ := cmd.Flags().GetFloat64("fail-rate")
			rps, _ := cmd.Flags().GetFloat64("rps")
			burst, _ := cmd.Flags().GetInt("burst")
			if failRate < 0 || failRate > 1 {
				return errors.Errorf("fail-rate must be between 0 and 1, got %v", failRate)
			}

			s := devserver.New(
				devserver.WithFailRate(failRate),
				devserver.WithRateLimit(rps, burst),
			)
			return s.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().String("addr", ":8000", "Listen address")
	cmd.Flags().Float64("fail-rate", 0, "Fraction of chat and alert requests that fail")
	cmd.Flags().Float64("rps", 0, "Requests per second allowed, 0 for no limit")
	cmd.Flags().Int("burst", 10, "Burst size of the rate limit")
	return cmd
}
