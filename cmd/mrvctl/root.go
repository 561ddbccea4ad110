package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	envServer     = "MRV_SERVER"
	defaultServer = "http://localhost:8080/api"
)

type commandContext struct {
	server  *string
	timeout *time.Duration
	json    *bool
}

func (c *commandContext) client() *client {
	base := strings.TrimSpace(*c.server)
	if base == "" {
		base = defaultServer
	}
	return newClient(base, *c.timeout)
}

func newRootCommand() *cobra.Command {
	var (
		server  string
		timeout time.Duration
		asJSON  bool
	)

	ctx := &commandContext{server: &server, timeout: &timeout, json: &asJSON}

	rootCmd := &cobra.Command{
		Use:           "mrvctl",
		Short:         "Drive MRV forest inventory projects through the calculation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&server, "server", envOr(envServer, defaultServer), "Base URL of the MRV API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP request timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Write raw JSON instead of tables")

	rootCmd.AddCommand(newProjectsCommand(ctx))
	rootCmd.AddCommand(newPipelineCommand(ctx))
	rootCmd.AddCommand(newAdvanceCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newJobCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
