// Package main implements the email-monitor command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"email-monitor-go/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "email-monitor",
		Short:        "Admin dashboard for monitoring mail server logs",
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard web server",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := app.Run(); err != nil {
				logrus.Errorf("application error: %v", err)
				return err
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of email-monitor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "email-monitor version %s\n", app.Version)
			return err
		},
	}

	rootCmd.AddCommand(serveCmd, newLogsCmd(), versionCmd)
	return rootCmd
}
