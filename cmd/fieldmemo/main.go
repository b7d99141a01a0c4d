package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configFile  string
	envFile     string
	composeFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fieldmemo: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fieldmemo",
		Short: "Voice memo, task and inspection backend",
		Long: `fieldmemo turns recorded voice memos into transcripts and dated tasks, and
inspection findings into written reports. It serves the HTTP API, runs the
background worker and offers a few development helpers.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Optional YAML config file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before the environment")
	cmd.AddCommand(
		newAPICmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newProcessCmd(),
		newTokenCmd(),
		newStackCmd(),
	)
	return cmd
}
