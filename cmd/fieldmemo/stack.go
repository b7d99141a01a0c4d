package main

import (
	"context"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// stackServices are the backing services declared in docker-compose.yml.
var stackServices = []string{"postgres", "redis", "minio"}

func newStackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Run the local backing services (postgres, redis, minio) for async mode",
		Long: `stack wraps docker compose for the services fieldmemo talks to outside
tests: postgres for the structured store, redis for the asynq queue and minio
for voice memo and inspection photo blobs. Point FIELDMEMO_DATABASE_URL,
FIELDMEMO_REDIS_ADDR and FIELDMEMO_S3_ENDPOINT at them, then run
"fieldmemo migrate", "fieldmemo api" and "fieldmemo worker".`,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file declaring the backing services")
	cmd.AddCommand(newStackUpCmd(), newStackDownCmd(), newStackLogsCmd())
	return cmd
}

func newStackUpCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:       "up [postgres|redis|minio...]",
		Short:     "Start the backing services in the background",
		ValidArgs: stackServices,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := []string{"up", "--detach"}
			if wait {
				// Blocks until postgres accepts connections, so migrate can follow.
				flags = append(flags, "--wait")
			}
			return compose(cmd.Context(), append(flags, args...)...)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for services to be running before returning")
	return cmd
}

func newStackDownCmd() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the backing services",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := []string{"down"}
			if purge {
				flags = append(flags, "--volumes")
			}
			return compose(cmd.Context(), flags...)
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the postgres and minio volumes (memos, tasks, blobs)")
	return cmd
}

func newStackLogsCmd() *cobra.Command {
	var follow bool
	var tail string
	cmd := &cobra.Command{
		Use:       "logs [postgres|redis|minio...]",
		Short:     "Show logs from the backing services",
		ValidArgs: stackServices,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := []string{"logs", "--tail", tail}
			if follow {
				flags = append(flags, "--follow")
			}
			return compose(cmd.Context(), append(flags, args...)...)
		},
	}
	// -f is taken by --compose-file on the parent.
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")
	cmd.Flags().StringVar(&tail, "tail", "100", `Lines to show per service ("all" for everything)`)
	return cmd
}

// compose runs docker compose against composeFile with the terminal attached.
func compose(ctx context.Context, args ...string) error {
	execCmd := exec.CommandContext(ctx, "docker", append([]string{"compose", "-f", composeFile}, args...)...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
