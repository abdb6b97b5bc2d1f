package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sableworks/warelay/internal/app"
	"github.com/sableworks/warelay/internal/config"
	"github.com/sableworks/warelay/internal/tui"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "warelay",
		Short: "Warelay relays WhatsApp conversations through an AI sales agent",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; real deployments set the environment directly.
			_ = godotenv.Load()
		},
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newTailCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook relay, scheduler and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newTailCommand(logger *slog.Logger) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the live conversation feed of a running relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(serverURL, logger)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the running relay")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
