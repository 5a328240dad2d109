package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"cotrain/internal/app"
	"cotrain/internal/config"
)

var (
	configPath string
	profile    string
	serverURL  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cotrain",
		Short:        "Client for collaborative MPC model training sessions",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to JSON configuration file")
	cmd.PersistentFlags().StringVar(&profile, "profile", "", "Profile scope holding this party's identity")
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend base URL (overrides configuration)")

	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newJoinCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newLeaveCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newProceedCmd())
	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newResultCmd())
	cmd.AddCommand(newPredictCmd())

	return cmd
}

// loadConfig resolves configuration with file > env > defaults, then applies
// command-line overrides on top.
func loadConfig() *config.Config {
	cfg := config.LoadConfigWithPrecedence(configPath)
	if profile != "" {
		cfg.State.Scope = profile
	}
	if serverURL != "" {
		cfg.Backend.BaseURL = serverURL
	}
	return cfg
}

// withApp runs fn inside a fully wired application, handling startup and
// shutdown around it.
func withApp(fn func(ctx context.Context, application *app.Application) error) error {
	cfg := loadConfig()

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		application.Stop(ctx)
		return err
	}
	defer func() {
		if err := application.Stop(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	return fn(ctx, application)
}
