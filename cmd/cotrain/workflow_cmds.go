package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cotrain/internal/app"
	"cotrain/pkg/types"
)

// newProgressTicker paces log rendering while the feed fills in background.
func newProgressTicker() *time.Ticker {
	return time.NewTicker(200 * time.Millisecond)
}

// enterStage authorizes a stage through the guard and prints the redirect
// verdict when the stage is gated.
func enterStage(ctx context.Context, application *app.Application, stage string) (bool, error) {
	decision, err := application.Runner().EnterStage(ctx, stage)
	if err != nil {
		return false, err
	}
	if decision.Render() {
		return true, nil
	}
	fmt.Printf("Stage %q is not available: %s\n", stage, decision.Reason)
	fmt.Printf("Go to %q instead.\n", decision.Target)
	return false, nil
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload this party's dataset for the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				ok, err := enterStage(ctx, application, types.StageFormUpload)
				if err != nil || !ok {
					return err
				}

				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open dataset: %w", err)
				}
				defer file.Close()

				if err := application.Runner().UploadDataset(ctx, filepath.Base(args[0]), file); err != nil {
					return err
				}
				fmt.Println("Dataset uploaded. The other parties see this one as ready.")
				return nil
			})
		},
	}
}

func newProceedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proceed",
		Short: "Signal all parties to advance to the training log (lead only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				if err := application.Runner().SignalProceed(ctx); err != nil {
					return err
				}
				fmt.Println("Proceed signaled.")
				return nil
			})
		},
	}
}

func newTrainCmd() *cobra.Command {
	var (
		normalizer   string
		regression   string
		learningRate float64
		epochs       int
		label        string
		logTraining  bool
		idMode       string
		idColumns    []string
		idSeparator  string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Submit the run configuration and start training (lead only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				if idMode == types.IdentifierModeColumns {
					columns, err := application.Runner().CommonColumns(ctx)
					if err != nil {
						return err
					}
					if columns.Error != "" {
						return fmt.Errorf("column negotiation failed: %s", columns.Error)
					}
					fmt.Printf("Common columns across all parties: %d\n", len(columns.CommonColumns))
				}

				runCfg := types.RunConfig{
					Normalizer:   normalizer,
					Regression:   regression,
					LearningRate: learningRate,
					Epochs:       epochs,
					Label:        label,
					IsLogging:    logTraining,
					IdentifierConfig: types.IdentifierConfig{
						Mode:      idMode,
						Columns:   idColumns,
						Separator: idSeparator,
					},
				}
				if err := application.Runner().StartTraining(ctx, runCfg); err != nil {
					return err
				}
				fmt.Println("Training started. Use watch to follow progress.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&normalizer, "normalizer", "minmax", "Feature normalizer")
	cmd.Flags().StringVar(&regression, "regression", "logistic", "Regression kind (linear, logistic)")
	cmd.Flags().Float64Var(&learningRate, "learning-rate", 0.1, "Learning rate")
	cmd.Flags().IntVar(&epochs, "epochs", 10, "Training epochs")
	cmd.Flags().StringVar(&label, "label", "", "Target column the model predicts")
	cmd.Flags().BoolVar(&logTraining, "log-training", true, "Stream per-epoch progress")
	cmd.Flags().StringVar(&idMode, "id-mode", types.IdentifierModeIndex, "Record alignment mode (index, columns)")
	cmd.Flags().StringSliceVar(&idColumns, "id-column", nil, "Identifier column (repeatable, columns mode)")
	cmd.Flags().StringVar(&idSeparator, "id-separator", "", "Separator joining multiple identifier columns")
	cmd.MarkFlagRequired("label")

	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the live training log until completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				ok, err := enterStage(ctx, application, types.StageLog)
				if err != nil || !ok {
					return err
				}

				feed := application.Runner().Feed()
				if feed == nil {
					return fmt.Errorf("progress feed unavailable")
				}

				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(sigCh)

				printed := 0
				ticker := newProgressTicker()
				defer ticker.Stop()

				for {
					select {
					case <-ticker.C:
						events := feed.Events()
						for ; printed < len(events); printed++ {
							fmt.Println(events[printed].Message)
						}
						if feed.Completed() {
							fmt.Printf("Training complete after %d milestones.\n", feed.Milestones())
							return nil
						}
					case sig := <-sigCh:
						fmt.Printf("\nReceived %v, leaving the log. Training continues server-side.\n", sig)
						return nil
					}
				}
			})
		},
	}
}
