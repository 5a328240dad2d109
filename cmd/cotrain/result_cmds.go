package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cotrain/internal/app"
	"cotrain/pkg/types"
)

func newResultCmd() *cobra.Command {
	var downloadModel bool
	var outDir string

	cmd := &cobra.Command{
		Use:   "result",
		Short: "Show the trained model's summary and coefficients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				ok, err := enterStage(ctx, application, types.StageResult)
				if err != nil || !ok {
					return err
				}

				result, err := application.Runner().Result(ctx)
				if err != nil {
					return err
				}

				fmt.Printf("Model: %s regression, label %q, %d epochs\n",
					result.Config.Regression, result.Config.Label, result.Config.Epochs)
				for key, value := range result.Summary {
					fmt.Printf("  %s: %v\n", key, value)
				}
				fmt.Println("Coefficients:")
				for _, coefficient := range result.Coefficients {
					fmt.Printf("  %-24s %+.6f\n", coefficient.Feature, coefficient.Value)
				}

				if downloadModel {
					identity := application.Identity()
					filename, stream, err := application.Backend().DownloadModel(ctx, identity.SessionID)
					if err != nil {
						return err
					}
					defer stream.Close()

					target := filepath.Join(outDir, filename)
					out, err := os.Create(target)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", target, err)
					}
					defer out.Close()
					if _, err := io.Copy(out, stream); err != nil {
						return fmt.Errorf("failed to save model: %w", err)
					}
					fmt.Printf("Model saved to %s\n", target)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&downloadModel, "download", false, "Also download the trained model file")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory to save the model into")

	return cmd
}

func newPredictCmd() *cobra.Command {
	var batchFile string

	cmd := &cobra.Command{
		Use:   "predict [feature=value ...]",
		Short: "Run predictions against the trained model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				identity := application.Identity()
				if identity == nil {
					return fmt.Errorf("no stored session")
				}

				if batchFile != "" {
					return predictBatch(ctx, application, identity.SessionID, batchFile)
				}

				row, err := parseFeatureArgs(args)
				if err != nil {
					return err
				}
				predictions, err := application.Backend().Predict(ctx, identity.SessionID, []map[string]float64{row})
				if err != nil {
					return err
				}
				for _, prediction := range predictions {
					fmt.Printf("%.6f\n", prediction)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&batchFile, "file", "", "CSV file of rows to predict in one call")

	return cmd
}

func predictBatch(ctx context.Context, application *app.Application, sessionID, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open batch file: %w", err)
	}
	defer file.Close()

	predictions, err := application.Backend().PredictBatch(ctx, sessionID, filepath.Base(path), file)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(os.Stdout)
	defer writer.Flush()
	writer.Write([]string{"row", "prediction"})
	for i, prediction := range predictions {
		writer.Write([]string{strconv.Itoa(i), strconv.FormatFloat(prediction, 'f', 6, 64)})
	}
	return nil
}

// parseFeatureArgs turns feature=value pairs into one prediction row.
func parseFeatureArgs(args []string) (map[string]float64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("provide feature=value pairs or --file")
	}
	row := make(map[string]float64, len(args))
	for _, arg := range args {
		name, raw, found := strings.Cut(arg, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("malformed feature pair %q, want name=value", arg)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", name, err)
		}
		row[name] = value
	}
	return row, nil
}
