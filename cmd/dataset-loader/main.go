package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/healthreport/pkg/common/config"
	"github.com/synaptica-ai/healthreport/pkg/common/database"
	"github.com/synaptica-ai/healthreport/pkg/common/kafka"
	"github.com/synaptica-ai/healthreport/pkg/common/logger"
	"github.com/synaptica-ai/healthreport/pkg/ingestion"
	"github.com/synaptica-ai/healthreport/pkg/ml/linear"
	"github.com/synaptica-ai/healthreport/pkg/storage"
)

func main() {
	logger.Init()

	rootCmd := &cobra.Command{
		Use:   "dataset-loader",
		Short: "Load patient admission exports into the dashboard store",
	}

	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(trainCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <path>",
		Short: "Replace the stored dataset with an export and announce the new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			source, _ := cmd.Flags().GetString("source")
			return runLoad(args[0], format, source)
		},
	}
	cmd.Flags().String("format", "", "Export format (csv or jsonl); inferred from the extension when empty")
	cmd.Flags().String("source", "", "Source system name recorded with the load (defaults to the file name)")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Read an export and report invalid records without storing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			opts, err := readerOptions(config.Load())
			if err != nil {
				return err
			}
			opts.SkipInvalid = true

			result, err := ingestion.ReadFile(args[0], format, opts)
			if err != nil {
				return err
			}
			for _, rejected := range result.Rejected {
				fmt.Fprintln(cmd.OutOrStdout(), rejected)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d valid, %d rejected\n", len(result.Records), len(result.Rejected))
			if len(result.Rejected) > 0 {
				return fmt.Errorf("%d invalid records", len(result.Rejected))
			}
			return nil
		},
	}
	cmd.Flags().String("format", "", "Export format (csv or jsonl); inferred from the extension when empty")
	return cmd
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train <path>",
		Short: "Fit prediction weights on the labelled records of an export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			epochs, _ := cmd.Flags().GetInt("epochs")
			rate, _ := cmd.Flags().GetFloat64("learning-rate")

			result, err := ingestion.ReadFile(args[0], "", ingestion.Options{})
			if err != nil {
				return err
			}
			artifact, err := linear.TrainFromRecords(filepath.Base(args[0]), result.Records, linear.Options{
				Epochs:       epochs,
				LearningRate: rate,
			})
			if err != nil {
				return err
			}
			if err := linear.SaveArtifact(out, artifact); err != nil {
				return err
			}

			logger.Log.WithFields(map[string]interface{}{
				"records":  len(result.Records),
				"loss":     artifact.Metrics.Loss,
				"accuracy": artifact.Metrics.Accuracy,
				"out":      out,
			}).Info("prediction weights trained")
			return nil
		},
	}
	cmd.Flags().String("out", "prediction_weights.json", "Where to write the trained weights")
	cmd.Flags().Int("epochs", 0, "Gradient descent epochs (0 uses the default)")
	cmd.Flags().Float64("learning-rate", 0, "Gradient descent step (0 uses the default)")
	return cmd
}

func runLoad(path, format, source string) error {
	cfg := config.Load()
	if source == "" {
		source = filepath.Base(path)
	}
	if format == "" {
		format = ingestion.FormatFromPath(path)
	}

	opts, err := readerOptions(cfg)
	if err != nil {
		return err
	}

	db, err := database.GetPostgres(cfg)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer database.ClosePostgres()

	store := storage.NewRecordStore(db)
	runs := ingestion.NewRepository(db)
	if err := store.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate dataset tables: %w", err)
	}
	if err := runs.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate load history tables: %w", err)
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.DatasetTopic)
	defer producer.Close()

	validator := ingestion.NewValidator(cfg.AllowedSources)
	svc := ingestion.NewService(validator, runs, store, producer, opts, cfg.LoadHistoryTTL)

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := svc.Load(ctx, ingestion.LoadRequest{Source: source, Format: format}, f)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d record(s) as version %s (%d rejected).\n", run.RecordCount, run.Version, run.Rejected)
	return nil
}

func readerOptions(cfg *config.Config) (ingestion.Options, error) {
	opts := ingestion.Options{SkipInvalid: cfg.SkipInvalidRows}
	if cfg.PredictionWeightsPath == "" {
		return opts, nil
	}
	artifact, err := linear.LoadArtifact(cfg.PredictionWeightsPath)
	if err != nil {
		return opts, fmt.Errorf("load prediction weights: %w", err)
	}
	opts.Scorer = artifact
	return opts, nil
}
