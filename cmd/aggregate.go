package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/aggregator"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Merge finished match results into a window summary and archive them",
	Run: func(cmd *cobra.Command, _ []string) {
		aggregate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)

	aggregateCmd.Flags().StringP("every", "e", "", "run continuously on the given interval (e.g. 5m) instead of a single pass")
}

func aggregate(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	store, err := buildStore(config)
	if err != nil {
		logger.Fatal("creating a storage client", zap.Error(err))
	}

	agg := aggregator.New(store, logger, config.Aggregator)

	every, _ := cmd.Flags().GetString("every")
	if every == "" {
		report, err := agg.Run(ctx)
		if err != nil {
			logger.Fatal("running the aggregation", zap.Error(err))
		}

		pretty, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			logger.Fatal("encoding the report", zap.Error(err))
		}

		fmt.Println(string(pretty))
		return
	}

	c := cron.New()
	_, err = c.AddFunc("@every "+every, func() {
		report, err := agg.Run(ctx)
		if err != nil {
			// The next pass re-reads the active prefix, so a failed pass
			// loses nothing.
			logger.Error("aggregation pass failed", zap.Error(err))
			return
		}

		logger.Info("aggregation pass finished",
			zap.String("window", report.Window),
			zap.Int("merged", report.Merged),
			zap.Int("recovered", report.Recovered),
			zap.Int("skipped", report.Skipped),
			zap.Int("archived", report.Archived),
		)
	})
	if err != nil {
		logger.Fatal("scheduling the aggregation", zap.String("every", every), zap.Error(err))
	}

	logger.Info("starting the aggregation loop", zap.String("every", every))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	logger.Info("aggregation loop stopped")
}
