package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/match"
	"github.com/opsarka/samradar/internal/queue"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Consume extracted opportunity keys and score them against the knowledge base",
	Run: func(cmd *cobra.Command, _ []string) {
		matchRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("one", "o", "", "process a single record key and exit instead of consuming the queue")
}

func matchRun(cmd *cobra.Command) {
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

	gen, err := buildGenerator(ctx, config, logger)
	if err != nil {
		logger.Fatal("creating a gemini client", zap.Error(err))
	}

	knowledge, err := buildKnowledgeBase(config, gen, logger)
	if err != nil {
		logger.Fatal("opening the knowledge base", zap.Error(err))
	}

	if knowledge.Count() == 0 {
		logger.Warn("the knowledge base is empty, every match will score against nothing")
	}

	engine := match.NewEngine(gen, knowledge, logger, config.Match)

	if key, _ := cmd.Flags().GetString("one"); key != "" {
		worker := match.NewWorker(engine, store, nil, logger)
		if err := worker.ProcessKey(ctx, key); err != nil {
			logger.Fatal("processing the record", zap.String("key", key), zap.Error(err))
		}
		logger.Info("record processed", zap.String("key", key))
		return
	}

	if config.Queue == nil {
		logger.Fatal("queue section is required in the config")
	}

	consumer := queue.NewConsumer(*config.Queue)
	defer consumer.Close()

	worker := match.NewWorker(engine, store, consumer, logger)

	logger.Info("starting the match worker",
		zap.String("topic", config.Queue.Topic),
		zap.String("group", config.Queue.Group),
	)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("match worker stopped", zap.Error(err))
	}

	logger.Info("match worker stopped")
}
