package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/extractor"
	"github.com/opsarka/samradar/internal/queue"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract opportunity records and attachments from a SAM.gov bulk dump",
	Run: func(cmd *cobra.Command, _ []string) {
		extract(cmd)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("input", "i", "", "path to a bulk dump file on disk")
	extractCmd.Flags().StringP("key", "k", "", "storage key of a bulk dump object")
	extractCmd.Flags().Bool("no-publish", false, "do not publish extracted record keys to the queue")
}

func extract(cmd *cobra.Command) {
	ctx := context.Background()

	logger := newLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	store, err := buildStore(config)
	if err != nil {
		logger.Fatal("creating a storage client", zap.Error(err))
	}

	input, _ := cmd.Flags().GetString("input")
	key, _ := cmd.Flags().GetString("key")

	var dump []byte
	switch {
	case input != "":
		dump, err = os.ReadFile(input)
		if err != nil {
			logger.Fatal("reading the dump file", zap.Error(err))
		}
	case key != "":
		dump, err = store.Get(ctx, key)
		if err != nil {
			logger.Fatal("fetching the dump object", zap.String("key", key), zap.Error(err))
		}
	default:
		logger.Fatal("either --input or --key must be set")
	}

	var pub extractor.Publisher
	noPublish, _ := cmd.Flags().GetBool("no-publish")
	if !noPublish {
		if config.Queue == nil {
			logger.Fatal("queue section is required in the config unless --no-publish is set")
		}

		p := queue.NewPublisher(*config.Queue)
		defer p.Close()
		pub = p
	}

	x := extractor.New(store, pub, logger, config.Extractor)

	report, err := x.Run(ctx, dump, time.Now().UTC())
	if err != nil {
		logger.Fatal("running the extraction", zap.Error(err))
	}

	pretty, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Fatal("encoding the report", zap.Error(err))
	}

	fmt.Println(string(pretty))
}
