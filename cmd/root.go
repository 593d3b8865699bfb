package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/aggregator"
	"github.com/opsarka/samradar/internal/ai/gemini"
	"github.com/opsarka/samradar/internal/extractor"
	"github.com/opsarka/samradar/internal/kb"
	"github.com/opsarka/samradar/internal/logger"
	"github.com/opsarka/samradar/internal/match"
	"github.com/opsarka/samradar/internal/queue"
	"github.com/opsarka/samradar/internal/secrets"
	"github.com/opsarka/samradar/internal/storage"
)

const (
	app = "samradar"
)

type Config struct {
	Storage    *StorageConfig    `mapstructure:"storage"`
	Queue      *queue.Config     `mapstructure:"queue"`
	Extractor  extractor.Config  `mapstructure:"extractor"`
	Match      match.Config      `mapstructure:"match"`
	Aggregator aggregator.Config `mapstructure:"aggregator"`
	AI         *AIConfig         `mapstructure:"ai"`
	KB         *KBConfig         `mapstructure:"kb"`
}

type StorageConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"access-key"`
	AccessKeyFile string `mapstructure:"access-key-file"`
	SecretKey     string `mapstructure:"secret-key"`
	SecretKeyFile string `mapstructure:"secret-key-file"`
	Secure        bool   `mapstructure:"secure"`
}

type AIConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	EmbedModel string `mapstructure:"embed-model"`
}

type KBConfig struct {
	Path       string `mapstructure:"path"`
	Collection string `mapstructure:"collection"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "samradar extracts SAM.gov opportunities, scores them against a capability knowledge base and aggregates the results",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is samradar.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// The version command does not need a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

func newLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	return l
}

func buildStore(config *Config) (storage.Store, error) {
	if config == nil || config.Storage == nil {
		return nil, fmt.Errorf("storage section is required in the config")
	}

	accessKey, err := secrets.Load(secrets.Source{
		Name:  "storage access key",
		Value: config.Storage.AccessKey,
		File:  config.Storage.AccessKeyFile,
		Env:   "SAMRADAR_STORAGE_ACCESS_KEY",
	})
	if err != nil {
		return nil, err
	}

	secretKey, err := secrets.Load(secrets.Source{
		Name:  "storage secret key",
		Value: config.Storage.SecretKey,
		File:  config.Storage.SecretKeyFile,
		Env:   "SAMRADAR_STORAGE_SECRET_KEY",
	})
	if err != nil {
		return nil, err
	}

	return storage.NewMinio(storage.MinioConfig{
		Endpoint:  config.Storage.Endpoint,
		Bucket:    config.Storage.Bucket,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Secure:    config.Storage.Secure,
	})
}

func buildGenerator(ctx context.Context, config *Config, l *zap.Logger) (*gemini.Generator, error) {
	if config == nil || config.AI == nil {
		return nil, fmt.Errorf("ai section is required in the config")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.AI.APIKey,
		File:  config.AI.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	return gemini.NewGenerator(ctx, apiKey, config.AI.Model, config.AI.EmbedModel, l)
}

func buildKnowledgeBase(config *Config, gen *gemini.Generator, l *zap.Logger) (*kb.Store, error) {
	if config == nil || config.KB == nil {
		return nil, fmt.Errorf("kb section is required in the config")
	}

	return kb.NewStore(kb.StoreConfig{
		Path:       config.KB.Path,
		Collection: config.KB.Collection,
		Compress:   config.KB.Compress,
	}, gen, l)
}
