package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/kb"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the capability knowledge base",
}

var kbIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the knowledge base from a directory of capability documents",
	Run: func(cmd *cobra.Command, _ []string) {
		kbIndex(cmd)
	},
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbIndexCmd)

	kbIndexCmd.Flags().String("dir", "", "directory with capability documents (.txt, .md)")
	kbIndexCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation before dropping the existing collection")

	kbIndexCmd.MarkFlagRequired("dir")
}

func kbIndex(cmd *cobra.Command) {
	ctx := context.Background()

	logger := newLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	gen, err := buildGenerator(ctx, config, logger)
	if err != nil {
		logger.Fatal("creating a gemini client", zap.Error(err))
	}

	store, err := buildKnowledgeBase(config, gen, logger)
	if err != nil {
		logger.Fatal("opening the knowledge base", zap.Error(err))
	}

	dir, _ := cmd.Flags().GetString("dir")

	docs, err := collectDocuments(dir)
	if err != nil {
		logger.Fatal("collecting capability documents", zap.Error(err))
	}

	if len(docs) == 0 {
		logger.Fatal("no capability documents found", zap.String("dir", dir))
	}

	if count := store.Count(); count > 0 {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("The collection already holds %d documents. Drop it and reindex", count),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				logger.Info("reindex cancelled")
				return
			}
		}

		if err := store.Reset(); err != nil {
			logger.Fatal("dropping the collection", zap.Error(err))
		}
	}

	if err := store.Add(ctx, docs); err != nil {
		logger.Fatal("indexing capability documents", zap.Error(err))
	}

	logger.Info("knowledge base indexed",
		zap.String("dir", dir),
		zap.Int("documents", len(docs)),
	)
}

func collectDocuments(dir string) ([]kb.Document, error) {
	var docs []kb.Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}

		name := strings.TrimSuffix(filepath.Base(path), ext)
		docs = append(docs, kb.Document{
			ID:       rel,
			Title:    name,
			Source:   "file",
			Location: rel,
			Text:     text,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}
