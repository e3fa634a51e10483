package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cdback/cdback/internal/blobstore"
	"github.com/cdback/cdback/internal/chunker"
	"github.com/cdback/cdback/internal/common"
	"github.com/cdback/cdback/internal/pipeline"
)

func newBackupCommand() *cobra.Command {
	var (
		overwrite bool
		baseName  string
		minSize   uint32
		avgSize   uint32
		maxSize   uint32
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "backup <source> <name>",
		Short: "Back up a directory tree into <name>.bin/<name>.idx",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, name := args[0], args[1]
			logger := common.NewLogger(os.Stderr, common.ParseLogLevel(logLevel))

			if !overwrite {
				if _, err := os.Stat(indexPath(name)); err == nil {
					return common.NewKindf(common.KindInvalidInput,
						"%s already exists; pass --overwrite to replace it", indexPath(name))
				}
			}

			cfg := chunker.DefaultConfig()
			if minSize != 0 {
				cfg.MinSize = minSize
			}
			if avgSize != 0 {
				cfg.AvgSize = avgSize
			}
			if maxSize != 0 {
				cfg.MaxSize = maxSize
			}

			openStore := blobstore.Open
			if overwrite {
				openStore = blobstore.Create
			}
			store, err := openStore(blobPath(name))
			if err != nil {
				return err
			}
			defer store.Close()

			var baseKey string
			if baseName != "" {
				keyBytes, err := os.ReadFile(indexPath(baseName))
				if err != nil {
					return common.WrapKindf(common.KindIO, err, "read base index %s", indexPath(baseName))
				}
				baseKey = string(keyBytes)
			}

			p := pipeline.NewBackupPipeline(store, cfg, logger)
			rootKey, stats, err := p.Run(source, baseKey)
			if err != nil {
				return err
			}

			if err := os.WriteFile(indexPath(name), []byte(rootKey), 0o644); err != nil {
				return common.WrapKindf(common.KindIO, err, "write index %s", indexPath(name))
			}

			logger.Log(common.LogInfo, "backed up "+strconv.Itoa(stats.FilesWalked)+" files, "+
				strconv.Itoa(stats.SymlinksWalked)+" symlinks/hardlinks; "+
				strconv.Itoa(stats.ChunksWritten)+" new chunks ("+common.HumanBytes(stats.BytesWritten)+"), "+
				strconv.Itoa(stats.ChunksDeduped)+" deduped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing backup with the same name")
	cmd.Flags().StringVar(&baseName, "base", "", "name of a prior backup to reuse chunks from")
	cmd.Flags().Uint32Var(&minSize, "min", 0, "minimum chunk size in bytes (default 8192)")
	cmd.Flags().Uint32Var(&avgSize, "avg", 0, "target average chunk size in bytes (default 16384)")
	cmd.Flags().Uint32Var(&maxSize, "max", 0, "maximum chunk size in bytes (default 65536)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "none|error|warning|info|debug")
	return cmd
}
