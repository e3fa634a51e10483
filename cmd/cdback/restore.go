package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cdback/cdback/internal/blobstore"
	"github.com/cdback/cdback/internal/common"
	"github.com/cdback/cdback/internal/pipeline"
)

func newRestoreCommand() *cobra.Command {
	var (
		noVerify bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "restore <destination> <name>",
		Short: "Restore <name>.bin/<name>.idx into a destination directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			destination, name := args[0], args[1]
			logger := common.NewLogger(os.Stderr, common.ParseLogLevel(logLevel))

			keyBytes, err := os.ReadFile(indexPath(name))
			if err != nil {
				return common.WrapKindf(common.KindIO, err, "read index %s", indexPath(name))
			}

			store, err := blobstore.Open(blobPath(name))
			if err != nil {
				return err
			}
			defer store.Close()

			p := pipeline.NewRestorePipeline(store, logger, !noVerify)
			stats, err := p.Run(string(keyBytes), destination)
			if err != nil {
				return err
			}

			logger.Log(common.LogInfo, "restored "+strconv.Itoa(stats.FilesWritten)+" files, "+
				strconv.Itoa(stats.SymlinksWritten)+" symlinks, "+
				strconv.Itoa(stats.HardlinksMade)+" hard links ("+common.HumanBytes(stats.BytesWritten)+")")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip hash verification of restored chunks")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "none|error|warning|info|debug")
	return cmd
}
