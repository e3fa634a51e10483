// Command cdback is a content-addressed, deduplicating backup tool for
// local filesystem trees. It writes each backup as a pair of files next to
// each other: "<name>.bin", an append-only blob store, and "<name>.idx", a
// one-line text file holding the blobstore key of that backup's snapshot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdback/cdback/internal/common"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cdback:", err)
		os.Exit(common.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cdback",
		Short:         "Content-defined-chunking backup tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newBackupCommand())
	cmd.AddCommand(newRestoreCommand())
	return cmd
}

func indexPath(name string) string { return name + ".idx" }
func blobPath(name string) string  { return name + ".bin" }
