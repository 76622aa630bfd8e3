// Command mailestctl is the control-socket client for mailestd: one
// subcommand per protocol command.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mailest/mailestd/pkg/client"
	"github.com/mailest/mailestd/pkg/types"
)

var sockPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mailestctl",
	Short: "mailestctl talks to a running mailestd over its control socket",
}

func init() {
	home, _ := os.UserHomeDir()
	defaultSock := filepath.Join(home, "Mail", ".mailest.sock")
	rootCmd.PersistentFlags().StringVar(&sockPath, "sock", defaultSock, "path to mailestd's control socket")

	rootCmd.AddCommand(
		updateCmd,
		searchCmd,
		smewCmd,
		suspendCmd,
		resumeCmd,
		stopCmd,
		debugUpCmd,
		debugDownCmd,
	)
}

func dial() (*client.Client, error) {
	c, err := client.NewClient(sockPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", sockPath, err)
	}
	return c, nil
}

var updateCmd = &cobra.Command{
	Use:   "update [folder]",
	Short: "gather a folder (or every included folder) and reindex what changed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var folder string
		if len(args) == 1 {
			folder = args[0]
		}

		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		line, err := c.Update(folder)
		if err != nil {
			return err
		}
		fmt.Print(line)
		return nil
	},
}

var (
	searchPhrase string
	searchMax    int
	searchOrder  string
	searchAttrs  []string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "search the index and print matching messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cond := types.SearchCond{
			Phrase: searchPhrase,
			Max:    searchMax,
			Order:  searchOrder,
			Attrs:  searchAttrs,
		}

		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		line, err := c.Search(cond)
		if err != nil {
			return err
		}
		fmt.Print(line)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchPhrase, "phrase", "", "full-text phrase to match")
	searchCmd.Flags().IntVar(&searchMax, "max", 0, "maximum number of hits (0 means no limit)")
	searchCmd.Flags().StringVar(&searchOrder, "order", "", "result order")
	searchCmd.Flags().StringArrayVar(&searchAttrs, "attr", nil, "attribute filter name=value (repeatable, up to 8)")
}

var smewFolderScope string

var smewCmd = &cobra.Command{
	Use:   "smew <msgid>",
	Short: "reconstruct a message's thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		line, err := c.Smew(args[0], smewFolderScope)
		if err != nil {
			return err
		}
		fmt.Print(line)
		return nil
	},
}

func init() {
	smewCmd.Flags().StringVar(&smewFolderScope, "folder", "", "keep duplicates only from this folder")
}

var suspendCmd = &cobra.Command{
	Use:   "suspend",
	Short: "pause every worker's low-priority work",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Suspend()
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "resume work paused by suspend",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Resume()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "shut the daemon down",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Stop()
	},
}

var debugUpCmd = &cobra.Command{
	Use:   "debug-up",
	Short: "raise the daemon's log level to debug",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.DebugUp()
	},
}

var debugDownCmd = &cobra.Command{
	Use:   "debug-down",
	Short: "restore the daemon's log level to info",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.DebugDown()
	},
}
