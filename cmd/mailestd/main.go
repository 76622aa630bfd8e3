// Command mailestd indexes a maildir tree and answers search/thread
// queries over a local control socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mailest/mailestd/pkg/config"
	"github.com/mailest/mailestd/pkg/daemon"
	"github.com/mailest/mailestd/pkg/log"
)

var (
	confPath    string
	checkOnly   bool
	debug       bool
	suffixFlags []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mailestd [maildir]",
	Short: "mailestd indexes a maildir tree and answers queries over a control socket",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDaemon,
}

func init() {
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "run in the foreground at debug log level")
	rootCmd.Flags().StringVarP(&confPath, "conf", "f", "", "path to a YAML config file")
	rootCmd.Flags().BoolVarP(&checkOnly, "check", "n", false, "parse the config and exit without starting")
	rootCmd.Flags().StringSliceVarP(&suffixFlags, "suffix", "S", nil, "message filename suffix to index (repeatable)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	maildirRoot, err := defaultMaildirRoot()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		maildirRoot = args[0]
	}
	maildirRoot, err = filepath.Abs(maildirRoot)
	if err != nil {
		return fmt.Errorf("resolve maildir %s: %w", maildirRoot, err)
	}

	cfg, err := config.Load(confPath, maildirRoot)
	if err != nil {
		return err
	}
	if debug {
		cfg.Debug = true
	}
	if len(suffixFlags) > 0 {
		cfg.Suffixes = suffixFlags
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if checkOnly {
		fmt.Fprintf(os.Stdout, "config ok: maildir=%s sock=%s db=%s\n", cfg.MaildirRoot, cfg.SocketPath, cfg.IndexPath)
		return nil
	}

	initLogging(cfg)

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return d.Run(ctx)
}

func initLogging(cfg *config.Config) {
	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	var output *log.RotatingFile
	if cfg.LogPath != "" {
		var err error
		output, err = log.OpenRotatingFile(cfg.LogPath, cfg.LogSize, cfg.LogCount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mailestd: %v, logging to stderr\n", err)
			output = nil
		}
	}

	logCfg := log.Config{Level: level}
	if output != nil {
		logCfg.Output = output
	}
	log.Init(logCfg)
}

// defaultMaildirRoot mirrors spec.md's "default maildir is $HOME/Mail".
func defaultMaildirRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("HOME is required: %w", err)
	}
	return filepath.Join(home, "Mail"), nil
}
