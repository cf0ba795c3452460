package commands

import (
	"os"

	"github.com/btcsuite/btclog/v2"
	"github.com/roasbeef/subtrate/internal/baselib/actor"
	"github.com/roasbeef/subtrate/internal/build"
	"github.com/roasbeef/subtrate/mailbox"
	"github.com/spf13/cobra"
)

var (
	// logDir is the directory for rotating log files. Empty disables
	// file logging.
	logDir string

	// maxLogFiles and maxLogFileSize bound the rotator configured for
	// logDir.
	maxLogFiles    int
	maxLogFileSize int

	// logRotator is initialized in initLogging and closed on exit by
	// PersistentPostRun.
	logRotator *build.RotatingLogWriter
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "mailboxctl",
	Short: "Run and inspect concurrent mailbox scenarios",
	Long: `mailboxctl drives the mailbox package's buffer disciplines and
Output/Input composition primitives from the command line: run the
canonical producer/consumer scenarios, or pipe stdin lines through a
fan-out broadcast.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logRotator != nil {
			_ = logRotator.Close()
		}
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&logDir, "log-dir", "",
		"Directory for log files (empty disables file logging)",
	)
	rootCmd.PersistentFlags().IntVar(
		&maxLogFiles, "max-log-files", build.DefaultMaxLogFiles,
		"Maximum number of rotated log files to keep",
	)
	rootCmd.PersistentFlags().IntVar(
		&maxLogFileSize, "max-log-file-size", build.DefaultMaxLogFileSize,
		"Maximum log file size in MB before rotation",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(docCmd)
}

// initLogging wires up the console (and optional rotating file) btclog
// handlers and sets them as the logger for the mailbox and actor packages,
// mirroring the daemon's dual-stream logging setup.
func initLogging() error {
	var handlers []btclog.Handler
	handlers = append(handlers, btclog.NewDefaultHandler(os.Stderr))

	if logDir != "" {
		logRotator = build.NewRotatingLogWriter()
		err := logRotator.InitLogRotator(&build.LogRotatorConfig{
			LogDir:         logDir,
			MaxLogFiles:    maxLogFiles,
			MaxLogFileSize: maxLogFileSize,
		})
		if err != nil {
			return err
		}

		handlers = append(handlers, btclog.NewDefaultHandler(logRotator))
	}

	combined := build.NewHandlerSet(handlers...)
	logger := btclog.NewSLogger(combined)

	mailbox.UseLogger(logger.WithPrefix("MBOX"))
	actor.UseLogger(logger.WithPrefix("ACTR"))

	return nil
}
