// Package cli wires configuration, relays and transfers into cobra commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/rudransh-shrivastava/privosend/internal/config"
	"github.com/rudransh-shrivastava/privosend/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfg      *config.Config
	log      *slog.Logger
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "privosend",
	Short:         "peer to peer file transfer",
	Long:          `privosend sends a file directly between two machines that share a six digit room code, or through an expiring cloud drop`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded
		log = logger.New(cfg.LogLevel)
		slog.SetDefault(log)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(receiveCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cloudCmd)
	rootCmd.AddCommand(selftestCmd)
}
