package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/internal/daemon"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve one MCP session over stdin and stdout",
	Long: `Serve one Model Context Protocol session as newline-delimited JSON-RPC
over stdin and stdout. Logs go to stderr. The session ends when stdin closes.`,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to initialize toolgate: %w", err)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}
