package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"devsolver/internal/adapter/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search and answer API over HTTP",
	Long: `Start the HTTP API. Routes:
  GET  /check/healthy
  POST /api/v1/search
  POST /api/v1/ask
  GET  /api/v1/technologies
  GET  /api/v1/technologies/:tech/stats
  POST /api/v1/documents

Examples:
  devsolver serve
  devsolver serve --addr 127.0.0.1:9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := httpapi.NewRequestHandler(a.search, a.answer, a.search, a.ingest)
	server := httpapi.NewServer(addr, handler, a.logger)

	a.logger.Info("starting server", "addr", addr, "store", a.dbPath)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
