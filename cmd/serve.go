package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/tutorialpipe/metrics"
	"github.com/gaurav-prasanna/tutorialpipe/server"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tutorial API over HTTP",
	Long: `Serve exposes POST /generate, /generateOutline and /generateDraft, plus
health probes and Prometheus metrics. SIGINT or SIGTERM triggers a graceful
shutdown.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default SERVER_HOST:PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	p, err := buildPipeline(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: cleanup: %v\n", cerr)
		}
	}()

	addr := flagAddr
	if addr == "" {
		addr = cfg.Addr()
	}
	srv := server.New(server.Options{
		Addr:           addr,
		Runner:         p.workflow,
		Client:         p.client,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxUploadMB << 20,

		AllowLocalSources: cfg.Server.AllowLocalSources,
	})
	return srv.ListenAndServe(ctx)
}
