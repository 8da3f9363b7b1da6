package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/web/server"
)

type serveFlags struct {
	port int
}

func newServeCommand(a *app) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP conversion server",
		Long: `Serve the conversion API until interrupted. In-flight requests get the
configured shutdown timeout to finish.

Examples:
  depthmesh serve
  depthmesh serve --port 9090 --config depthmesh.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				if flags.port <= 0 || flags.port > 65535 {
					return core.NewError(core.StageOptions, core.ErrInvalidParameter, "port %d out of range", flags.port)
				}
				a.cfg.Server.Port = flags.port
			}

			a.logger.Info("depthmesh server",
				zap.String("version", Version),
				zap.Int("port", a.cfg.Server.Port),
				zap.Int("max_concurrent_jobs", a.cfg.Server.MaxConcurrentJobs))
			return server.NewServer(a.cfg, a.logger).Start(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&flags.port, "port", "p", 8080, "Port to serve on (default from config)")
	return cmd
}
