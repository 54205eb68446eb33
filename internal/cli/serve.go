package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"TaskForce/internal/logging"
	"TaskForce/internal/server"
)

var serveFlags struct {
	config         string
	addr           string
	mission        string
	journalDir     string
	logLevel       string
	tickHz         int
	backlogSeconds float64
	workers        int
	clientBuffer   int
	idleTTL        time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mission server",
	Long: `Starts the HTTP and websocket server. Settings come from the config
file, then from any flag given explicitly on the command line.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.config, "config", "c", "configs/server.yaml", "path to the server config file")
	f.StringVar(&serveFlags.addr, "addr", "", "address to listen on (e.g., 127.0.0.1:8080)")
	f.StringVarP(&serveFlags.mission, "mission", "m", "", "mission file (defaults to the built-in mission)")
	f.StringVar(&serveFlags.journalDir, "journal-dir", "", "directory for compressed journals")
	f.StringVar(&serveFlags.logLevel, "log-level", "", "debug, info, warn or error")
	f.IntVar(&serveFlags.tickHz, "tick-hz", 0, "simulation rate")
	f.Float64Var(&serveFlags.backlogSeconds, "backlog-seconds", 0, "seconds of updates kept for resuming clients")
	f.IntVar(&serveFlags.workers, "workers", 0, "background workers per session")
	f.IntVar(&serveFlags.clientBuffer, "client-buffer", 0, "outbound frames buffered per client")
	f.DurationVar(&serveFlags.idleTTL, "idle-ttl", 0, "remove sessions without clients after this long (e.g., 10m)")
	rootCmd.AddCommand(serveCmd)
}

// serveOverrides maps the flags set on cmd to config overrides.
func serveOverrides(cmd *cobra.Command) server.Overrides {
	var o server.Overrides
	f := cmd.Flags()
	if f.Changed("addr") {
		v := serveFlags.addr
		o.Addr = &v
	}
	if f.Changed("mission") {
		v := serveFlags.mission
		o.Mission = &v
	}
	if f.Changed("journal-dir") {
		v := serveFlags.journalDir
		o.JournalDir = &v
	}
	if f.Changed("log-level") {
		v := serveFlags.logLevel
		o.LogLevel = &v
	}
	if f.Changed("tick-hz") {
		v := serveFlags.tickHz
		o.TickHz = &v
	}
	if f.Changed("backlog-seconds") {
		v := serveFlags.backlogSeconds
		o.BacklogSeconds = &v
	}
	if f.Changed("workers") {
		v := serveFlags.workers
		o.Workers = &v
	}
	if f.Changed("client-buffer") {
		v := serveFlags.clientBuffer
		o.ClientBuffer = &v
	}
	if f.Changed("idle-ttl") {
		v := serveFlags.idleTTL
		o.IdleTTL = &v
	}
	return o
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := server.ResolveConfig(serveFlags.config, serveOverrides(cmd))
	if err != nil {
		return err
	}
	log := logging.NewWriter(cmd.ErrOrStderr(), cfg.Level())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	app, err := server.NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
