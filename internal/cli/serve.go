package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yaap/hardware-google-pixel/internal/daemon"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Record decisions without touching the system")
	serveCmd.Flags().IntVarP(&serveVerbosity, "verbosity", "v", -1, "Log verbosity (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost      string
	servePort      int
	serveDryRun    bool
	serveVerbosity int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ADPF daemon",
	Long:  `Start the hint session API at 127.0.0.1:7070.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfigPath(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveDryRun {
		cfg.ADPF.DryRun = true
	}
	if serveVerbosity >= 0 {
		cfg.Logging.Verbosity = serveVerbosity
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	d, err := daemon.NewWithConfig(cfg, rootCmd.Version, log)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(cmd.Context())
}
