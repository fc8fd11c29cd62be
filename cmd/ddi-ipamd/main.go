package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zinrai/ddi-ipam-go/internal/config"
	"github.com/zinrai/ddi-ipam-go/internal/log"
)

func main() {
	if err := mainCmd.Execute(); err != nil {
		log.L.Fatal(err)
	}
}

var mainCmd = &cobra.Command{
	Use:          os.Args[0],
	Short:        "Run the DDI IPAM service",
	SilenceUsage: true,
}

func init() {
	mainCmd.PersistentFlags().StringP("config", "c", "/etc/ddi-ipam/config.yaml", "Path to the configuration file")
	mainCmd.PersistentFlags().StringP("log-level", "l", "", "Log level, overriding the configuration (options \"debug\", \"info\", \"warn\", \"error\")")

	mainCmd.AddCommand(
		serveCmd,
		validateCmd,
		migrateCmd,
		membersCmd,
	)
}

// loadConfig reads the configuration named by the --config flag and sets up
// logging from it.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level, err := flags.GetString("log-level")
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Log.Level = level
	}
	if err := log.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}
