// Command agent runs the conversational agent worker.
//
// Serve jobs over HTTP:
//
//	agent serve --config config.yaml
//
// Consume jobs from the Redis queue:
//
//	agent worker --config config.yaml
//
// Print the tool catalog offered to the model:
//
//	agent tools --features '{"ask_for_pix":true}'
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "agent",
		Short:        "Conversational agent worker",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildServeCmd(&configPath),
		buildWorkerCmd(&configPath),
		buildToolsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
