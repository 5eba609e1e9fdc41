// Package cmd provides the Cobra commands for the fluxfilter CLI.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/fluxfilter/cli/output"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fluxfilter",
	Short: "fluxfilter - parse, validate and compile resource filters",
	Long: `fluxfilter turns client-supplied filter expressions into parameterized SQL
conditions, checked against a per-resource filter schema.

Filters may be written as colon strings or JSON objects:
  status:eq:active
  {"age":{"gte":18},"status":{"in":["active","pending"]}}

Get started:
  fluxfilter parse --filter 'status:eq:active'
  fluxfilter compile --schema schemas/users.yaml --filter 'age:gte:18'
  fluxfilter serve --config fluxfilter.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet
		initLogging()
		_, err := output.ParseFormat(outputFmt)
		return err
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ./fluxfilter.yaml, ./config, /etc/fluxfilter)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(schemaCmd)
}

// initLogging writes human-readable logs to stderr. Commands other than
// serve only log warnings unless --debug is given.
func initLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}

// getFormatter returns a formatter writing to the command's output
func getFormatter(cmd *cobra.Command) *output.Formatter {
	format, _ := output.ParseFormat(outputFmt)
	f := output.NewFormatter(format, noHeaders, quiet)
	f.Writer = cmd.OutOrStdout()
	return f
}
