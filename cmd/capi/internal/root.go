package internal

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// toolVersion is checked against package.metadata.capi.min_version.
const toolVersion = "0.10.0"

var (
	verbose bool
	logger  = log.NewWithOptions(os.Stderr, log.Options{Prefix: "capi"})
)

var rootCmd = &cobra.Command{
	Use:   "capi",
	Short: "capi packages a crate as a C library",
	Long: `capi builds a crate's library target as a C-ABI static and shared library,
generates its C header and pkg-config file, and installs them following the
platform conventions.`,
	Version:       toolVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
