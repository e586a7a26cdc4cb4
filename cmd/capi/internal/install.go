package internal

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/goplus/capi/internal/build"
	"github.com/goplus/capi/internal/target"
)

var installFlags sessionFlags

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Build and install the C library of the current crate",
	Long: `Install builds the crate's library like "capi build" and copies the
libraries, header, pkg-config file and declared assets into the installation
directories. Nothing is copied unless every destination is writable, and a
failed install is rolled back.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installFlags.register(installCmd.Flags())
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	s, err := installFlags.session(commandContext(cmd))
	if err != nil {
		return err
	}
	exec := newExecutor()
	outs, err := s.run(commandContext(cmd), func(ctx context.Context, p *target.Platform) (*build.Output, error) {
		return exec.Build(ctx, s.cfg, p, s.opts)
	}, exec.Install)
	if len(outs) > 0 {
		logger.Info("Installed", "summary", summary(outs))
	}
	return err
}
