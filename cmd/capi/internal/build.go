package internal

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/capi/internal/build"
	"github.com/goplus/capi/internal/target"
)

var buildFlags sessionFlags

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the C library of the current crate",
	Long: `Build compiles the crate's library for every requested target and writes the
C header and pkg-config files next to it in the build directory.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildFlags.register(buildCmd.Flags())
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	s, err := buildFlags.session(commandContext(cmd))
	if err != nil {
		return err
	}
	exec := newExecutor()
	outs, err := s.run(commandContext(cmd), func(ctx context.Context, p *target.Platform) (*build.Output, error) {
		return exec.Build(ctx, s.cfg, p, s.opts)
	}, nil)
	for _, out := range outs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: PKG_CONFIG_PATH=%s\n", out.Target.Triple, out.BuildDir)
	}
	return err
}
