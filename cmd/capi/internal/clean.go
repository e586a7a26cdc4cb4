package internal

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/goplus/capi/internal/build"
	"github.com/goplus/capi/internal/target"
)

var cleanFlags sessionFlags

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the files capi produced",
	Long: `Clean removes exactly the files a build and install with the same flags
would produce: the installed libraries, links, header, pkg-config file and
assets, and the packaging outputs in the build directory. Other files are
left alone.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanFlags.register(cleanCmd.Flags())
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	s, err := cleanFlags.session(commandContext(cmd))
	if err != nil {
		return err
	}
	exec := newExecutor()
	_, err = s.run(commandContext(cmd), func(ctx context.Context, p *target.Platform) (*build.Output, error) {
		return exec.Plan(ctx, s.cfg, p, s.opts)
	}, exec.Clean)
	return err
}
