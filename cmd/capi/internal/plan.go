package internal

import (
	"context"
	"io"
	"path"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/goplus/capi/internal/build"
	"github.com/goplus/capi/internal/layout"
	"github.com/goplus/capi/internal/target"
)

var (
	planFlags     sessionFlags
	planPkgConfig bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what would be built and installed",
	Long:  `Plan prints the install layout of every target without building anything.`,
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func init() {
	planFlags.register(planCmd.Flags())
	planCmd.Flags().BoolVar(&planPkgConfig, "pkg-config", false, "Also print the pkg-config file")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	s, err := planFlags.session(commandContext(cmd))
	if err != nil {
		return err
	}
	exec := newExecutor()
	outs, err := s.run(commandContext(cmd), func(ctx context.Context, p *target.Platform) (*build.Output, error) {
		return exec.Plan(ctx, s.cfg, p, s.opts)
	}, nil)
	w := cmd.OutOrStdout()
	renderPlan(w, outs)
	if planPkgConfig {
		for _, out := range outs {
			io.WriteString(w, "\n# "+out.Target.Triple+" "+out.PkgConfig.FileName()+"\n")
			out.PkgConfig.WriteTo(w)
		}
	}
	return err
}

func renderPlan(w io.Writer, outs []*build.Output) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Target", "Kind", "Source", "Destination"})
	for _, out := range outs {
		for _, e := range out.Plan.Entries {
			t.AppendRow(table.Row{out.Target.Triple, e.Kind, entrySource(e), e.Dest})
		}
	}
	t.Render()
}

func entrySource(e layout.Entry) string {
	switch {
	case e.Kind == layout.Link:
		return "-> " + e.LinkTarget
	case e.Root == layout.CrateDir:
		return path.Join("<crate>", e.Source)
	case e.Root == layout.GeneratedDir:
		return path.Join("<out>", e.Source)
	}
	return e.Source
}
