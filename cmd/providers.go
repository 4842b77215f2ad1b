package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"sourcery/internal/media"
	"sourcery/internal/sources"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List compiled-in providers in trial order",
	Args:  cobra.NoArgs,
	RunE:  providersRun,
}

func providersRun(cmd *cobra.Command, args []string) error {
	direct, _, err := newFetchers()
	if err != nil {
		return err
	}
	reg, err := sources.NewRegistry(cfg, direct, logger.WithField("component", "sources"))
	if err != nil {
		return fmt.Errorf("building provider registry: %w", err)
	}

	out := cmd.OutOrStdout()
	styled := isTerminal(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tRANK\tID\tFLAGS\tSTATUS")
	for _, e := range reg.All() {
		flags := lo.Map(e.Flags, func(f media.Flag, _ int) string { return string(f) })
		status := paint(styled, lipgloss.NewStyle().Foreground(colorOK), "enabled")
		if e.Disabled {
			reason := "disabled"
			if e.DisabledReason != nil {
				reason += ": " + e.DisabledReason.Error()
			}
			status = paint(styled, faint, reason)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", e.Kind, e.Rank, e.ID, strings.Join(flags, ","), status)
	}
	return tw.Flush()
}
