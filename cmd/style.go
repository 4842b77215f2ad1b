package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"sourcery/internal/media"
	"sourcery/internal/resolve"
)

var (
	colorOK    = lipgloss.Color("42")
	colorMiss  = lipgloss.Color("244")
	colorWarn  = lipgloss.Color("214")
	colorError = lipgloss.Color("196")
	colorTitle = lipgloss.Color("62")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(colorTitle).Padding(0, 1)
	faint      = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorTitle).Padding(0, 1)
)

func statusColor(st resolve.Status) lipgloss.Color {
	switch st {
	case resolve.StatusSuccess:
		return colorOK
	case resolve.StatusNotFound:
		return colorMiss
	case resolve.StatusTimeout:
		return colorWarn
	default:
		return colorError
	}
}

func paint(styled bool, style lipgloss.Style, s string) string {
	if !styled {
		return s
	}
	return style.Render(s)
}

// formatStream renders one emitted stream as a single line.
func formatStream(s media.Stream, n int, styled bool) string {
	label, u := playURL(s)
	origin := s.SourcererID
	if s.EmbedID != "" {
		origin += "/" + s.EmbedID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%2d. %s %s %s",
		n,
		paint(styled, lipgloss.NewStyle().Bold(true), origin),
		paint(styled, lipgloss.NewStyle().Foreground(colorOK), "["+label+"]"),
		u)
	if len(s.Flags) > 0 {
		flagStyle := faint
		if s.HasFlag(media.FlagIPLocked) {
			flagStyle = lipgloss.NewStyle().Foreground(colorWarn)
		}
		flags := lo.Map(s.Flags, func(f media.Flag, _ int) string { return string(f) })
		b.WriteString(" " + paint(styled, flagStyle, "("+strings.Join(flags, ", ")+")"))
	}
	if len(s.Captions) > 0 {
		langs := lo.Uniq(lo.Map(s.Captions, func(c media.Caption, _ int) string { return c.Language }))
		b.WriteString(" " + paint(styled, faint, "subs: "+strings.Join(langs, ", ")))
	}
	return b.String()
}

// renderReport prints the per-provider outcome table of a finished run.
func renderReport(w io.Writer, r *resolve.Report, styled bool) {
	if r == nil {
		return
	}
	var lines []string
	for _, o := range r.Outcomes {
		name := o.ProviderID
		if o.Parent != "" {
			name = o.Parent + " > " + o.ProviderID
		}
		line := fmt.Sprintf("%-32s %s %s",
			name,
			paint(styled, lipgloss.NewStyle().Foreground(statusColor(o.Status)), fmt.Sprintf("%-9s", o.Status)),
			paint(styled, faint, o.Duration.Round(time.Millisecond).String()))
		if o.Err != nil && o.Status != resolve.StatusSuccess {
			line += " " + paint(styled, faint, o.ErrKind().String()+": "+o.Err.Error())
		}
		lines = append(lines, line)
	}

	summary := fmt.Sprintf("%d streams, %d ok, %d not found, %d timed out, %d failed",
		len(r.Streams),
		r.Count(resolve.StatusSuccess), r.Count(resolve.StatusNotFound),
		r.Count(resolve.StatusTimeout), r.Count(resolve.StatusError))
	if r.Canceled {
		summary += " (canceled)"
	}

	if !styled {
		fmt.Fprintf(w, "run %s\n", r.RunID)
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
		fmt.Fprintln(w, summary)
		return
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("run "+r.RunID),
		strings.Join(lines, "\n"),
		faint.Render(summary),
	)
	fmt.Fprintln(w, boxStyle.Render(body))
}
