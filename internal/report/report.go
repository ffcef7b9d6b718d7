// Package report renders rehearsal statistics, balance sessions and
// session history as terminal text.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jwebster45206/storyworld-balancer/internal/history"
	"github.com/jwebster45206/storyworld-balancer/pkg/balance"
	"github.com/jwebster45206/storyworld-balancer/pkg/rehearsal"
	"github.com/jwebster45206/storyworld-balancer/pkg/storyworld"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

const (
	DefaultWidth = 80
	barWidth     = 24
)

// Writer renders reports to an io.Writer. Colour is only used when the
// destination is a terminal.
type Writer struct {
	out     io.Writer
	width   int
	printer *message.Printer
	title   cases.Caser

	heading lipgloss.Style
	muted   lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
}

// New creates a report writer. width <= 0 uses DefaultWidth.
func New(out io.Writer, width int) *Writer {
	if width <= 0 {
		width = DefaultWidth
	}
	r := lipgloss.NewRenderer(out)
	return &Writer{
		out:     out,
		width:   width,
		printer: message.NewPrinter(language.English),
		title:   cases.Title(language.English),
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("240")),
		good:    r.NewStyle().Foreground(lipgloss.Color("86")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		bad:     r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func (w *Writer) line(format string, args ...any) {
	fmt.Fprintln(w.out, w.printer.Sprintf(format, args...))
}

func (w *Writer) section(name string) {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, w.heading.Render(name))
}

// wrapped writes text wrapped to the report width, indented by n
func (w *Writer) wrapped(text string, n uint) {
	body := wordwrap.String(text, w.width-int(n))
	fmt.Fprintln(w.out, indent.String(body, n))
}

// Number formats n with digit grouping
func (w *Writer) Number(n int) string {
	return w.printer.Sprintf("%d", n)
}

func percent(v float64) string {
	return fmt.Sprintf("%5.1f%%", v*100)
}

func bar(share float64) string {
	n := int(share*barWidth + 0.5)
	if n > barWidth {
		n = barWidth
	}
	return strings.Repeat("█", n) + strings.Repeat("·", barWidth-n)
}

// KindLabel turns an issue kind like high_dead_end into "High Dead End"
func (w *Writer) KindLabel(k balance.Kind) string {
	return w.title.String(strings.ReplaceAll(string(k), "_", " "))
}

// Statistics renders one rehearsal and the issues found in it
func (w *Writer) Statistics(stats *rehearsal.Statistics, issues []balance.Issue) {
	w.line("%s  %d runs, seed %d", w.heading.Render("Rehearsal"), stats.RunCount, stats.Seed)

	w.section("Endings")
	ids := stats.EndingIDs()
	idWidth := 8
	for _, id := range ids {
		idWidth = max(idWidth, len(id))
	}
	for _, id := range stats.Secrets {
		idWidth = max(idWidth, len(id))
	}
	for _, id := range ids {
		share := stats.Share(id)
		style := w.good
		if stats.EndingCounts[id] == 0 {
			style = w.bad
		}
		w.line("  %-*s %s %s %s", idWidth, id, style.Render(bar(share)), percent(share),
			w.muted.Render(w.Number(stats.EndingCounts[id])))
	}
	w.line("  %-*s %s %s", idWidth, "dead end", w.bad.Render(bar(stats.DeadEndRate())), percent(stats.DeadEndRate()))
	if stats.Timeouts > 0 {
		w.line("  %-*s %s %s", idWidth, "timeout", w.warn.Render(bar(stats.TimeoutRate())), percent(stats.TimeoutRate()))
	}
	if stats.Failures > 0 {
		w.line("  %-*s %s %s", idWidth, "failed", w.bad.Render(bar(stats.FailureRate())), percent(stats.FailureRate()))
	}

	w.section("Distribution")
	w.line("  entropy            %.3f bits", stats.Entropy())
	w.line("  effective endings  %.2f", stats.EffectiveEndings())
	w.line("  mean turns         %.2f", stats.MeanTurns())
	if rate, ok := stats.BlockingRate(); ok {
		w.line("  late blocking      %s of %d arrivals", strings.TrimSpace(percent(rate)), stats.LateArrivals)
	} else {
		w.line("  late blocking      %s", w.muted.Render("no late-stage arrivals"))
	}

	if len(stats.Secrets) > 0 {
		w.section("Secret Reachability")
		reached := 0
		for _, id := range stats.Secrets {
			hits := stats.SecretHits[id]
			style := w.good
			if hits == 0 {
				style = w.bad
			} else {
				reached++
			}
			w.line("  %-*s %s %s %s", idWidth, id, style.Render(bar(stats.SecretRate(id))), percent(stats.SecretRate(id)),
				w.muted.Render(w.Number(hits)))
		}
		if reached == 0 {
			w.line("  %s", w.muted.Render("no secret is reachable"))
		}
	}

	if len(stats.Properties) > 0 {
		w.section("Properties")
		for _, p := range stats.Properties {
			w.line("  %-24s mean %+.3f  sd %.3f", p.Key.String(), p.Mean(stats.RunCount), p.StdDev(stats.RunCount))
		}
	}

	if len(stats.FailureSamples) > 0 {
		w.section("Script failures")
		for _, s := range stats.FailureSamples {
			w.wrapped("- "+s, 2)
		}
	}

	w.Issues(issues)
}

// Issues renders an issue list, or a balanced notice when it is empty
func (w *Writer) Issues(issues []balance.Issue) {
	w.section("Issues")
	if len(issues) == 0 {
		fmt.Fprintln(w.out, "  "+w.good.Render("balanced: every metric is within target"))
		return
	}
	for _, issue := range issues {
		fmt.Fprintln(w.out, "  "+w.warn.Render(w.KindLabel(issue.Kind)))
		w.wrapped(issue.String(), 4)
	}
}

// Session renders a balance session iteration by iteration
func (w *Writer) Session(r *tuner.Report) {
	w.line("%s  %s", w.heading.Render("Session"), r.SessionID.String())
	for _, it := range r.Iterations {
		w.Iteration(it)
	}
	w.Outcome(r)
}

// Outcome renders how a session ended
func (w *Writer) Outcome(r *tuner.Report) {
	w.section("Outcome")
	for _, adj := range r.Preflight {
		w.wrapped("→ "+adj.String(), 2)
	}
	w.line("  %s after %d iteration(s)", w.outcome(r.Outcome), len(r.Iterations))
	if n := len(r.FinalIssues()); n > 0 && r.Outcome != tuner.Balanced {
		w.line("  %d issue(s) remain", n)
	}
}

// Iteration renders one simulate, analyze, tune round
func (w *Writer) Iteration(it tuner.Iteration) {
	w.section(fmt.Sprintf("Iteration %d", it.Number))
	if it.Stats != nil {
		w.line("  seed %d  dead ends %s  effective endings %.2f",
			it.Seed, strings.TrimSpace(percent(it.Stats.DeadEndRate())), it.Stats.EffectiveEndings())
	}
	for _, issue := range it.Issues {
		w.wrapped("! "+issue.String(), 2)
	}
	for _, adj := range it.Adjustments {
		w.wrapped("→ "+adj.String(), 2)
	}
}

func (w *Writer) outcome(o tuner.Outcome) string {
	label := w.title.String(string(o))
	switch o {
	case tuner.Balanced:
		return w.good.Render(label)
	case tuner.Stalled:
		return w.warn.Render(label)
	default:
		return w.bad.Render(label)
	}
}

// Check renders consistency check findings
func (w *Writer) Check(issues []storyworld.Issue) {
	if len(issues) == 0 {
		fmt.Fprintln(w.out, w.good.Render("no problems found"))
		return
	}
	for _, issue := range issues {
		style := w.warn
		if issue.Severity == storyworld.SeverityError {
			style = w.bad
		}
		fmt.Fprintln(w.out, style.Render(string(issue.Severity))+" "+w.muted.Render(issue.Code))
		w.wrapped(issue.Message, 2)
	}
}

// History renders a session listing
func (w *Writer) History(list []history.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(w.out, w.muted.Render("no sessions recorded"))
		return
	}
	for _, s := range list {
		changed := ""
		if s.Changed {
			changed = w.muted.Render(" (document changed)")
		}
		w.line("%s  %s  %-9s %d iter  %d issue(s)  %s%s",
			s.FinishedAt.Local().Format("2006-01-02 15:04"), s.SessionID.String()[:8],
			w.outcome(s.Outcome), s.Iterations, s.Issues, s.Path, changed)
	}
}

// Record renders one stored session
func (w *Writer) Record(r *history.Record) {
	w.line("%s  %s", w.heading.Render("Session"), r.SessionID.String())
	w.line("  path      %s", r.Path)
	w.line("  runs      %d, seed %d", r.RunCount, r.Seed)
	w.line("  outcome   %s after %d iteration(s)", w.outcome(r.Outcome), r.Iterations)
	w.line("  finished  %s (%s)", r.FinishedAt.Local().Format("2006-01-02 15:04:05"), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	w.line("  before    %s", r.HashBefore)
	w.line("  after     %s", r.HashAfter)
	w.Issues(r.FinalIssues)
}
