// Package output renders run progress and summaries for the terminal and
// exports summaries as JSON.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/wesleyorama2/surge/internal/engine"
	"github.com/wesleyorama2/surge/internal/schedule"
	"github.com/wesleyorama2/surge/internal/transport"
)

const ruleWidth = 56

// Options configures a Console.
type Options struct {
	// NoColor disables colors even on a terminal.
	NoColor bool
	// Interactive rewrites the progress line in place. When false each
	// update is printed on its own line.
	Interactive bool
}

// Console writes human-readable progress and summaries.
type Console struct {
	w           io.Writer
	scheme      *ColorScheme
	noColor     bool
	interactive bool
	lastLineLen int
}

// NewConsole creates a console writing to w.
func NewConsole(w io.Writer, opts Options) *Console {
	c := &Console{
		w:           w,
		noColor:     opts.NoColor,
		interactive: opts.Interactive,
	}
	if c.noColor {
		c.scheme = NoColorScheme()
	} else {
		c.scheme = DefaultColorScheme()
		c.scheme.enable()
	}
	return c
}

// NewConsoleAuto creates a console for w, detecting terminal capabilities.
func NewConsoleAuto(w io.Writer, noColor bool) *Console {
	tty := IsTerminal(w)
	return NewConsole(w, Options{
		NoColor:     noColor || !tty || !supportsColors(),
		Interactive: tty,
	})
}

// PrintHeader prints the banner shown before a run starts.
func (c *Console) PrintHeader(name string, sched *schedule.Schedule) {
	s := c.scheme
	fmt.Fprintln(c.w)
	fmt.Fprintf(c.w, "%s %s\n", s.Highlight.Sprint("surge"), s.Title.Sprint(name))
	fmt.Fprintln(c.w, s.Rule.Sprint(strings.Repeat("━", ruleWidth)))
	if sched != nil {
		fmt.Fprintf(c.w, "%s %s, peak %d VUs\n",
			s.Label.Sprint("Schedule:"), formatDuration(sched.TotalDuration()), sched.MaxTarget())
		for i, st := range sched.Stages() {
			fmt.Fprintf(c.w, "  %s %-12s %8s → %d VUs\n",
				s.Dim.Sprintf("%d.", i+1), st.Name, formatDuration(st.Duration), st.Target)
		}
	}
	fmt.Fprintln(c.w)
}

// Update prints a progress line for st.
func (c *Console) Update(st engine.Status) {
	line := c.progressLine(st)
	if !c.interactive {
		fmt.Fprintln(c.w, line)
		return
	}
	pad := ""
	if n := visibleLen(line); n < c.lastLineLen {
		pad = strings.Repeat(" ", c.lastLineLen-n)
	}
	c.lastLineLen = visibleLen(line)
	fmt.Fprintf(c.w, "\r%s%s", line, pad)
}

// Finish ends an interactive progress line.
func (c *Console) Finish() {
	if c.interactive && c.lastLineLen > 0 {
		fmt.Fprintln(c.w)
		c.lastLineLen = 0
	}
}

func (c *Console) progressLine(st engine.Status) string {
	s := c.scheme
	var b strings.Builder
	fmt.Fprintf(&b, "[%s/%s] %s", formatDuration(st.Elapsed), formatDuration(st.Total), progressBar(st.Progress, 20))
	fmt.Fprintf(&b, " %s", s.Value.Sprintf("%-9s", st.Phase))
	fmt.Fprintf(&b, " VUs %s/%d", s.Value.Sprint(st.Active), st.Target)
	if st.Draining > 0 {
		fmt.Fprintf(&b, " %s", s.Dim.Sprintf("(+%d draining)", st.Draining))
	}
	if m := st.Metrics; m != nil {
		fmt.Fprintf(&b, " | reqs %s", formatNumber(m.Requests))
		fmt.Fprintf(&b, " | %.1f/s", m.RPS)
		fmt.Fprintf(&b, " | p95 %s", formatDurationShort(m.Latency.P95))
		if m.FailedRequests > 0 {
			fmt.Fprintf(&b, " | %s", s.rate(m.RequestFailRate, 0.01, 0.05).Sprintf("err %s", formatPercent(m.RequestFailRate)))
		}
		if m.ChecksFailed > 0 {
			fmt.Fprintf(&b, " | %s", s.Warn.Sprintf("checks ✗ %s", formatNumber(m.ChecksFailed)))
		}
	}
	return b.String()
}

func progressBar(p float64, width int) string {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	filled := int(p * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// PrintSummary prints the final report for a run.
func (c *Console) PrintSummary(sum *engine.Summary) {
	s := c.scheme
	c.Finish()

	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, s.Rule.Sprint(strings.Repeat("━", ruleWidth)))
	verdict := s.Success.Sprint("PASSED")
	if !sum.Passed {
		verdict = s.Error.Sprint("FAILED")
	}
	if sum.Interrupted {
		verdict += " " + s.Warn.Sprint("(interrupted)")
	}
	fmt.Fprintf(c.w, "%s  %s\n", s.Title.Sprint(sum.Name), verdict)
	fmt.Fprintln(c.w, s.Rule.Sprint(strings.Repeat("━", ruleWidth)))

	c.row("Run ID", sum.RunID)
	c.row("Duration", formatDuration(sum.Duration))
	c.row("Peak VUs", fmt.Sprint(sum.PeakVUs))

	m := sum.Metrics
	if m == nil {
		fmt.Fprintln(c.w)
		return
	}

	c.section("Iterations")
	c.row("Completed", fmt.Sprintf("%s (%.1f/s)", formatNumber(m.Iterations), m.IterationsPerSec))
	c.row("Mean duration", formatDurationShort(m.IterationDurationMean))

	c.section("Requests")
	c.row("Total", fmt.Sprintf("%s (%.1f/s)", formatNumber(m.Requests), m.RPS))
	c.row("Data received", formatBytes(m.Bytes))
	failed := fmt.Sprintf("%s (%s)", formatNumber(m.FailedRequests), formatPercent(m.RequestFailRate))
	c.row("Failed", s.rate(m.RequestFailRate, 0.01, 0.05).Sprint(failed))
	for _, kind := range sortedKinds(m.ErrorsByKind) {
		fmt.Fprintf(c.w, "    %-18s %s\n", s.Dim.Sprint(string(kind)), formatNumber(m.ErrorsByKind[kind]))
	}
	if len(m.StatusCodes) > 0 {
		codes := make([]int, 0, len(m.StatusCodes))
		for code := range m.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, c.statusColor(code).Sprintf("%d", code)+"×"+formatNumber(m.StatusCodes[code]))
		}
		c.row("Status codes", strings.Join(parts, "  "))
	}

	if len(m.Checks) > 0 {
		c.section("Checks")
		total := m.ChecksPassed + m.ChecksFailed
		passRate := fmt.Sprintf("%s of %s passed (%s)", formatNumber(m.ChecksPassed), formatNumber(total), formatPercent(m.CheckPassRate))
		if m.ChecksFailed > 0 {
			c.row("Pass rate", s.Warn.Sprint(passRate))
		} else {
			c.row("Pass rate", s.Success.Sprint(passRate))
		}
		for _, name := range m.CheckNames() {
			cs := m.Checks[name]
			icon := SuccessIcon(c.noColor)
			if cs.Fails > 0 {
				icon = ErrorIcon(c.noColor)
			}
			fmt.Fprintf(c.w, "    %s %s %s\n", icon, name,
				s.Dim.Sprintf("(%s ✓ / %s ✗)", formatNumber(cs.Passes), formatNumber(cs.Fails)))
		}
	}

	if m.Latency.Count > 0 {
		c.section("Latency Distribution")
		l := m.Latency
		fmt.Fprintf(c.w, "  min %s  avg %s  max %s\n",
			s.Value.Sprint(formatDurationShort(l.Min)), s.Value.Sprint(formatDurationShort(l.Mean)), s.Value.Sprint(formatDurationShort(l.Max)))
		fmt.Fprintf(c.w, "  p50 %s  p90 %s  p95 %s  p99 %s\n",
			s.Value.Sprint(formatDurationShort(l.P50)), s.Value.Sprint(formatDurationShort(l.P90)),
			s.Value.Sprint(formatDurationShort(l.P95)), s.Value.Sprint(formatDurationShort(l.P99)))
		if len(m.RequestLatency) > 1 {
			names := make([]string, 0, len(m.RequestLatency))
			for name := range m.RequestLatency {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				rl := m.RequestLatency[name]
				fmt.Fprintf(c.w, "    %-20s p50 %-8s p95 %-8s n=%s\n", name,
					formatDurationShort(rl.P50), formatDurationShort(rl.P95), formatNumber(rl.Count))
			}
		}
	}

	if m.Crashes > 0 || m.ForcedStops > 0 {
		c.section("Virtual Users")
		if m.Crashes > 0 {
			c.row("Crashed", s.Error.Sprint(formatNumber(m.Crashes)))
			reasons := make([]string, 0, len(m.CrashReasons))
			for r := range m.CrashReasons {
				reasons = append(reasons, r)
			}
			sort.Strings(reasons)
			for _, r := range reasons {
				fmt.Fprintf(c.w, "    %s %s\n", s.Dim.Sprintf("%d×", m.CrashReasons[r]), r)
			}
		}
		if m.ForcedStops > 0 {
			c.row("Forced stops", s.Warn.Sprint(formatNumber(m.ForcedStops)))
		}
	}

	if len(sum.Thresholds) > 0 {
		c.section("Thresholds")
		for _, t := range sum.Thresholds {
			icon := SuccessIcon(c.noColor)
			if !t.Passed {
				icon = ErrorIcon(c.noColor)
			}
			fmt.Fprintf(c.w, "  %s %s: %s %s\n", icon, t.Metric, t.Expression, s.Dim.Sprintf("(%s)", t.Value))
		}
	}
	fmt.Fprintln(c.w)
}

func (c *Console) section(title string) {
	fmt.Fprintf(c.w, "\n%s\n", c.scheme.Label.Sprint(title))
}

func (c *Console) row(label, value string) {
	fmt.Fprintf(c.w, "  %-16s %s\n", label+":", value)
}

func (c *Console) statusColor(code int) *color.Color {
	switch {
	case code >= 500:
		return c.scheme.Error
	case code >= 400:
		return c.scheme.Warn
	case code >= 300:
		return c.scheme.Value
	default:
		return c.scheme.Success
	}
}

func sortedKinds(m map[transport.ErrorKind]int64) []transport.ErrorKind {
	kinds := make([]transport.ErrorKind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// visibleLen returns the printed width of s, ignoring ANSI escapes.
func visibleLen(s string) int {
	return len([]rune(stripANSI(s)))
}

func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
