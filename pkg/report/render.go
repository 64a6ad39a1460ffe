package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/srodi/framelens/pkg/advisor"
	"github.com/srodi/framelens/pkg/monitor"
	"github.com/srodi/framelens/pkg/types"
)

// Options controls Render.
type Options struct {
	Interval   time.Duration
	Thresholds Thresholds
	// MaxServers limits the resolved endpoints listed; zero lists all.
	MaxServers int
}

// Render writes the single-view report of one poll.
func Render(w io.Writer, res monitor.Result, opts Options) error {
	ew := &errWriter{w: w}
	ew.printf("framelens (press Ctrl+C to exit)\n")
	ew.printf("Updated: %s | Interval: %v\n", res.Time.Format(time.RFC3339), opts.Interval)
	ew.printf("Process: %s (pid %d)\n\n", res.Name, res.PID)

	if res.Process == nil {
		ew.printf("[!] No data: process %d is not available\n", res.PID)
		return ew.err
	}

	if v := res.Verdict; v != nil && v.Exists {
		ew.printf("[!] Bottleneck: %s - %s\n", v.Component, v.Description)
		ew.printf("   Reason: %s\n\n", FocusSummary(*v, *res.Process, res.System))
	} else if v != nil {
		ew.printf("[ok] %s\n\n", v.Description)
	}

	ew.printf("[Metrics]\n")
	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
	for _, row := range BuildMetricRows(res, opts.Thresholds) {
		mark := ""
		if row.Warn {
			mark = "!"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Label, row.Value, mark)
	}
	tw.Flush()

	if warnings := Warnings(res, opts.Thresholds); len(warnings) > 0 {
		ew.printf("\n[Warnings]\n")
		for _, msg := range warnings {
			ew.printf("- %s\n", msg)
		}
	}

	ew.printf("\n[Frame statistics]\n")
	if f := res.Frames; f == nil {
		ew.printf("No frame samples yet\n")
	} else {
		tw = tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SAMPLES\tAVG(ms)\t1% LOW(ms)\t0.1% LOW(ms)\tVARIANCE\tSTUTTERS\tPACING")
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f\t%.3f\t%d\t%s\n",
			f.Samples, f.AvgFrameTime, f.Low1, f.Low01, f.Variance, f.Stutters, f.Pacing)
		tw.Flush()
	}

	ew.printf("\n[Network]\n")
	if n := res.Network; n == nil {
		ew.printf("Network data unavailable\n")
	} else {
		ew.printf("Sent %s | Received %s | Connections %d\n",
			FormatBytes(n.BytesSent), FormatBytes(n.BytesRecv), n.ActiveConnections)
		servers := n.Servers
		if opts.MaxServers > 0 && len(servers) > opts.MaxServers {
			servers = servers[:opts.MaxServers]
		}
		if len(servers) > 0 {
			tw = tabwriter.NewWriter(ew, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "IP\tPORT\tHOST")
			for _, s := range servers {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.IP, s.Port, s.Hostname)
			}
			tw.Flush()
		}
	}

	if len(res.Tips) > 0 {
		ew.printf("\n[Tips]\n")
		for _, tip := range res.Tips {
			ew.printf("%s\n", tip)
		}
	}

	if profile, ok := advisor.ProfileFor(res.Name); ok {
		ew.printf("\n[Recommended settings]\n")
		renderProfile(ew, profile)
	}
	return ew.err
}

func renderProfile(w io.Writer, p advisor.Profile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, key := range sortedKeys(p.NvidiaSettings) {
		fmt.Fprintf(tw, "NVIDIA\t%s\t%s\n", key, p.NvidiaSettings[key])
	}
	for _, key := range sortedKeys(p.WindowsSettings) {
		state := "off"
		if p.WindowsSettings[key] {
			state = "on"
		}
		fmt.Fprintf(tw, "Windows\t%s\t%s\n", key, state)
	}
	tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RenderGames writes the list of monitorable processes.
func RenderGames(w io.Writer, games []types.ProcessRecord) error {
	if len(games) == 0 {
		_, err := fmt.Fprintln(w, "No running games found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tNAME\tMATCH\tPATH")
	for _, g := range games {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", g.PID, g.Name, classificationLabel(g.Classification), g.Path)
	}
	return tw.Flush()
}

// errWriter keeps the first write error so rendering reads straight through.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}
