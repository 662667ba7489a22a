package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/developingchet/staywindow/internal/compliance"
	"github.com/developingchet/staywindow/internal/simulate"
	"github.com/developingchet/staywindow/internal/tracker"
	"github.com/developingchet/staywindow/internal/trip"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
)

// render writes v as indented JSON under --json, otherwise calls text.
func render(w io.Writer, g *globalFlags, v any, text func(io.Writer)) error {
	if g.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func paintStatus(s compliance.Status) string {
	label := strings.ToUpper(string(s))
	switch s {
	case compliance.StatusSafe:
		return green.Sprint(label)
	case compliance.StatusCaution:
		return cyan.Sprint(label)
	case compliance.StatusWarning:
		return yellow.Sprint(label)
	case compliance.StatusOverstay:
		return red.Sprint(label)
	default:
		return label
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func printSnapshot(w io.Writer, s tracker.Snapshot) {
	fmt.Fprintf(w, "Traveller:  %s\n", s.Traveller)
	fmt.Fprintf(w, "Window:     %s .. %s (%s)\n", s.Window.Start, s.Window.End, s.Rule)
	fmt.Fprintf(w, "Used:       %s\n", plural(s.Used, "day"))
	fmt.Fprintf(w, "Remaining:  %s\n", plural(s.Remaining, "day"))
	fmt.Fprintf(w, "Status:     %s\n", paintStatus(s.Status))
}

func printPlan(w io.Writer, p simulate.Plan) {
	fmt.Fprintf(w, "Entry:          %s\n", p.Entry)
	if p.Capped {
		fmt.Fprintf(w, "Max stay:       %s\n",
			green.Sprintf("no limit reached within %d days", simulate.MaxStayIterations))
		return
	}
	if p.LatestExit == nil {
		fmt.Fprintf(w, "Max stay:       %s\n", red.Sprint("no compliant stay"))
		switch {
		case p.NextSafeEntry != nil:
			fmt.Fprintf(w, "Next entry:     %s\n", bold.Sprint(p.NextSafeEntry.String()))
		case p.Exhausted:
			fmt.Fprintf(w, "Next entry:     %s\n",
				red.Sprintf("none within %d days", simulate.NextEntryIterations))
		}
		return
	}
	fmt.Fprintf(w, "Max stay:       %s\n", green.Sprint(plural(p.MaxStayDays, "day")))
	fmt.Fprintf(w, "Latest exit:    %s\n", bold.Sprint(p.LatestExit.String()))
}

func printNextEntry(w io.Writer, r nextEntryResult) {
	if r.Exhausted {
		fmt.Fprintf(w, "%s no compliant entry day within %d days of %s\n",
			red.Sprint("✗"), simulate.NextEntryIterations, r.From)
		return
	}
	fmt.Fprintf(w, "Next safe entry: %s\n", bold.Sprint(r.NextSafeEntry.String()))
}

func printTrips(w io.Writer, s trip.Set) {
	if len(s) == 0 {
		fmt.Fprintln(w, "No trips recorded.")
		return
	}
	fmt.Fprintf(w, "%3s  %-10s  %-10s  %5s\n", "#", "ENTRY", "EXIT", "DAYS")
	for i, iv := range s {
		fmt.Fprintf(w, "%3d  %-10s  %-10s  %5d\n", i+1, iv.Entry, iv.Exit, iv.Days())
	}
	fmt.Fprintf(w, "%d trip(s), %s in total\n", len(s), plural(s.TotalDays(), "day"))
}

func printImport(w io.Writer, s trip.Set, skipped []trip.SkipReason) {
	for i := range skipped {
		fmt.Fprintf(w, "%s skipped %s\n", yellow.Sprint("!"), skipped[i].Error())
	}
	printTrips(w, s)
}
