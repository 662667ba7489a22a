package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/developingchet/staywindow/internal/dayindex"
	"github.com/developingchet/staywindow/internal/simulate"
	"github.com/developingchet/staywindow/internal/tracker"
	"github.com/developingchet/staywindow/internal/trip"
)

// withApp opens the app for the duration of fn.
func withApp(g *globalFlags, fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := openApp(ctx, g, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// dayFlag parses a YYYY-MM-DD flag value; empty means today.
func dayFlag(name, value string) (dayindex.Day, error) {
	if value == "" {
		return tracker.Today(clock), nil
	}
	d, err := dayindex.Parse(value)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

// tripIndex converts a 1-based position from `trips list` to a set index.
func tripIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("trip number must be a positive integer, got %q", arg)
	}
	return n - 1, nil
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show days used, days remaining and the compliance status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := dayFlag("ref", ref)
			if err != nil {
				return err
			}
			return withApp(g, func(ctx context.Context, a *app) error {
				snap, err := a.tracker.Snapshot(ctx, day)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g, snap, func(w io.Writer) { printSnapshot(w, snap) })
			})
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "reference day YYYY-MM-DD (default today)")
	return cmd
}

func newPlanCmd(g *globalFlags) *cobra.Command {
	var entry string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how long a stay starting on --entry may last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := dayFlag("entry", entry)
			if err != nil {
				return err
			}
			return withApp(g, func(ctx context.Context, a *app) error {
				plan, err := a.tracker.Plan(ctx, day)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g, plan, func(w io.Writer) { printPlan(w, plan) })
			})
		},
	}
	cmd.Flags().StringVar(&entry, "entry", "", "prospective entry day YYYY-MM-DD (default today)")
	return cmd
}

type nextEntryResult struct {
	From          dayindex.Day  `json:"from"`
	NextSafeEntry *dayindex.Day `json:"next_safe_entry,omitempty"`
	Exhausted     bool          `json:"exhausted,omitempty"`
}

func newNextEntryCmd(g *globalFlags) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "next-entry",
		Short: "Show the earliest day a one-day stay is compliant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := dayFlag("from", from)
			if err != nil {
				return err
			}
			return withApp(g, func(ctx context.Context, a *app) error {
				res := nextEntryResult{From: day}
				next, searchErr := a.tracker.NextSafeEntry(ctx, day)
				switch {
				case errors.Is(searchErr, simulate.ErrBoundExhausted):
					res.Exhausted = true
				case searchErr != nil:
					return searchErr
				default:
					res.NextSafeEntry = &next
				}
				if err := render(cmd.OutOrStdout(), g, res, func(w io.Writer) { printNextEntry(w, res) }); err != nil {
					return err
				}
				// Exhaustion still exits non-zero after printing.
				return searchErr
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first candidate day YYYY-MM-DD (default today)")
	return cmd
}

func newTripsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trips",
		Short: "List and edit the recorded trips",
	}
	cmd.AddCommand(
		newTripsListCmd(g),
		newTripsAddCmd(g),
		newTripsEditCmd(g),
		newTripsDeleteCmd(g),
		newTripsImportCmd(g),
		newTripsExportCmd(g),
	)
	return cmd
}

func newTripsListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List trips in ascending order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(g, func(ctx context.Context, a *app) error {
				s, err := a.tracker.Trips(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g, s.Raw(), func(w io.Writer) { printTrips(w, s) })
			})
		},
	}
}

// intervalFlags reads --entry with either --exit or --days.
type intervalFlags struct {
	entry, exit string
	days        int
}

func (f *intervalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.entry, "entry", "", "entry day YYYY-MM-DD")
	cmd.Flags().StringVar(&f.exit, "exit", "", "exit day YYYY-MM-DD")
	cmd.Flags().IntVar(&f.days, "days", 0, "stay length in days, counting the entry day (instead of --exit)")
	_ = cmd.MarkFlagRequired("entry")
	cmd.MarkFlagsMutuallyExclusive("exit", "days")
}

func (f *intervalFlags) interval() (trip.Interval, error) {
	entry, err := dayindex.Parse(f.entry)
	if err != nil {
		return trip.Interval{}, fmt.Errorf("--entry: %w", err)
	}
	switch {
	case f.days > 0:
		return trip.FromLength(entry, f.days), nil
	case f.days < 0:
		return trip.Interval{}, fmt.Errorf("--days must be positive, got %d", f.days)
	case f.exit == "":
		return trip.Interval{}, errors.New("one of --exit or --days is required")
	}
	exit, err := dayindex.Parse(f.exit)
	if err != nil {
		return trip.Interval{}, fmt.Errorf("--exit: %w", err)
	}
	return trip.Interval{Entry: entry, Exit: exit}, nil
}

func newTripsAddCmd(g *globalFlags) *cobra.Command {
	f := &intervalFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a trip; overlapping or adjacent trips are merged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			iv, err := f.interval()
			if err != nil {
				return err
			}
			return withApp(g, func(ctx context.Context, a *app) error {
				s, err := a.tracker.AddTrip(ctx, iv)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g, s.Raw(), func(w io.Writer) { printTrips(w, s) })
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newTripsEditCmd(g *globalFlags) *cobra.Command {
	f := &intervalFlags{}
	cmd := &cobra.Command{
		Use:   "edit N",
		Short: "Replace trip number N (as shown by `trips list`)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := tripIndex(args[0])
			if err != nil {
				return err
			}
			iv, err := f.interval()
			if err != nil {
				return err
			}
			return withApp(g, func(ctx context.Context, a *app) error {
				s, err := a.tracker.EditTrip(ctx, i, iv)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g, s.Raw(), func(w io.Writer) { printTrips(w, s) })
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newTripsDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete N",
		Aliases: []string{"rm"},
		Short:   "Delete trip number N (as shown by `trips list`)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := tripIndex(args[0])
			if err != nil {
				return err
			}
			return withApp(g, func(ctx context.Context, a *app) error {
				s, err := a.tracker.DeleteTrip(ctx, i)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g, s.Raw(), func(w io.Writer) { printTrips(w, s) })
			})
		},
	}
}

// tripFormat picks json or csv from an explicit flag or the file extension.
func tripFormat(flag, path string) (string, error) {
	format := strings.ToLower(flag)
	if format == "" {
		format = "json"
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			format = "csv"
		}
	}
	if format != "json" && format != "csv" {
		return "", fmt.Errorf("--format must be json or csv, got %q", flag)
	}
	return format, nil
}

type importResult struct {
	Trips   []trip.Raw `json:"trips"`
	Skipped []string   `json:"skipped"`
}

func newTripsImportCmd(g *globalFlags) *cobra.Command {
	var (
		format  string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import trips from a JSON or CSV file (- for stdin)",
		Long: `Import trips from a JSON array of {"entry","exit"} objects or from CSV rows
of entry,exit. A payload of the wrong shape is rejected as a whole; items
whose dates do not parse are skipped and reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			fmtName, err := tripFormat(format, path)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				r = f
			}

			decode := trip.DecodeJSON
			if fmtName == "csv" {
				decode = trip.DecodeCSV
			}
			raw, err := decode(r)
			if err != nil {
				return err
			}

			return withApp(g, func(ctx context.Context, a *app) error {
				s, skipped, err := a.tracker.ImportTrips(ctx, raw, replace)
				if err != nil {
					return err
				}
				res := importResult{Trips: s.Raw(), Skipped: make([]string, 0, len(skipped))}
				for i := range skipped {
					res.Skipped = append(res.Skipped, skipped[i].Error())
				}
				return render(cmd.OutOrStdout(), g, res, func(w io.Writer) { printImport(w, s, skipped) })
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or csv (default from the file extension)")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace the stored trips instead of merging")
	return cmd
}

func newTripsExportCmd(g *globalFlags) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trips as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtName, err := tripFormat(format, out)
			if err != nil {
				return err
			}
			return withApp(g, func(ctx context.Context, a *app) error {
				s, err := a.tracker.Trips(ctx)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
					if err != nil {
						return fmt.Errorf("create export file: %w", err)
					}
					defer f.Close()
					w = f
				}

				if fmtName == "csv" {
					return trip.EncodeCSV(w, s)
				}
				return trip.EncodeJSON(w, s)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or csv (default from --out, else json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to FILE instead of stdout")
	return cmd
}
