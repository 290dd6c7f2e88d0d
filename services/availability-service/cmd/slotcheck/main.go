// Command slotcheck runs the availability resolver against an exported snapshot file,
// to answer "why is this slot not offered?" without touching the live service.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brightsmile/dentalbook/libs/config"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/availability"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/backend"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
	"github.com/spf13/cobra"
)

type clinicFlags struct {
	file           string
	timezone       string
	open           string
	close          string
	slotMinutes    int
	bookingMinutes int
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &clinicFlags{}
	root := &cobra.Command{
		Use:          "slotcheck",
		Short:        "Inspect dentist availability in an exported clinic snapshot",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.file, "file", "", "Snapshot JSON file (dentists, bookings, offHours)")
	root.PersistentFlags().StringVar(&flags.timezone, "timezone", "UTC", "Clinic IANA timezone")
	root.PersistentFlags().StringVar(&flags.open, "open", "09:00", "Opening time (HH:MM)")
	root.PersistentFlags().StringVar(&flags.close, "close", "17:00", "Closing time (HH:MM)")
	root.PersistentFlags().IntVar(&flags.slotMinutes, "slot-minutes", 60, "Slot length in minutes")
	root.PersistentFlags().IntVar(&flags.bookingMinutes, "booking-minutes", 60, "Length of bookings without a duration")
	_ = root.MarkPersistentFlagRequired("file")

	root.AddCommand(slotsCmd(flags))
	root.AddCommand(checkCmd(flags))
	return root
}

func slotsCmd(flags *clinicFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List free slots of a dentist (or all dentists) on a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			dentistID, _ := cmd.Flags().GetString("dentist")
			date, _ := cmd.Flags().GetString("date")

			resolver, snap, err := prepare(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			day, err := resolver.ParseDate(date)
			if err != nil {
				return fmt.Errorf("invalid --date %q: %w", date, err)
			}

			out := cmd.OutOrStdout()
			loc := resolver.Config().Location
			if dentistID == "all" {
				for _, d := range resolver.ListAllAvailableSlots(snap, day) {
					fmt.Fprintf(out, "%s:\n", d.DentistID)
					printSlots(out, d.Slots, loc, "  ")
				}
				return nil
			}
			if _, ok := snap.Dentist(dentistID); !ok {
				return fmt.Errorf("unknown dentist %q", dentistID)
			}
			printSlots(out, resolver.ListAvailableSlots(snap, dentistID, day), loc, "")
			return nil
		},
	}
	cmd.Flags().String("dentist", "", "Dentist id, or \"all\"")
	cmd.Flags().String("date", "", "Day (YYYY-MM-DD) in the clinic timezone")
	_ = cmd.MarkFlagRequired("dentist")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func checkCmd(flags *clinicFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Explain whether a candidate interval can be booked",
		RunE: func(cmd *cobra.Command, args []string) error {
			dentistID, _ := cmd.Flags().GetString("dentist")
			startRaw, _ := cmd.Flags().GetString("start")
			endRaw, _ := cmd.Flags().GetString("end")

			resolver, snap, err := prepare(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			start, err := time.Parse(time.RFC3339, startRaw)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			end, err := time.Parse(time.RFC3339, endRaw)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			verdict, err := resolver.CheckAvailability(snap, dentistID, availability.NewInterval(start, end))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if verdict.Available {
				fmt.Fprintln(out, "available")
				return nil
			}
			if verdict.RecordID != "" {
				fmt.Fprintf(out, "unavailable: %s (record %s)\n", verdict.Reason, verdict.RecordID)
				return nil
			}
			fmt.Fprintf(out, "unavailable: %s\n", verdict.Reason)
			return nil
		},
	}
	cmd.Flags().String("dentist", "", "Dentist id")
	cmd.Flags().String("start", "", "Candidate start (RFC3339)")
	cmd.Flags().String("end", "", "Candidate end (RFC3339)")
	_ = cmd.MarkFlagRequired("dentist")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// prepare loads the snapshot and builds a resolver. Rejected and malformed records are
// reported on errOut.
func prepare(flags *clinicFlags, errOut io.Writer) (*availability.Resolver, model.Snapshot, error) {
	open, err := config.ParseClock(flags.open)
	if err != nil {
		return nil, model.Snapshot{}, fmt.Errorf("--open: %w", err)
	}
	closing, err := config.ParseClock(flags.close)
	if err != nil {
		return nil, model.Snapshot{}, fmt.Errorf("--close: %w", err)
	}
	loc, err := time.LoadLocation(flags.timezone)
	if err != nil {
		return nil, model.Snapshot{}, fmt.Errorf("--timezone: %w", err)
	}

	f, err := os.Open(flags.file)
	if err != nil {
		return nil, model.Snapshot{}, err
	}
	defer f.Close()

	snap, rejects, err := backend.DecodeSnapshot(f)
	if err != nil {
		return nil, model.Snapshot{}, err
	}
	for _, r := range rejects {
		fmt.Fprintf(errOut, "rejected %s\n", r)
	}

	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn}))
	resolver := availability.NewResolver(availability.Config{
		Hours:           availability.OperatingHours{OpenMinute: open, CloseMinute: closing},
		SlotDuration:    time.Duration(flags.slotMinutes) * time.Minute,
		BookingDuration: time.Duration(flags.bookingMinutes) * time.Minute,
		Location:        loc,
	}, logger)
	return resolver, snap, nil
}

func printSlots(out io.Writer, slots []availability.Interval, loc *time.Location, indent string) {
	if len(slots) == 0 {
		fmt.Fprintf(out, "%s(no free slots)\n", indent)
		return
	}
	for _, s := range slots {
		fmt.Fprintf(out, "%s%s-%s\n", indent, s.Start.In(loc).Format("15:04"), s.End.In(loc).Format("15:04"))
	}
}
