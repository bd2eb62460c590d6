package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/booking"
	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/logging"
	"github.com/example/seat-scheduler/internal/portal"
)

func newBookCmd() *cobra.Command {
	var (
		libraryID  int
		date       string
		dateOffset int
		timeSlot   string
		groupRoom  bool
		section    string
		seats      []int
	)

	c := &cobra.Command{
		Use:   "book",
		Short: "Book a seat once, right now (no database, no scheduling)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequirePortal(); err != nil {
				return err
			}
			log := logging.Setup()

			var target time.Time
			if cmd.Flags().Changed("date") {
				target, err = time.ParseInLocation("02.01.2006", date, cfg.Timezone)
				if err != nil {
					return fmt.Errorf("invalid --date (want DD.MM.YYYY): %w", err)
				}
			} else {
				target = time.Now().In(cfg.Timezone).AddDate(0, 0, dateOffset)
			}

			slot, err := portal.ParseTimeRange(timeSlot)
			if err != nil {
				return err
			}

			if len(seats) == 0 {
				if groupRoom {
					seats = cfg.PreferredGroupRooms
				} else {
					seats = cfg.PreferredSeats
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out, err := newRunner(cfg, log).Run(ctx, booking.Request{
				LibraryID:        libraryID,
				Date:             target,
				Slot:             slot,
				Kind:             portal.KindForGroup(groupRoom),
				PreferredSection: section,
				PreferredNumbers: seats,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "booked %s after %d attempt(s)\n", out.SeatDesc, out.Attempts)
			for _, line := range out.Details {
				fmt.Fprintf(os.Stdout, "  %s\n", line)
			}
			return nil
		},
	}

	c.Flags().IntVar(&libraryID, "library", 1, "library id ("+portal.LibrarySummary()+")")
	c.Flags().StringVar(&date, "date", "", "target date DD.MM.YYYY")
	c.Flags().IntVar(&dateOffset, "date-offset", 2, "book the slot N days from today")
	c.Flags().StringVar(&timeSlot, "time", "", "time slot HH:MM-HH:MM")
	c.Flags().BoolVar(&groupRoom, "group-room", false, "book a group work room instead of a reading room seat")
	c.Flags().StringVar(&section, "section", "", "preferred section, matched against the listing headings")
	c.Flags().IntSliceVar(&seats, "seats", nil, "preferred seat numbers, tried in order")

	c.MarkFlagsMutuallyExclusive("date", "date-offset")
	_ = c.MarkFlagRequired("time")
	return c
}
