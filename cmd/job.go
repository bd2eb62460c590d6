package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/db"
	"github.com/example/seat-scheduler/internal/logging"
	"github.com/example/seat-scheduler/internal/migrate"
	"github.com/example/seat-scheduler/internal/scheduler"
	"github.com/example/seat-scheduler/internal/store"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage booking jobs (non-UI)",
	}
	cmd.AddCommand(newJobCreateCmd())
	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobDeleteCmd())
	cmd.AddCommand(newJobToggleCmd())
	cmd.AddCommand(newJobRunCmd())
	return cmd
}

func newJobCreateCmd() *cobra.Command {
	var (
		name       string
		libraryID  int
		timeSlot   string
		groupRoom  bool
		section    string
		seats      []int
		days       string
		dateOffset int
		at         string
		runAt      string
		targetDate string
		disabled   bool
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a recurring (--days) or one-shot (--run-at) booking job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := migrate.Up(ctx, d); err != nil {
				return err
			}

			j := store.Job{
				Name:             name,
				LibraryID:        libraryID,
				TimeSlot:         timeSlot,
				GroupRoom:        groupRoom,
				PreferredSection: section,
				PreferredSeats:   seats,
				Enabled:          !disabled,
			}

			if days != "" {
				clock, err := time.Parse("15:04", at)
				if err != nil {
					return fmt.Errorf("invalid --at (want HH:MM): %w", err)
				}
				j.Recurring = true
				j.CronDays = days
				j.DateOffset = dateOffset
				j.CronHour = clock.Hour()
				j.CronMinute = clock.Minute()
			} else {
				fireAt, err := time.ParseInLocation("2006-01-02 15:04", runAt, cfg.Timezone)
				if err != nil {
					return fmt.Errorf("invalid --run-at (want YYYY-MM-DD HH:MM): %w", err)
				}
				j.RunAt = &fireAt
				j.TargetDate = targetDate
			}

			if err := store.New(d).CreateJob(ctx, &j); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created job id=%d name=%q schedule=%q\n", j.ID, j.Name, describeJob(j))
			return nil
		},
	}

	c.Flags().StringVar(&name, "name", "", "job name")
	c.Flags().IntVar(&libraryID, "library", 1, "library id")
	c.Flags().StringVar(&timeSlot, "time", "", "time slot HH:MM-HH:MM")
	c.Flags().BoolVar(&groupRoom, "group-room", false, "book a group work room")
	c.Flags().StringVar(&section, "section", "", "preferred section")
	c.Flags().IntSliceVar(&seats, "seats", nil, "preferred seat numbers, tried in order")
	c.Flags().StringVar(&days, "days", "", "weekdays the seat is wanted, e.g. mon,wed,fri")
	c.Flags().IntVar(&dateOffset, "date-offset", 2, "book N days ahead of the trigger day")
	c.Flags().StringVar(&at, "at", "00:05", "trigger clock time HH:MM (recurring)")
	c.Flags().StringVar(&runAt, "run-at", "", "absolute trigger time YYYY-MM-DD HH:MM (one-shot)")
	c.Flags().StringVar(&targetDate, "target-date", "", "date to book DD.MM.YYYY (one-shot)")
	c.Flags().BoolVar(&disabled, "disabled", false, "create the job disabled")

	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("time")
	c.MarkFlagsOneRequired("days", "run-at")
	c.MarkFlagsMutuallyExclusive("days", "run-at")
	c.MarkFlagsRequiredTogether("run-at", "target-date")
	return c
}

func newJobListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			jobs, err := store.New(d).Jobs(ctx)
			if err != nil {
				return err
			}
			for _, j := range jobs {
				state := "enabled"
				if !j.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(os.Stdout, "id=%d name=%q library=%d slot=%s schedule=%q seats=%s %s\n",
					j.ID, j.Name, j.LibraryID, j.TimeSlot, describeJob(j), joinSeats(j.PreferredSeats), state)
			}
			return nil
		},
	}
}

func newJobDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := jobIDArg(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := store.New(d).DeleteJob(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "deleted job id=%d\n", id)
			return nil
		},
	}
}

func newJobToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Enable or disable a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := jobIDArg(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			enabled, err := store.New(d).ToggleJob(ctx, id)
			if err != nil {
				return err
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			fmt.Fprintf(os.Stdout, "job id=%d is now %s\n", id, state)
			return nil
		},
	}
}

func newJobRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Execute a job immediately, recording the result in the booking history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := jobIDArg(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequirePortal(); err != nil {
				return err
			}
			log := logging.Setup()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			// The scheduler is used here purely as the run orchestrator; its
			// cron runtime never starts.
			sched := scheduler.New(store.New(d), newRunner(cfg, log), scheduler.Options{
				Location: cfg.Timezone,
				Defaults: scheduler.Defaults{Seats: cfg.PreferredSeats, GroupRooms: cfg.PreferredGroupRooms},
				Logger:   log,
			})
			out, err := sched.RunJob(ctx, id, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "booked %s after %d attempt(s)\n", out.SeatDesc, out.Attempts)
			return nil
		},
	}
}

func describeJob(j store.Job) string {
	if j.Recurring {
		return fmt.Sprintf("%s at %02d:%02d, %d days ahead", j.CronDays, j.CronHour, j.CronMinute, j.DateOffset)
	}
	if j.RunAt == nil {
		return "once"
	}
	return fmt.Sprintf("once at %s for %s", j.RunAt.Format("2006-01-02 15:04"), j.TargetDate)
}

func joinSeats(seats []int) string {
	if len(seats) == 0 {
		return "-"
	}
	parts := make([]string, len(seats))
	for i, n := range seats {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func jobIDArg(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}
