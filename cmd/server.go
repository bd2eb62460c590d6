package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/booking"
	"github.com/example/seat-scheduler/internal/captcha"
	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/db"
	"github.com/example/seat-scheduler/internal/logging"
	"github.com/example/seat-scheduler/internal/migrate"
	"github.com/example/seat-scheduler/internal/portal"
	"github.com/example/seat-scheduler/internal/scheduler"
	"github.com/example/seat-scheduler/internal/store"
	"github.com/example/seat-scheduler/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the booking scheduler + web dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequirePortal(); err != nil {
				return err
			}
			if err := cfg.RequireDashboard(); err != nil {
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

			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}

			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			st := store.New(d)

			// scheduler
			sched := scheduler.New(st, newRunner(cfg, log), scheduler.Options{
				Location: cfg.Timezone,
				Workers:  cfg.Workers,
				Defaults: scheduler.Defaults{Seats: cfg.PreferredSeats, GroupRooms: cfg.PreferredGroupRooms},
				Logger:   log,
			})
			go func() {
				if err := sched.Run(ctx); err != nil {
					log.Error().Err(err).Msg("scheduler exited")
					cancel()
				}
			}()

			// web
			sessions := web.NewSessions(cfg.CookieHashKey, cfg.CookieBlockKey, cfg.DashboardUser, cfg.DashboardPassHash)
			ws := web.NewServer(sessions, st, sched, cfg.Timezone, log)
			return web.Start(ctx, cfg.ListenAddr, ws.Routes(), log)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

// newRunner wires the booking pipeline. Every run builds a fresh portal
// session; the solver is shared, it spawns a tesseract client per solve.
func newRunner(cfg config.Config, log zerolog.Logger) *booking.Runner {
	solver := captcha.NewTesseract()
	return &booking.Runner{
		NewBroker: func(context.Context) (booking.Broker, error) {
			return portal.NewSession(portal.Options{
				BaseURL: cfg.PortalURL,
				Credentials: portal.Credentials{
					Username:      cfg.SSOUsername,
					Password:      cfg.SSOPassword,
					LibraryNumber: cfg.LibraryNumber,
				},
				Solver:            solver,
				Timeout:           cfg.HTTPTimeout,
				MaxCaptchaRetries: cfg.MaxCaptchaRetries,
				GroupRoomKeyword:  cfg.GroupRoomKeyword,
				Logger:            log,
			})
		},
		Retries: cfg.BookingRetries,
		Delay:   cfg.RetryDelay,
		Logger:  log,
	}
}
