package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"leadcal/backend/internal/app"
	"leadcal/backend/internal/config"
	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/seed"
	"leadcal/backend/internal/service/appointments"
	"leadcal/backend/internal/store/postgres"
	"leadcal/backend/migrations"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "leadcalctl"),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "leadcalctl",
		Short:         "Administer the lead appointment calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(migrateCmd(log))
	rootCmd.AddCommand(seedCmd(log))
	rootCmd.AddCommand(calendarCmd(log))
	rootCmd.AddCommand(statsCmd(log))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("command failed", slog.Any("err", err))
		os.Exit(1)
	}
}

// withApp loads config, opens the backends and closes them after fn.
func withApp(ctx context.Context, log *slog.Logger, fn func(a *app.App, cfg config.Config) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("backend close failed", slog.Any("err", err))
		}
	}()
	return fn(a, cfg)
}

func migrateCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), log, func(a *app.App, cfg config.Config) error {
				if a.DB == nil {
					return errors.New("migrate requires store.driver=postgres")
				}
				applied, err := postgres.Migrate(cmd.Context(), a.DB, migrations.FS)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
					return nil
				}
				for _, name := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", name)
				}
				return nil
			})
		},
	})
	return cmd
}

func seedCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake leads and appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			owners, _ := cmd.Flags().GetInt("owners")
			leadCount, _ := cmd.Flags().GetInt("leads")
			apptCount, _ := cmd.Flags().GetInt("appointments")
			seedValue, _ := cmd.Flags().GetUint64("seed")
			if owners < 1 || leadCount < 1 {
				return errors.New("--owners and --leads must be at least 1")
			}

			return withApp(cmd.Context(), log, func(a *app.App, cfg config.Config) error {
				writer, ok := a.Leads.(seed.LeadWriter)
				if !ok {
					return errors.New("configured store cannot insert leads")
				}

				f := gofakeit.New(seedValue)
				leads := seed.Leads(f, seed.Owners(f, owners), leadCount)
				if err := writer.InsertLeads(cmd.Context(), leads); err != nil {
					return fmt.Errorf("insert leads: %w", err)
				}
				log.Info("leads seeded", slog.Int("count", len(leads)))

				res, err := seed.Appointments(cmd.Context(), a.Service, f, leads, apptCount, 5, time.Now(), cfg.Location)
				if err != nil {
					return err
				}
				log.Info("appointments seeded", slog.Int("created", res.Created), slog.Int("conflicts", res.Conflicts))
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d leads and %d appointments (%d slot conflicts skipped).\n",
					len(leads), res.Created, res.Conflicts)
				return nil
			})
		},
	}
	cmd.Flags().Int("owners", 5, "Number of fake sales reps")
	cmd.Flags().Int("leads", 50, "Number of leads to create")
	cmd.Flags().Int("appointments", 200, "Number of appointments to book")
	cmd.Flags().Uint64("seed", 0, "Faker seed; 0 picks a random one")
	return cmd
}

func calendarCmd(log *slog.Logger) *cobra.Command {
	now := time.Now()
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Print a calendar view as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			month, _ := cmd.Flags().GetInt("month")
			rawView, _ := cmd.Flags().GetString("view")
			view, err := domain.ParseCalendarView(rawView)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), log, func(a *app.App, cfg config.Config) error {
				req, err := requesterFromFlags(cmd)
				if err != nil {
					return err
				}
				res, err := a.Service.CalendarView(cmd.Context(), req, year, month, view)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().Int("year", now.Year(), "Calendar year")
	cmd.Flags().Int("month", int(now.Month()), "Calendar month (1-12)")
	cmd.Flags().String("view", string(domain.CalendarViewMonth), "month, week, day or list")
	addRequesterFlags(cmd)
	return cmd
}

func statsCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print appointment statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), log, func(a *app.App, cfg config.Config) error {
				req, err := requesterFromFlags(cmd)
				if err != nil {
					return err
				}
				res, err := a.Service.Stats(cmd.Context(), req, appointments.StatsInput{})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	addRequesterFlags(cmd)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
