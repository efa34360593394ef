package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/platform/config"
	"hrpayroll/internal/platform/db"
	"hrpayroll/internal/platform/jobs"
)

var rootCmd = &cobra.Command{
	Use:   "payrollctl",
	Short: "Payroll operations CLI",
	Long: `payrollctl manages payroll periods and runs directly against the payroll database.
- Periods are non-overlapping date ranges per organization: pending -> processed -> closed.
- Runs compute one payslip per active employee with a salary and commit all or nothing.
- Every run attempt is recorded in job_runs, including failures.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PAYROLL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("database-url", "PAYROLL_DATABASE_URL", "DATABASE_URL")
	_ = viper.BindEnv("jwt-secret", "PAYROLL_JWT_SECRET", "JWT_SECRET")
	_ = viper.BindEnv("tax-rate", "PAYROLL_TAX_RATE")
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("database-url", "", "postgres connection string")
	rootCmd.PersistentFlags().String("org", "", "organization id")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Float64("tax-rate", payroll.DefaultTaxRate, "flat tax rate applied to gross pay")
	rootCmd.PersistentFlags().Bool("verbose", false, "log at debug level")
	_ = viper.BindPFlag("database-url", rootCmd.PersistentFlags().Lookup("database-url"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("tax-rate", rootCmd.PersistentFlags().Lookup("tax-rate"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(periodsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(payslipsCmd())
	rootCmd.AddCommand(tokenCmd())
}

func logger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func withPool(ctx context.Context, fn func(context.Context, *pgxpool.Pool) error) error {
	cfg := config.Load()
	if url := viper.GetString("database-url"); url != "" {
		cfg.DatabaseURL = url
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required (--database-url or DATABASE_URL)")
	}
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func withService(ctx context.Context, fn func(context.Context, *payroll.Service, string) error) error {
	orgID := strings.TrimSpace(viper.GetString("org"))
	if orgID == "" {
		return fmt.Errorf("organization is required (--org or PAYROLL_ORG)")
	}
	tax, err := taxFunc(viper.GetFloat64("tax-rate"))
	if err != nil {
		return err
	}
	return withPool(ctx, func(ctx context.Context, pool *pgxpool.Pool) error {
		log := logger()
		store := payroll.NewStore(pool)
		service := payroll.NewService(store, payroll.NewTransactor(pool), tax, log)
		service.Runs.Jobs = jobs.New(pool, 0)
		return fn(ctx, service, orgID)
	})
}

func taxFunc(rate float64) (payroll.TaxFunc, error) {
	if err := config.ValidateTaxRate(rate); err != nil {
		return nil, fmt.Errorf("--tax-rate %w", err)
	}
	return payroll.FlatTax(decimal.NewFromFloat(rate)), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
