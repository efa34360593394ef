package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/platform/db"
	"hrpayroll/migrations"
)

const dayLayout = "2006-01-02"

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
					return err
				}
				fmt.Println("migrations applied")
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	var orgName string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo organization with employees and compensation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				res, err := db.Seed(ctx, pool, orgName, db.DemoEmployees)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("organization %s: %d employees added\n", res.OrganizationID, res.Employees)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgName, "name", "Demo Payroll Co", "organization name")
	return cmd
}

func periodsCmd() *cobra.Command {
	periods := &cobra.Command{Use: "periods", Short: "Manage payroll periods"}
	periods.AddCommand(periodsListCmd())
	periods.AddCommand(periodsCreateCmd())
	periods.AddCommand(periodsCloseCmd())
	return periods
}

func periodsListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payroll periods, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *payroll.Service, orgID string) error {
				periods, err := svc.Periods.ListPeriods(ctx, orgID, limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(periods)
				}
				renderPeriods(os.Stdout, periods)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func periodsCreateCmd() *cobra.Command {
	var name, start, end, payment string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new payroll period",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := periodInput(name, start, end, payment)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *payroll.Service, orgID string) error {
				period, err := svc.Periods.CreatePeriod(ctx, orgID, input)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(period)
				}
				renderPeriods(os.Stdout, []payroll.Period{period})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "period name")
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&payment, "payment", "", "payment date (YYYY-MM-DD), defaults to --end")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func periodsCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <period-id>",
		Short: "Close a payroll period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *payroll.Service, orgID string) error {
				period, err := svc.Periods.ClosePeriod(ctx, orgID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(period)
				}
				renderPeriods(os.Stdout, []payroll.Period{period})
				return nil
			})
		},
	}
}

func runsCmd() *cobra.Command {
	runs := &cobra.Command{Use: "runs", Short: "Execute and inspect payroll runs"}
	runs.AddCommand(runsCreateCmd())
	runs.AddCommand(runsShowCmd())
	return runs
}

func runsCreateCmd() *cobra.Command {
	var notes, runDate string
	cmd := &cobra.Command{
		Use:   "create <period-id>",
		Short: "Run payroll for a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := payroll.RunOptions{Notes: notes}
			if runDate != "" {
				parsed, err := time.Parse(dayLayout, runDate)
				if err != nil {
					return fmt.Errorf("--run-date: %w", err)
				}
				opts.RunDate = parsed
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *payroll.Service, orgID string) error {
				summary, err := svc.Runs.CreateRun(ctx, orgID, args[0], opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				renderRuns(os.Stdout, []payroll.Run{summary.Run})
				renderPayslips(os.Stdout, summary.Payslips)
				for _, warning := range summary.Warnings {
					fmt.Fprintf(os.Stderr, "warning: employee %s skipped: %s\n", warning.EmployeeID, warning.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "free-form run notes")
	cmd.Flags().StringVar(&runDate, "run-date", "", "run date (YYYY-MM-DD), defaults to today")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its payslips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *payroll.Service, orgID string) error {
				run, err := svc.Runs.GetRun(ctx, orgID, args[0])
				if err != nil {
					return err
				}
				payslips, err := svc.Payslips.ListByRun(ctx, orgID, run.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"run": run, "payslips": payslips})
				}
				renderRuns(os.Stdout, []payroll.Run{run})
				renderPayslips(os.Stdout, payslips)
				return nil
			})
		},
	}
}

func payslipsCmd() *cobra.Command {
	payslips := &cobra.Command{Use: "payslips", Short: "Inspect payslips"}
	payslips.AddCommand(payslipsListCmd())
	payslips.AddCommand(payslipsPDFCmd())
	return payslips
}

func payslipsListCmd() *cobra.Command {
	var runID, employeeID string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payslips of a run or of an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (runID == "") == (employeeID == "") {
				return fmt.Errorf("exactly one of --run or --employee is required")
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *payroll.Service, orgID string) error {
				var payslips []payroll.Payslip
				var err error
				if runID != "" {
					payslips, err = svc.Payslips.ListByRun(ctx, orgID, runID)
				} else {
					payslips, err = svc.Payslips.ListByEmployee(ctx, orgID, employeeID, limit, offset)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(payslips)
				}
				renderPayslips(os.Stdout, payslips)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size for --employee")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset for --employee")
	return cmd
}

func payslipsPDFCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pdf <payslip-id>",
		Short: "Render a payslip PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *payroll.Service, orgID string) error {
				data, err := svc.Documents.Render(ctx, orgID, args[0])
				if err != nil {
					return err
				}
				if out == "" {
					out = "payslip-" + args[0] + ".pdf"
				}
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}

func tokenCmd() *cobra.Command {
	var userID, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the payroll API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("jwt secret is required (JWT_SECRET)")
			}
			orgID := strings.TrimSpace(viper.GetString("org"))
			if orgID == "" {
				return fmt.Errorf("organization is required (--org or PAYROLL_ORG)")
			}
			if _, ok := auth.RolePermissions[role]; !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.GenerateToken(secret, auth.Claims{UserID: userID, OrganizationID: orgID, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "payrollctl", "user id carried in the token")
	cmd.Flags().StringVar(&role, "role", auth.RolePayrollAdmin, "role carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func periodInput(name, start, end, payment string) (payroll.PeriodInput, error) {
	input := payroll.PeriodInput{Name: name}
	var err error
	if input.StartDate, err = time.Parse(dayLayout, start); err != nil {
		return input, fmt.Errorf("--start: %w", err)
	}
	if input.EndDate, err = time.Parse(dayLayout, end); err != nil {
		return input, fmt.Errorf("--end: %w", err)
	}
	if payment == "" {
		input.PaymentDate = input.EndDate
		return input, nil
	}
	if input.PaymentDate, err = time.Parse(dayLayout, payment); err != nil {
		return input, fmt.Errorf("--payment: %w", err)
	}
	return input, nil
}

func renderPeriods(w io.Writer, periods []payroll.Period) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Start", "End", "Payment", "Status"})
	for _, p := range periods {
		tw.AppendRow(table.Row{p.ID, p.Name, p.StartDate.Format(dayLayout), p.EndDate.Format(dayLayout), p.PaymentDate.Format(dayLayout), p.Status})
	}
	tw.Render()
}

func renderRuns(w io.Writer, runs []payroll.Run) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Period", "Run date", "Status", "Employees", "Total"})
	for _, r := range runs {
		tw.AppendRow(table.Row{r.ID, r.PeriodID, r.RunDate.Format(dayLayout), r.Status, r.TotalEmployees, r.TotalAmount.StringFixed(2)})
	}
	tw.Render()
}

func renderPayslips(w io.Writer, payslips []payroll.Payslip) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Employee", "Gross", "Deductions", "Tax", "Net", "Currency"})
	for _, p := range payslips {
		tw.AppendRow(table.Row{
			p.ID, p.EmployeeID,
			p.GrossPay.StringFixed(2), p.Deductions.StringFixed(2), p.Tax.StringFixed(2), p.NetPay.StringFixed(2),
			p.Currency,
		})
	}
	tw.Render()
}
