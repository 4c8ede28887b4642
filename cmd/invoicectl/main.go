package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wms-platform/services/invoice-service/internal/application"
	"github.com/wms-platform/services/invoice-service/internal/config"
	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/internal/infrastructure/idgen"
	"github.com/wms-platform/services/invoice-service/internal/infrastructure/messaging"
	mongoRepo "github.com/wms-platform/services/invoice-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/mongodb"
	outboxMongo "github.com/wms-platform/services/invoice-service/pkg/outbox/mongodb"
)

var Version = "dev"

// overdueService is the part of the invoice service the CLI drives
type overdueService interface {
	ListOverdue(ctx context.Context, asOf time.Time) (*application.InvoiceListResponse, error)
	ApplyLateFees(ctx context.Context, asOf time.Time) (*application.LateFeeSweepResult, error)
}

// serviceFactory builds the service and returns a function releasing its connections
type serviceFactory func(ctx context.Context, schedule domain.LateFeeSchedule) (overdueService, func(), error)

func main() {
	if err := newRootCmd(connectService, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(factory serviceFactory, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Operational commands for the invoice service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().String("as-of", "", "Reference instant in RFC3339 (default now)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(listOverdueCmd(factory))
	rootCmd.AddCommand(sweepOverdueCmd(factory))

	return rootCmd
}

func listOverdueCmd(factory serviceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list-overdue",
		Short: "List pending invoices whose due date has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, format, err := commonFlags(cmd)
			if err != nil {
				return err
			}

			service, closeFn, err := factory(cmd.Context(), domain.DefaultLateFeeSchedule())
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := service.ListOverdue(cmd.Context(), asOf)
			if err != nil {
				return err
			}

			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), list)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INVOICE\tCLIENT\tTOTAL\tDUE")
			for _, inv := range list.Data {
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\n",
					inv.InvoiceID, inv.ClientID, inv.Total.Amount, inv.Total.Currency, inv.DueDate.Format(time.RFC3339))
			}
			fmt.Fprintf(w, "\n%d overdue as of %s\n", list.Count, asOf.Format(time.RFC3339))
			return w.Flush()
		},
	}
}

func sweepOverdueCmd(factory serviceFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Apply the late fee to every overdue pending invoice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, format, err := commonFlags(cmd)
			if err != nil {
				return err
			}

			schedule, err := scheduleFlags(cmd)
			if err != nil {
				return err
			}

			service, closeFn, err := factory(cmd.Context(), schedule)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := service.ApplyLateFees(cmd.Context(), asOf)
			if err != nil {
				return err
			}

			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sweep as of %s: scanned %d, applied %d, skipped %d, failed %d\n",
				result.AsOf.Format(time.RFC3339), result.Scanned, result.Applied, result.Skipped, result.Failed)
			for id, reason := range result.Failures {
				fmt.Fprintf(out, "  %s: %s\n", id, reason)
			}
			if result.Failed > 0 {
				return fmt.Errorf("late fee not applied to %d invoice(s)", result.Failed)
			}
			return nil
		},
	}

	defaults := domain.DefaultLateFeeSchedule()
	cmd.Flags().String("rate", defaults.Rate.String(), "Late fee as a fraction of the invoice total")
	cmd.Flags().String("minimum", defaults.Minimum.String(), "Minimum late fee amount")
	cmd.Flags().String("description", defaults.Description, "Description of the late fee line")

	return cmd
}

func commonFlags(cmd *cobra.Command) (time.Time, string, error) {
	raw, _ := cmd.Flags().GetString("as-of")
	format, _ := cmd.Flags().GetString("output")

	switch format {
	case "table", "json":
	default:
		return time.Time{}, "", fmt.Errorf("unknown output format %q", format)
	}

	if raw == "" {
		return time.Now().UTC(), format, nil
	}
	asOf, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid --as-of: %w", err)
	}
	return asOf.UTC(), format, nil
}

func scheduleFlags(cmd *cobra.Command) (domain.LateFeeSchedule, error) {
	rawRate, _ := cmd.Flags().GetString("rate")
	rawMin, _ := cmd.Flags().GetString("minimum")
	description, _ := cmd.Flags().GetString("description")

	rate, err := decimal.NewFromString(rawRate)
	if err != nil {
		return domain.LateFeeSchedule{}, fmt.Errorf("invalid --rate: %w", err)
	}
	minimum, err := decimal.NewFromString(rawMin)
	if err != nil {
		return domain.LateFeeSchedule{}, fmt.Errorf("invalid --minimum: %w", err)
	}
	return domain.LateFeeSchedule{Rate: rate, Minimum: minimum, Description: description}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// connectService wires the invoice service against the configured MongoDB
func connectService(ctx context.Context, schedule domain.LateFeeSchedule) (overdueService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logConfig := logging.DefaultConfig("invoicectl")
	logConfig.Level = cfg.LogLevel
	logConfig.Environment = cfg.Environment
	logConfig.Output = os.Stderr
	logger := logging.New(logConfig)

	client, err := mongodb.NewClient(ctx, cfg.MongoDB, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	closeFn := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(shutdownCtx)
	}

	fees, err := domain.NewFeeCalculator(schedule)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	ids, err := idgen.New(cfg.IDStrategy)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	bus := messaging.NewOutboxEventBus(
		outboxMongo.NewOutboxRepository(client.Database()),
		cloudevents.NewEventFactory(cloudevents.SourceInvoiceService),
		cfg.Topics.Invoices,
		logger,
	)

	service := application.NewInvoiceService(mongoRepo.NewInvoiceRepository(client.Database()), bus, ids, fees, logger, nil)
	return service, closeFn, nil
}
