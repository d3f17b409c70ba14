package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quotesheet/internal/amqp"
	"quotesheet/internal/config"
	"quotesheet/internal/core"
	"quotesheet/internal/log"
	"quotesheet/internal/variant"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// AuditOptions holds global flags for the audit commands.
type AuditOptions struct {
	Format   string
	LogLevel string
}

// NewAuditCommand creates the root command of the audit tool.
func NewAuditCommand() *cobra.Command {
	opts := &AuditOptions{}

	cmd := &cobra.Command{
		Use:   "quotesheet-audit",
		Short: "Inspect sheet variants and the sheet change feed",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewConsumeCommand(opts))
	cmd.AddCommand(NewVariantsCommand(opts))
	return cmd
}

// NewConsumeCommand creates the command that tails the change feed.
func NewConsumeCommand(rootOpts *AuditOptions) *cobra.Command {
	var url, exchange, queue string

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Print every sheet change published on the AMQP queue",
		Long: `Consume sheet change events until interrupted.

Connection settings default to AMQP_URL, AMQP_EXCHANGE and AMQP_QUEUE.
Malformed events are dropped; the consumer reconnects with backoff when the
broker goes away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			LoadEnvFile()
			cfg := config.Load()
			if url == "" {
				url = cfg.AMQPURL
			}
			if exchange == "" {
				exchange = cfg.AMQPExchange
			}
			if queue == "" {
				queue = cfg.AMQPQueue
			}
			if url == "" {
				return errors.New("no broker configured: set AMQP_URL or --url")
			}
			return runConsume(cmd.Context(), rootOpts, cmd.OutOrStdout(), url, exchange, queue)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "AMQP URL (default $AMQP_URL)")
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange name (default $AMQP_EXCHANGE)")
	cmd.Flags().StringVar(&queue, "queue", "", "queue name (default $AMQP_QUEUE)")
	return cmd
}

func runConsume(ctx context.Context, opts *AuditOptions, out io.Writer, url, exchange, queue string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := SetupLogger(opts.LogLevel).WithComponent(log.ComponentAudit)
	ctx = log.NewContext(ctx, logger)

	client, err := amqp.NewClient(url, exchange, queue)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer client.Close()

	logger.InfoContext(ctx, "Audit consumer started", "exchange", exchange, "queue", queue)
	err = client.ConsumeWithRetry(ctx, EventPrinter(out, opts.Format))
	if errors.Is(err, context.Canceled) {
		logger.InfoContext(ctx, "Audit consumer stopped")
		return nil
	}
	return err
}

// EventPrinter returns a consumer handler that writes each event to w.
func EventPrinter(w io.Writer, format string) func(context.Context, *amqp.SheetChangedMessage) error {
	return func(ctx context.Context, msg *amqp.SheetChangedMessage) error {
		log.FromContext(ctx).DebugContext(ctx, "Sheet change received",
			log.FieldSheetID, msg.SheetID,
			log.FieldOperation, msg.Op,
			log.FieldRowID, msg.RowID)

		if format == "json" {
			data, err := msg.ToJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "%s\n", data)
			return err
		}
		_, err := fmt.Fprintf(w, "%s %-6s sheet=%s row=%d rows=%d total=%s total_cost=%s\n",
			msg.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			msg.Op,
			msg.SheetID,
			msg.RowID,
			msg.RowCount,
			core.FormatAmount(msg.Total),
			core.FormatAmount(msg.TotalCost))
		return err
	}
}

// variantSummary describes one embedded variant.
type variantSummary struct {
	Name      string       `json:"name"`
	Title     string       `json:"title"`
	Columns   core.Columns `json:"columns"`
	Rows      int          `json:"rows"`
	Total     float64      `json:"total"`
	TotalCost float64      `json:"total_cost"`
	Default   bool         `json:"default"`
}

// NewVariantsCommand creates the command that lists the sheet variants.
func NewVariantsCommand(rootOpts *AuditOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List the built-in sheet variants and their seed totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVariants(rootOpts, cmd.OutOrStdout())
		},
	}
}

func runVariants(opts *AuditOptions, out io.Writer) error {
	var summaries []variantSummary
	for _, name := range variant.Names() {
		v, err := variant.Load(name)
		if err != nil {
			return fmt.Errorf("load variant %s: %w", name, err)
		}
		totals := core.Aggregate(v.Seed())
		summaries = append(summaries, variantSummary{
			Name:      v.Name,
			Title:     v.Title,
			Columns:   v.Columns,
			Rows:      len(v.Rows),
			Total:     totals.Total,
			TotalCost: totals.TotalCost,
			Default:   v.Name == variant.Default,
		})
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTITLE\tMODEL\tCOST\tROWS\tTOTAL")
	for _, s := range summaries {
		name := s.Name
		if s.Default {
			name += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%d\t%s\n",
			name, s.Title, s.Columns.Model, s.Columns.Cost, s.Rows, core.FormatAmount(s.Total))
	}
	return tw.Flush()
}
