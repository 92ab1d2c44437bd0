package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"budgetcards/internal/ai"
	"budgetcards/internal/cli"
	"budgetcards/internal/core"
	"budgetcards/internal/services"

	"github.com/spf13/cobra"
)

// summarizer is the part of services.Summarizer the summary command uses.
type summarizer interface {
	Summarize(ctx context.Context, m core.Month) (string, error)
}

type monthCommand struct {
	app *app
	// newSummarizer is swapped in tests.
	newSummarizer func() summarizer
}

func newMonthCmd(a *app) *cobra.Command {
	mc := &monthCommand{app: a}
	mc.newSummarizer = func() summarizer {
		return services.NewSummarizer(cli.NewChatClient(a.cfg))
	}

	cmd := &cobra.Command{
		Use:   "month",
		Short: "Month commands",
		Long:  `Commands that read one month of budget cards from the configured backend.`,
	}

	showCmd := &cobra.Command{
		Use:   "show YEAR MONTH",
		Short: "Show the cards of a month",
		Long:  `Show every card of a month with its items, card totals and the month totals.`,
		Args:  cobra.ExactArgs(2),
		RunE:  mc.runShow,
	}
	showCmd.Flags().StringP("output", "o", tableOutputFormat, "Output format: table or json")
	showCmd.Flags().String("currency", "EUR", "ISO 4217 code used to display amounts")

	summaryCmd := &cobra.Command{
		Use:   "summary YEAR MONTH",
		Short: "Ask the AI for a review of a month",
		Args:  cobra.ExactArgs(2),
		RunE:  mc.runSummary,
	}

	cmd.AddCommand(showCmd, summaryCmd)
	return cmd
}

func parseMonthArgs(args []string) (int, int, error) {
	year, err := strconv.Atoi(args[0])
	if err != nil || year < 1 {
		return 0, 0, fmt.Errorf("invalid year %q", args[0])
	}
	month, err := strconv.Atoi(args[1])
	if err != nil || !core.ValidMonth(month) {
		return 0, 0, fmt.Errorf("%w: %q", core.ErrInvalidMonth, args[1])
	}
	return year, month, nil
}

// loadMonth reads all rows and groups those of year and month into cards.
func (mc *monthCommand) loadMonth(ctx context.Context, year, month int) (core.Month, error) {
	st, closeStore, err := mc.app.openStore(ctx)
	if err != nil {
		return core.Month{}, err
	}
	defer closeStore()

	rows, err := st.ListRows(ctx)
	if err != nil {
		return core.Month{}, fmt.Errorf("failed to list rows: %w", err)
	}
	return core.SortedView(core.FormatMonth(rows, core.FixedCategories, year, month)), nil
}

func (mc *monthCommand) runShow(cmd *cobra.Command, args []string) error {
	outputFormat, _ := cmd.Flags().GetString("output")
	if !slices.Contains([]string{tableOutputFormat, jsonOutputFormat}, outputFormat) {
		return fmt.Errorf("invalid output format: %s (must be one of %v)", outputFormat, []string{tableOutputFormat, jsonOutputFormat})
	}
	currency, _ := cmd.Flags().GetString("currency")
	currency = strings.ToUpper(currency)

	year, month, err := parseMonthArgs(args)
	if err != nil {
		return err
	}
	m, err := mc.loadMonth(cmd.Context(), year, month)
	if err != nil {
		return err
	}
	view := services.MonthView{Month: m, Stats: core.CalcStats(m)}

	if outputFormat == jsonOutputFormat {
		return outputJSON(cmd.OutOrStdout(), view)
	}
	return printMonth(cmd.OutOrStdout(), view, currency)
}

func printMonth(out io.Writer, view services.MonthView, currency string) error {
	fmt.Fprintf(out, "Budget %04d-%02d\n\n", view.Year, view.Month)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, c := range view.Cards {
		total := core.CardTotal(c.Items)
		fmt.Fprintf(tw, "%s\t\t%s\t%d%%\n", strings.ToUpper(c.Title), toMoney(total, currency).Display(), core.Percent(total, view.Stats.Total))
		if len(c.Items) == 0 {
			fmt.Fprintf(tw, "  (empty)\t\t\t\n")
		}
		for _, it := range c.Items {
			mark := "[ ]"
			if it.Status == core.StatusDone {
				mark = "[x]"
			}
			icon := it.IconCategory
			if icon == "" {
				icon = "-"
			}
			fmt.Fprintf(tw, "  %s %s\t%s\t%s\t\n", mark, it.Text, icon, toMoney(it.Amount, currency).Display())
		}
		fmt.Fprintln(tw, "\t\t\t")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Total:      %s\n", toMoney(view.Stats.Total, currency).Display())
	fmt.Fprintf(out, "Done:       %s (%d%%)\n", toMoney(view.Stats.TotalDone, currency).Display(), core.Percent(view.Stats.TotalDone, view.Stats.Total))
	return nil
}

func (mc *monthCommand) runSummary(cmd *cobra.Command, args []string) error {
	year, month, err := parseMonthArgs(args)
	if err != nil {
		return err
	}
	m, err := mc.loadMonth(cmd.Context(), year, month)
	if err != nil {
		return err
	}
	if len(m.Items()) == 0 {
		return fmt.Errorf("%04d-%02d has no items to summarise", year, month)
	}

	summary, err := mc.newSummarizer().Summarize(cmd.Context(), m)
	if err != nil {
		if errors.Is(err, ai.ErrMissingAPIKey) {
			return fmt.Errorf("AI_API_KEY is not set: %w", err)
		}
		return fmt.Errorf("failed to summarise month: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}
