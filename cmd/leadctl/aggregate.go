package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Recompute daily reassignment analytics",
	Long:  "Recomputes the daily summary rows from the reassignment ledger. Without flags the previous day is aggregated.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		date, _ := cmd.Flags().GetString("date")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		if date != "" && (from != "" || to != "") {
			return eris.New("--date cannot be combined with --from/--to")
		}
		if (from == "") != (to == "") {
			return eris.New("--from and --to must be given together")
		}

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		agg := newEngine(store).Aggregator

		if from != "" {
			first, err := agg.ParseDay(from)
			if err != nil {
				return eris.Wrap(err, "--from")
			}
			last, err := agg.ParseDay(to)
			if err != nil {
				return eris.Wrap(err, "--to")
			}
			rows, err := agg.AggregateRange(ctx, first, last)
			if err != nil {
				return eris.Wrap(err, "aggregate range")
			}
			logger.Info().Str("from", from).Str("to", to).Int("rows", rows).Msg("range aggregated")
			return nil
		}

		day := agg.PreviousDay(time.Now())
		if date != "" {
			if day, err = agg.ParseDay(date); err != nil {
				return eris.Wrap(err, "--date")
			}
		}
		rows, err := agg.Aggregate(ctx, day)
		if err != nil {
			return eris.Wrap(err, "aggregate")
		}
		logger.Info().Str("date", day.Format(time.DateOnly)).Int("rows", len(rows)).Msg("day aggregated")
		return nil
	},
}

func init() {
	f := aggregateCmd.Flags()
	f.String("date", "", "Day to aggregate (YYYY-MM-DD), defaults to yesterday")
	f.String("from", "", "First day of a backfill range (YYYY-MM-DD)")
	f.String("to", "", "Last day of a backfill range, inclusive (YYYY-MM-DD)")
	rootCmd.AddCommand(aggregateCmd)
}
