package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/inclusioncast/internal/dataset"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

func newCoverageCmd(load configLoader) *cobra.Command {
	var minCount int
	var indicators []string
	var recordType, pillar string

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Summarise the dataset: record types, confidence, year coverage and sparse indicators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ds, err := loadDataset(cfg)
			if err != nil {
				return err
			}
			e := dataset.NewExplorer(ds)
			if recordType != "" || pillar != "" {
				var kept int
				e, kept = filteredExplorer(ds, recordType, pillar)
				fmt.Fprintf(cmd.OutOrStdout(), "Filtered to %d of %d records\n\n", kept, len(ds.Records))
			}
			return printCoverage(cmd.OutOrStdout(), e, indicators, minCount)
		},
	}

	cmd.Flags().IntVar(&minCount, "min-count", 3, "Flag indicators with fewer observation rows than this")
	cmd.Flags().StringSliceVar(&indicators, "indicator", nil, "Restrict the year matrix to these indicators")
	cmd.Flags().StringVar(&recordType, "record-type", "", "Only summarise records of this type (observation, event, ...)")
	cmd.Flags().StringVar(&pillar, "pillar", "", "Only summarise records of this pillar")

	return cmd
}

// filteredExplorer narrows the dataset to the matching records. Impact links
// are dropped when the filter excludes events, since none could match.
func filteredExplorer(ds *models.Dataset, recordType, pillar string) (*dataset.Explorer, int) {
	records := dataset.NewExplorer(ds).FilterRecords(recordType, pillar)
	sub := &models.Dataset{
		Records:      records,
		Observations: models.ObservationsFromRecords(records),
	}
	if recordType == "" || recordType == models.RecordTypeEvent {
		sub.Impacts = ds.Impacts
	}
	return dataset.NewExplorer(sub), len(records)
}

func printCoverage(w io.Writer, e *dataset.Explorer, indicators []string, minCount int) error {
	types, err := e.SummarizeBy("record_type")
	if err != nil {
		return err
	}
	conf, err := e.ConfidenceDistribution()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Records by type:")
	printCounts(w, types)
	fmt.Fprintln(w, "\nConfidence:")
	printCounts(w, conf)

	cov := e.TemporalCoverage(indicators)
	fmt.Fprintln(w, "\nObservations per year:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"INDICATOR"}
	for _, y := range cov.Years {
		header = append(header, fmt.Sprint(y))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for i, code := range cov.Indicators {
		cols := []string{code}
		for _, n := range cov.Counts[i] {
			cell := "."
			if n > 0 {
				cell = fmt.Sprint(n)
			}
			cols = append(cols, cell)
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	tw.Flush()

	fmt.Fprintln(w, "\nIndicator summaries:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDICATOR\tN\tYEARS\tMEAN\tSTDDEV\tMIN\tMAX\tLAST")
	for _, s := range e.DescribeAll() {
		fmt.Fprintf(tw, "%s\t%d\t%d-%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			s.Indicator, s.Count, s.FirstYear, s.LastYear, s.Mean, s.StdDev, s.Min, s.Max, s.Last)
	}
	tw.Flush()

	sparse := e.SparseIndicators(minCount)
	if len(sparse) > 0 {
		fmt.Fprintf(w, "\nSparse indicators (< %d rows):\n", minCount)
		printCounts(w, sparse)
	}

	var dangling []string
	for _, d := range e.MergeImpacts() {
		if !d.Matched {
			dangling = append(dangling, d.Link.ParentID+" -> "+d.Link.RelatedIndicator)
		}
	}
	if len(dangling) > 0 {
		fmt.Fprintln(w, "\nImpact links without a parent event:")
		for _, d := range dangling {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	return nil
}

func printCounts(w io.Writer, counts []dataset.ValueCount) {
	for _, c := range counts {
		value := c.Value
		if value == "" {
			value = "(missing)"
		}
		fmt.Fprintf(w, "  %-24s %d\n", value, c.Count)
	}
}
