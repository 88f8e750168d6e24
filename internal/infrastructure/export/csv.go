// Package export renders analysis results as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"crypto-flow-forensics/internal/domain/entity"
)

const pathSeparator = " -> "

var (
	pathHeader    = []string{"Path", "Hops", "TotalAmount", "SuspicionScore", "StartDate", "EndDate", "AvgDelayHours"}
	patternHeader = []string{"Type", "Severity", "Score", "Description", "AffectedAddressCount", "TransactionCount"}
	taintHeader   = []string{"Source", "Target", "TotalTainted", "TaintPercentage", "Path", "PathAmount", "PathPercentage"}
	clusterHeader = []string{"ClusterId", "AddressCount", "CommonBehavior", "TotalVolume", "TransactionCount", "ConfidenceScore"}
)

// WritePaths writes one row per path
func WritePaths(w io.Writer, paths []entity.TransactionPath) error {
	rows := make([][]string, 0, len(paths))
	for _, p := range paths {
		rows = append(rows, []string{
			strings.Join(p.Addresses, pathSeparator),
			strconv.Itoa(p.Hops),
			formatFloat(p.TotalAmount),
			formatFloat(p.SuspicionScore),
			formatTime(p.StartDate),
			formatTime(p.EndDate),
			formatFloat(p.AvgDelay.Hours()),
		})
	}
	return write(w, pathHeader, rows)
}

// WritePatterns writes one row per pattern
func WritePatterns(w io.Writer, patterns []entity.SuspiciousPattern) error {
	rows := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		rows = append(rows, []string{
			string(p.Type),
			string(p.Severity),
			formatFloat(p.Score),
			p.Description,
			strconv.Itoa(len(p.AffectedAddresses)),
			strconv.Itoa(len(p.Transactions)),
		})
	}
	return write(w, patternHeader, rows)
}

// WriteTaint writes one row per tainted path, repeating the flow totals on
// each; a flow without paths still gets a row with the totals
func WriteTaint(w io.Writer, flow *entity.TaintFlow) error {
	totals := []string{flow.Source, flow.Target, formatFloat(flow.TotalTainted), formatFloat(flow.TaintPercentage)}

	if len(flow.Paths) == 0 {
		return write(w, taintHeader, [][]string{append(totals, "", "", "")})
	}

	rows := make([][]string, 0, len(flow.Paths))
	for _, p := range flow.Paths {
		row := append([]string{}, totals...)
		row = append(row, strings.Join(p.Path, pathSeparator), formatFloat(p.Amount), formatFloat(p.Percentage))
		rows = append(rows, row)
	}
	return write(w, taintHeader, rows)
}

// WriteClusters writes one row per cluster
func WriteClusters(w io.Writer, clusters []entity.AddressCluster) error {
	rows := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, []string{
			c.ClusterID,
			strconv.Itoa(len(c.Addresses)),
			c.CommonBehavior,
			formatFloat(c.TotalVolume),
			strconv.Itoa(c.TransactionCount),
			formatFloat(c.ConfidenceScore),
		})
	}
	return write(w, clusterHeader, rows)
}

func write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
