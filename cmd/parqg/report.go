// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/katalvlaran/parqg/bnb"
	"github.com/katalvlaran/parqg/problem"
)

// writeReport prints the statistics table and, when a solution exists, the
// variable values.
func writeReport(w io.Writer, p *problem.Problem, res bnb.Result) {
	st := res.Stats
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("parqg: %s", p.Name))
	t.AppendRows([]table.Row{
		{"Status", res.Status.String()},
		{"Objective", value(res.Objective)},
		{"Bound", value(res.Bound)},
		{"Gap", gap(res.Gap)},
		{"Time", st.Elapsed.Round(time.Millisecond).String()},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Nodes processed", count(st.NodesProcessed)},
		{"Nodes created", count(st.NodesCreated)},
		{"Nodes pruned", count(st.NodesPruned)},
		{"Nodes abandoned", count(st.NodesAbandoned)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Cuts added", count(st.CutsAdded)},
		{"Cuts imported", count(st.CutsImported)},
		{"NLP solved", count(st.NLPSolved)},
		{"NLP optimal", count(st.NLPOptimal)},
		{"NLP infeasible", count(st.NLPInfeasible)},
		{"NLP iteration limit", count(st.NLPIterLimit)},
		{"NLP errors", count(st.NLPError)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	fmt.Fprintln(w, t.Render())

	if res.X == nil {
		return
	}
	sol := table.NewWriter()
	sol.SetStyle(table.StyleLight)
	sol.AppendHeader(table.Row{"Variable", "Type", "Value"})
	for _, v := range p.Vars() {
		sol.AppendRow(table.Row{v.Name, v.Type.String(), humanize.FtoaWithDigits(res.X[v.ID], 8)})
	}
	sol.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	fmt.Fprintln(w, sol.Render())
}

func count(n int) string { return humanize.Comma(int64(n)) }

func value(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Sprint(v)
	}

	return humanize.FtoaWithDigits(v, 8)
}

func gap(pct float64) string {
	if math.IsInf(pct, 0) || math.IsNaN(pct) {
		return "-"
	}

	return fmt.Sprintf("%.4f%%", pct)
}
