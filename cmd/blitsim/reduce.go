package main

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gogpu/blit"
)

// reduceCase is one column of the reduction table.
type reduceCase struct {
	name        string
	srcPresent  bool
	srcOpaque   bool
	dstOpaque   bool
	globalAlpha uint8
	mask        bool
}

var reduceCases = []reduceCase{
	{"opaque", true, true, true, 255, false},
	{"src alpha", true, false, true, 255, false},
	{"dst alpha", true, true, false, 255, false},
	{"alpha<255", true, true, true, 128, false},
	{"fill", false, true, true, 255, false},
	{"fill alpha", false, false, true, 255, false},
	{"masked", true, true, true, 255, true},
}

func newReduceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reduce",
		Short: "Print the operator reduction table",
		Long: `reduce prints, for every blend operator, the operator the executor
programs into the accelerator under common operand opacities.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			writeReduceTable(cmd.OutOrStdout())
			return nil
		},
	}
}

func reductionRows() [][]string {
	rows := make([][]string, 0, len(blit.Operators()))
	for _, op := range blit.Operators() {
		row := []string{op.String()}
		for _, c := range reduceCases {
			r := blit.Reduce(op, c.srcPresent, c.srcOpaque, c.dstOpaque, c.globalAlpha, c.mask)
			cell := r.String()
			if r == op {
				cell = "-"
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return rows
}

func writeReduceTable(w io.Writer) {
	header := []string{"op"}
	for _, c := range reduceCases {
		header = append(header, c.name)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.AppendBulk(reductionRows())
	table.Render()
}
