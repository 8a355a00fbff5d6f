package experiment

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// statusColors mirrors spec.md §6's "[E] S|F|R|T" line tags with the colors
// the teacher's console output leans on elsewhere in the pack (fatih/color
// is wired here per SPEC_FULL.md's domain-stack section, since this teacher
// repo has no equivalent colorized reporting of its own).
var statusColors = map[string]*color.Color{
	"S": color.New(color.FgGreen),
	"F": color.New(color.FgRed),
	"R": color.New(color.FgYellow),
	"T": color.New(color.FgCyan),
}

// WriteSummaryTable renders s as a small human-readable table, the
// experiment binary's end-of-run report.
func WriteSummaryTable(w io.Writer, s Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Tag", "Metric", "Count"})

	rows := [][2]string{
		{"S", "successes"},
		{"F", "failures"},
		{"R", "replacements"},
	}
	values := map[string]int{
		"S": s.Successes,
		"F": s.Failures,
		"R": s.Replacements,
	}
	for _, row := range rows {
		tag, metric := row[0], row[1]
		c := statusColors[tag]
		table.Append([]string{c.Sprint(tag), metric, fmt.Sprintf("%d", values[tag])})
	}
	table.Append([]string{statusColors["T"].Sprint("T"), "epochs elapsed", fmt.Sprintf("%d", s.Epoch)})

	table.Render()
}
