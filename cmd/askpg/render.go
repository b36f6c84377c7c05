package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	sqlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	countStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// renderResult prints the generated SQL and the result rows as a table.
func renderResult(w io.Writer, result *queryResult) {
	fmt.Fprintf(w, "%s\n\n", sqlStyle.Render(result.SQL))

	if len(result.Rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
		return
	}

	rows := make([][]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		cells := make([]string, 0, len(result.Columns))
		for _, col := range result.Columns {
			cells = append(cells, formatCell(row[col]))
		}
		rows = append(rows, cells)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(result.Columns...).
		Rows(rows...)

	fmt.Fprintln(w, t)
	fmt.Fprintln(w, countStyle.Render(fmt.Sprintf("%d row(s)", len(result.Rows))))
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; keep integers free of a
		// trailing ".0".
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
