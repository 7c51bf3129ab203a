package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	// Headers returns the column headers for the table.
	Headers() []string
	// Rows returns the data rows for the table.
	Rows() [][]string
}

// PrintTable writes data as a formatted table to the writer.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := newTable(w)
	table.SetHeader(data.Headers())
	table.SetAutoFormatHeaders(true)

	for _, row := range data.Rows() {
		table.Append(row)
	}

	table.Render()
	return nil
}

// KeyValueTable prints ordered key-value pairs, one per row.
func KeyValueTable(w io.Writer, pairs [][2]string) error {
	table := newTable(w)
	table.SetAutoFormatHeaders(false)
	table.SetColumnSeparator(":")

	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}

	table.Render()
	return nil
}

// newTable configures a borderless left-aligned table.
func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}
