package export

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TextExporter renders datasets as boxed console tables.
type TextExporter struct {
	style table.Style
}

// NewTextExporter constructs a text exporter using rounded box drawing.
func NewTextExporter() *TextExporter {
	return &TextExporter{style: table.StyleRounded}
}

// Render writes a banner with the title and one table per dataset.
func (e *TextExporter) Render(title string, sections ...Dataset) (string, error) {
	var b strings.Builder
	if title != "" {
		banner := strings.Repeat("=", len(title)+4)
		fmt.Fprintf(&b, "%s\n  %s\n%s\n\n", banner, title, banner)
	}
	for _, section := range sections {
		if err := section.validate("text"); err != nil {
			return "", err
		}
		b.WriteString(e.renderTable(section))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func (e *TextExporter) renderTable(data Dataset) string {
	t := table.NewWriter()
	t.SetStyle(e.style)
	if data.Title != "" {
		t.SetTitle(data.Title)
	}

	header := make(table.Row, len(data.Headers))
	for i, h := range data.Headers {
		header[i] = h
	}
	t.AppendHeader(header)

	for _, values := range data.Rows {
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = v
		}
		t.AppendRow(row)
	}

	configs := make([]table.ColumnConfig, 0, len(data.Headers))
	for i := range data.Headers {
		if i == 0 {
			continue
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)
	return t.Render()
}
