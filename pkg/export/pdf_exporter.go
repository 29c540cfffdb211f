package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth  = 190.0
	pdfRowHeight  = 6.0
	pdfPageBottom = 280.0
)

// PDFExporter renders datasets into a tabular PDF report.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF with a document title followed by one table per
// dataset. Table headers repeat when a table crosses a page.
func (e *PDFExporter) Render(title string, sections ...Dataset) ([]byte, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("pdf requires at least one section")
	}
	for _, section := range sections {
		if err := section.validate("pdf"); err != nil {
			return nil, err
		}
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(false, 15)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	for _, section := range sections {
		if pdf.GetY()+3*pdfRowHeight > pdfPageBottom {
			pdf.AddPage()
		}
		if section.Title != "" {
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 8, section.Title, "", 1, "L", false, 0, "")
		}
		colWidth := pdfPageWidth / float64(len(section.Headers))
		writePDFHeader(pdf, section.Headers, colWidth)

		pdf.SetFont("Arial", "", 8)
		for _, row := range section.Rows {
			if pdf.GetY()+pdfRowHeight > pdfPageBottom {
				pdf.AddPage()
				writePDFHeader(pdf, section.Headers, colWidth)
				pdf.SetFont("Arial", "", 8)
			}
			for i := range section.Headers {
				var value string
				if i < len(row) {
					value = row[i]
				}
				pdf.CellFormat(colWidth, pdfRowHeight, value, "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writePDFHeader(pdf *gofpdf.Fpdf, headers []string, colWidth float64) {
	pdf.SetFont("Arial", "B", 9)
	for _, header := range headers {
		pdf.CellFormat(colWidth, pdfRowHeight+1, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
}
