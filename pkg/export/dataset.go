package export

import "fmt"

// Dataset defines tabular export content. Each row holds one value per header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// NewDataset creates an empty dataset with the given headers.
func NewDataset(title string, headers ...string) *Dataset {
	return &Dataset{Title: title, Headers: headers}
}

// Append adds a row. Short rows are padded, long rows truncated.
func (d *Dataset) Append(values ...string) {
	row := make([]string, len(d.Headers))
	copy(row, values)
	d.Rows = append(d.Rows, row)
}

func (d Dataset) validate(format string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	return nil
}
