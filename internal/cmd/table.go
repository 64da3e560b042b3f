package cmd

import "strings"

// Table is tabular data for a Printer.
type Table interface {
	Headers() []string
	// Rows returns one slice of Fields per row, ordered like Headers.
	Rows() [][]Field
}

type Field struct {
	Name  string
	Value any
}

// NewDefaultTable returns a Table that keeps only the fields named by its
// headers, matched case and whitespace insensitively. Without headers every
// field is kept.
func NewDefaultTable(opts ...TableOption) *DefaultTable {
	var cfg TableConfig

	cfg.Option(opts...)

	return &DefaultTable{cfg: cfg}
}

type DefaultTable struct {
	cfg  TableConfig
	rows [][]Field
}

func (t *DefaultTable) Headers() []string {
	return t.cfg.Headers
}

func (t *DefaultTable) AddRow(fields ...Field) {
	t.rows = append(t.rows, fields)
}

func (t *DefaultTable) Rows() [][]Field {
	res := make([][]Field, 0, len(t.rows))

	for _, r := range t.rows {
		if len(t.cfg.Headers) == 0 {
			res = append(res, r)
			continue
		}

		byName := make(map[string]Field, len(r))
		for _, f := range r {
			byName[fieldKey(f.Name)] = f
		}

		var selected []Field
		for _, h := range t.cfg.Headers {
			if f, ok := byName[fieldKey(h)]; ok {
				selected = append(selected, f)
			}
		}
		if len(selected) > 0 {
			res = append(res, selected)
		}
	}

	return res
}

// fieldKey maps "Image ID", "image  id" and "image_id" to the same key.
func fieldKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "_"))
}

type TableConfig struct {
	Headers []string
}

func (c *TableConfig) Option(opts ...TableOption) {
	for _, opt := range opts {
		opt.ConfigureTable(c)
	}
}

type TableOption interface {
	ConfigureTable(*TableConfig)
}
