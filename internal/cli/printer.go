// Package cli prints command results to the terminal.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"

	"layercake.run/internal/cmd"
)

func init() {
	// Output is consumed by scripts and CI logs.
	pterm.DisableColor()
}

func NewPrinter(opts ...PrinterOption) *Printer {
	var cfg PrinterConfig

	cfg.Option(opts...)
	cfg.Default()

	return &Printer{cfg: cfg}
}

// Printer writes results to Out and diagnostics to Err.
type Printer struct {
	cfg PrinterConfig
}

func (p *Printer) PrintfOut(format string, args ...any) error {
	if _, err := fmt.Fprintf(p.cfg.Out, format, args...); err != nil {
		return fmt.Errorf("printing to out stream: %w", err)
	}

	return nil
}

func (p *Printer) PrintfErr(format string, args ...any) error {
	if _, err := fmt.Fprintf(p.cfg.Err, format, args...); err != nil {
		return fmt.Errorf("printing to err stream: %w", err)
	}

	return nil
}

// PrintTable renders t with aligned columns. Empty tables print nothing.
func (p *Printer) PrintTable(t cmd.Table) error {
	rows := t.Rows()
	if len(rows) == 0 {
		return nil
	}

	headers := t.Headers()
	data := make([][]string, 0, len(rows)+1)
	if len(headers) > 0 {
		data = append(data, headers)
	}
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, f := range r {
			cells[i] = fmt.Sprint(f.Value)
		}
		data = append(data, cells)
	}

	output, err := pterm.DefaultTable.
		WithData(data).
		WithSeparator("  ").
		WithHasHeader(len(headers) > 0).
		Srender()
	if err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}

	return p.PrintfOut("%s\n", output)
}

type PrinterConfig struct {
	Out io.Writer
	Err io.Writer
}

func (c *PrinterConfig) Option(opts ...PrinterOption) {
	for _, opt := range opts {
		opt.ConfigurePrinter(c)
	}
}

func (c *PrinterConfig) Default() {
	if c.Out == nil {
		c.Out = os.Stdout
	}
	if c.Err == nil {
		c.Err = os.Stderr
	}
}

type PrinterOption interface {
	ConfigurePrinter(*PrinterConfig)
}
