package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

const (
	IconSuccess = "✅"
	IconRefresh = "🔄"
	IconConfig  = "⚙️"
	IconDot     = "•"
)

var (
	colorSection    = color.New(color.FgCyan, color.Bold)
	colorSubSection = color.New(color.FgHiBlack)
	colorKey        = color.New(color.FgCyan)
	colorHeader     = color.New(color.Bold)
)

// output returns the writer and color setting of the global logger
func output() (io.Writer, bool) {
	if s := defaultSink(); s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.writer, s.noColor
	}
	return os.Stdout, true
}

// Success logs a success message with a checkmark
func Success(args ...interface{}) {
	defaultLogger.Info(IconSuccess + " " + fmt.Sprint(args...))
}

// Successf logs a formatted success message
func Successf(format string, args ...interface{}) {
	Success(fmt.Sprintf(format, args...))
}

// Progress logs a progress message with a refresh icon
func Progress(args ...interface{}) {
	defaultLogger.Info(IconRefresh + " " + fmt.Sprint(args...))
}

// Progressf logs a formatted progress message
func Progressf(format string, args ...interface{}) {
	Progress(fmt.Sprintf(format, args...))
}

// LogSection creates a visual section separator
func LogSection(title string) {
	w, noColor := output()
	line := strings.Repeat("=", 50)
	for _, s := range []string{line, title, line} {
		_, _ = fmt.Fprintln(w, paint(colorSection, noColor, s))
	}
}

// LogSubSection creates a visual subsection separator
func LogSubSection(title string) {
	w, noColor := output()
	line := strings.Repeat("-", 40)
	for _, s := range []string{line, title, line} {
		_, _ = fmt.Fprintln(w, paint(colorSubSection, noColor, s))
	}
}

// LogKeyValue logs a key-value pair
func LogKeyValue(key string, value interface{}) {
	w, noColor := output()
	_, _ = fmt.Fprintf(w, "%s %v\n", paint(colorKey, noColor, key+":"), value)
}

// Table is a simple aligned table for console output
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a new table
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow adds a row to the table
func (t *Table) AddRow(values ...string) {
	t.rows = append(t.rows, values)
}

// Print writes the table to the global logger output
func (t *Table) Print() {
	w, noColor := output()
	t.Fprint(w, noColor)
}

// Fprint writes the table to w
func (t *Table) Fprint(w io.Writer, noColor bool) {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range t.headers {
		b.WriteString(paint(colorHeader, noColor, fmt.Sprintf("%-*s", widths[i], h)))
		b.WriteString("  ")
	}
	b.WriteString("\n")
	for i := range t.headers {
		b.WriteString(strings.Repeat("-", widths[i]) + "  ")
	}
	b.WriteString("\n")
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
			}
		}
		b.WriteString("\n")
	}
	_, _ = io.WriteString(w, b.String())
}
