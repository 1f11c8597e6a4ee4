package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var colorBar = color.New(color.FgGreen)

// ProgressBar draws a single-line progress bar, redrawn in place
type ProgressBar struct {
	total   int
	current int
	width   int
	message string
	w       io.Writer
	noColor bool
}

// NewProgressBar creates a progress bar on the global logger output
func NewProgressBar(total int, message string) *ProgressBar {
	w, noColor := output()
	return &ProgressBar{
		total:   total,
		width:   40,
		message: message,
		w:       w,
		noColor: noColor,
	}
}

// Update sets the current position
func (p *ProgressBar) Update(current int) {
	p.current = current
	p.draw()
}

// Increment advances the bar by one
func (p *ProgressBar) Increment() {
	p.current++
	p.draw()
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	p.current = p.total
	p.draw()
	_, _ = fmt.Fprintln(p.w)
}

func (p *ProgressBar) draw() {
	if p.total <= 0 {
		return
	}
	percent := float64(min(p.current, p.total)) / float64(p.total)
	filled := int(percent * float64(p.width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	_, _ = fmt.Fprintf(p.w, "\r%s: [%s] %3.0f%%", p.message, paint(colorBar, p.noColor, bar), percent*100)
}
