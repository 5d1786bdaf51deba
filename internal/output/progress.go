// Package output handles all recce CLI output formatting.
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Progress writes stage progress updates to stderr. It implements
// engine.ProgressReporter and is safe for concurrent use, since sections
// report from their own goroutines.
type Progress struct {
	w       io.Writer
	verbose bool
	silent  bool
	mu      sync.Mutex
	start   time.Time
	warn    *color.Color
}

// NewProgress creates a progress reporter.
func NewProgress(w io.Writer, verbose, silent, noColor bool) *Progress {
	warn := color.New(color.FgYellow)
	if noColor {
		warn.DisableColor()
	}
	return &Progress{
		w:       w,
		verbose: verbose,
		silent:  silent,
		start:   time.Now(),
		warn:    warn,
	}
}

// Stage prints a stage header like "[1/5] Resolving 7 DNS record types..."
func (p *Progress) Stage(num, total int, msg string) {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%d/%d] %s\n", num, total, msg)
}

// Detail prints verbose detail (only in verbose mode).
func (p *Progress) Detail(msg string) {
	if !p.verbose || p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  %s\n", msg)
}

// Warn prints a warning to stderr.
func (p *Progress) Warn(msg string) {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  %s %s\n", p.warn.Sprint("!"), msg)
}

// Complete prints the final duration.
func (p *Progress) Complete() {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := time.Since(p.start)
	fmt.Fprintf(p.w, "\nCompleted in %.1fs\n", elapsed.Seconds())
}

// NewLogger returns the diagnostic logger handed to the engine and the
// recon stages. Without debug it only lets warnings through, so normal
// runs keep stderr for progress lines.
func NewLogger(w io.Writer, debug, noColor bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:    noColor,
		DisableTimestamp: !debug,
		FullTimestamp:    true,
	})
	log.SetLevel(logrus.WarnLevel)
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
