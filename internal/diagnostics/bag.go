package diagnostics

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/indutny/escape.js/colors"
)

const (
	analysisFailedMsg         = "\nAnalysis failed with %d error(s)"
	andWarningMsg             = " and %d warning(s)"
	analysisPassedWithWarning = "\nAnalysis passed with %d warning(s)\n"
)

// DiagnosticBag collects diagnostics during analysis
type DiagnosticBag struct {
	diagnostics []*Diagnostic
	mu          sync.Mutex
	errorCount  int
	warnCount   int
	sourceCache *SourceCache
}

// NewDiagnosticBag creates a new diagnostic bag
func NewDiagnosticBag() *DiagnosticBag {
	return &DiagnosticBag{
		diagnostics: make([]*Diagnostic, 0),
		sourceCache: NewSourceCache(),
	}
}

// AddSourceContent adds source content for a file path (for in-memory analysis)
func (db *DiagnosticBag) AddSourceContent(filepath, content string) {
	db.sourceCache.AddSource(filepath, content)
}

// Add adds a diagnostic to the bag
func (db *DiagnosticBag) Add(diag *Diagnostic) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.diagnostics = append(db.diagnostics, diag)

	switch diag.Severity {
	case Error:
		db.errorCount++
	case Warning:
		db.warnCount++
	}
}

// HasErrors returns true if there are any errors
func (db *DiagnosticBag) HasErrors() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.errorCount > 0
}

// ErrorCount returns the number of errors
func (db *DiagnosticBag) ErrorCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.errorCount
}

// WarningCount returns the number of warnings
func (db *DiagnosticBag) WarningCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.warnCount
}

// Diagnostics returns a copy of all diagnostics (thread-safe)
func (db *DiagnosticBag) Diagnostics() []*Diagnostic {
	db.mu.Lock()
	defer db.mu.Unlock()
	// Return a copy to prevent races if caller iterates while other goroutines append
	result := make([]*Diagnostic, len(db.diagnostics))
	copy(result, db.diagnostics)
	return result
}

// CountCode returns how many collected diagnostics carry the given code.
func (db *DiagnosticBag) CountCode(code string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, diag := range db.diagnostics {
		if diag.Code == code {
			n++
		}
	}
	return n
}

func (db *DiagnosticBag) EmitAll() {
	emitter := NewEmitter(os.Stderr)
	emitter.cache = db.sourceCache

	db.mu.Lock()
	diagnostics := make([]*Diagnostic, len(db.diagnostics))

	// copy diagnostics to avoid holding lock during emit
	copy(diagnostics, db.diagnostics)
	db.mu.Unlock()

	for _, diag := range diagnostics {
		emitter.Emit(diag)
	}

	db.printSummary(os.Stderr)
}

// EmitAllToString emits all diagnostics to a string with ANSI codes
func (db *DiagnosticBag) EmitAllToString() string {
	var buf bytes.Buffer
	emitter := &Emitter{
		cache:  db.sourceCache,
		writer: &buf,
	}

	db.mu.Lock()
	diagnostics := make([]*Diagnostic, len(db.diagnostics))
	copy(diagnostics, db.diagnostics)
	db.mu.Unlock()

	for _, diag := range diagnostics {
		emitter.Emit(diag)
	}

	db.printSummary(&buf)

	return buf.String()
}

func (db *DiagnosticBag) printSummary(w io.Writer) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.errorCount > 0 {
		colors.RED.Fprintf(w, analysisFailedMsg, db.errorCount)
		if db.warnCount > 0 {
			colors.RED.Fprintf(w, andWarningMsg, db.warnCount)
		}
		fmt.Fprintln(w)
	} else if db.warnCount > 0 {
		colors.ORANGE.Fprintf(w, analysisPassedWithWarning, db.warnCount)
	}
}

// Clear removes all diagnostics
func (db *DiagnosticBag) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.diagnostics = make([]*Diagnostic, 0)
	db.errorCount = 0
	db.warnCount = 0
}
