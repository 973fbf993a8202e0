package diagnostics

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/indutny/escape.js/colors"
)

const (
	gutterFmt  = "%*d | "
	linePosFmt = "%s--> %s:%d:%d\n"
)

// SourceCache caches source file contents for error reporting.
// Analysis inputs are usually serialized trees, so the original source is
// registered through AddSource rather than read from disk; the disk path is
// kept as a fallback for file-based invocations.
type SourceCache struct {
	files map[string][]string
}

func NewSourceCache() *SourceCache {
	return &SourceCache{
		files: make(map[string][]string),
	}
}

// AddSource registers in-memory source content for a file path
func (sc *SourceCache) AddSource(filepath, content string) {
	sc.files[filepath] = strings.Split(content, "\n")
}

// GetLine retrieves a specific line from a source file
func (sc *SourceCache) GetLine(filepath string, line int) (string, error) {
	if lines, ok := sc.files[filepath]; ok {
		if line > 0 && line <= len(lines) {
			return lines[line-1], nil
		}
		return "", fmt.Errorf("line %d out of range", line)
	}

	// Load file
	file, err := os.Open(filepath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	lines := make([]string, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return "", err
	}

	sc.files[filepath] = lines

	if line > 0 && line <= len(lines) {
		return lines[line-1], nil
	}

	return "", fmt.Errorf("line %d out of range", line)
}

// Emitter handles the rendering and output of diagnostics
type Emitter struct {
	cache  *SourceCache
	writer io.Writer
}

// NewEmitter creates an emitter that writes to a specific writer
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		cache:  NewSourceCache(),
		writer: w,
	}
}

func (e *Emitter) Emit(diag *Diagnostic) {
	e.printHeader(diag)

	for _, label := range diag.Labels {
		e.printLabel(diag.FilePath, label, diag.Severity)
	}

	for _, note := range diag.Notes {
		e.printNote(note)
	}

	if diag.Help != "" {
		e.printHelp(diag.Help)
	}

	fmt.Fprintln(e.writer)
}

func (e *Emitter) printHeader(diag *Diagnostic) {
	var color colors.COLOR

	switch diag.Severity {
	case Error:
		color = colors.BOLD_RED
	case Warning:
		color = colors.BOLD_YELLOW
	case Info:
		color = colors.BOLD_CYAN
	case Hint:
		color = colors.BOLD_PURPLE
	}

	color.Fprint(e.writer, diag.Severity.String())
	if diag.Code != "" {
		fmt.Fprintf(e.writer, "[%s]", diag.Code)
	}
	fmt.Fprint(e.writer, ": ")
	color.Fprintln(e.writer, diag.Message)
}

func (e *Emitter) printLabel(filepath string, label Label, severity Severity) {
	if label.Location == nil || label.Location.Start == nil {
		return
	}

	start := label.Location.Start
	end := label.Location.End
	if end == nil {
		end = start
	}
	if label.Location.File() != "" {
		filepath = label.Location.File()
	}

	lineNumWidth := len(fmt.Sprintf("%d", start.Line))

	// Location header
	colors.BLUE.Fprintf(e.writer, linePosFmt, strings.Repeat(" ", lineNumWidth), filepath, start.Line, start.Column)

	sourceLine, err := e.cache.GetLine(filepath, start.Line)
	if err != nil {
		// No source available; the header alone still carries the position
		e.printBareLabel(label, lineNumWidth, severity)
		return
	}

	// Separator, source line, underline
	fmt.Fprint(e.writer, strings.Repeat(" ", lineNumWidth))
	colors.GREY.Fprintln(e.writer, " |")

	colors.GREY.Fprintf(e.writer, gutterFmt, lineNumWidth, start.Line)
	fmt.Fprintln(e.writer, sourceLine)

	fmt.Fprint(e.writer, strings.Repeat(" ", lineNumWidth))
	colors.GREY.Fprint(e.writer, " | ")

	padding := start.Column - 1
	length := end.Column - start.Column
	if end.Line != start.Line || length <= 0 {
		length = 1
	}

	underlineColor, underlineChar := e.labelStyle(label, severity, length)

	fmt.Fprint(e.writer, strings.Repeat(" ", padding))
	underlineColor.Fprint(e.writer, strings.Repeat(underlineChar, length))
	if label.Message != "" {
		underlineColor.Fprintf(e.writer, " %s", label.Message)
	}
	fmt.Fprintln(e.writer)

	fmt.Fprint(e.writer, strings.Repeat(" ", lineNumWidth))
	colors.GREY.Fprintln(e.writer, " |")
}

// printBareLabel renders a label without source context
func (e *Emitter) printBareLabel(label Label, lineNumWidth int, severity Severity) {
	if label.Message == "" {
		return
	}
	underlineColor, underlineChar := e.labelStyle(label, severity, 1)
	fmt.Fprint(e.writer, strings.Repeat(" ", lineNumWidth))
	colors.GREY.Fprint(e.writer, " | ")
	underlineColor.Fprintf(e.writer, "%s %s\n", underlineChar, label.Message)
}

func (e *Emitter) labelStyle(label Label, severity Severity, length int) (colors.COLOR, string) {
	if label.Style == Primary {
		char := "^"
		if length > 1 {
			char = "~"
		}
		return e.getSeverityColor(severity), char
	}
	return colors.BLUE, "-"
}

func (e *Emitter) printNote(note Note) {
	colors.CYAN.Fprint(e.writer, "  = note: ")
	fmt.Fprintln(e.writer, note.Message)
}

func (e *Emitter) printHelp(help string) {
	colors.GREEN.Fprint(e.writer, "  = help: ")
	fmt.Fprintln(e.writer, help)
}

// getSeverityColor returns the color for a given severity
func (e *Emitter) getSeverityColor(severity Severity) colors.COLOR {
	switch severity {
	case Error:
		return colors.RED
	case Warning:
		return colors.YELLOW
	case Info:
		return colors.BLUE
	case Hint:
		return colors.PURPLE
	default:
		return colors.RED
	}
}
