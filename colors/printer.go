package colors

import (
	"fmt"
	"io"
)

// Print methods (default to stdout)
func (c COLOR) Printf(format string, args ...any) {
	fmt.Printf(c.seq()+format+reset(), args...)
}

func (c COLOR) Println(args ...any) {
	fmt.Print(c.seq())
	fmt.Println(args...)
	fmt.Print(reset())
}

func (c COLOR) Print(args ...any) {
	fmt.Print(c.seq())
	fmt.Print(args...)
	fmt.Print(reset())
}

// Fprint methods (write to specific writer)
func (c COLOR) Fprintf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, c.seq()+format+reset(), args...)
}

func (c COLOR) Fprintln(w io.Writer, args ...any) {
	fmt.Fprint(w, c.seq())
	fmt.Fprintln(w, args...)
	fmt.Fprint(w, reset())
}

func (c COLOR) Fprint(w io.Writer, args ...any) {
	fmt.Fprint(w, c.seq())
	fmt.Fprint(w, args...)
	fmt.Fprint(w, reset())
}

func (c COLOR) Sprintf(format string, args ...any) string {
	return c.seq() + fmt.Sprintf(format, args...) + reset()
}

func (c COLOR) Sprint(args ...any) string {
	return c.seq() + fmt.Sprint(args...) + reset()
}

// StripANSI removes ANSI color codes from a string
func StripANSI(s string) string {
	result := ""
	inEscape := false
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			inEscape = true
			i++
			continue
		}
		if inEscape {
			if (s[i] >= 'A' && s[i] <= 'Z') || (s[i] >= 'a' && s[i] <= 'z') {
				inEscape = false
			}
			continue
		}
		result += string(s[i])
	}
	return result
}
