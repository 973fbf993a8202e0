package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/indutny/escape.js/colors"
	"github.com/indutny/escape.js/internal/ast"
	"github.com/indutny/escape.js/internal/diagnostics"
	"github.com/indutny/escape.js/internal/escape"
)

// Options for one analysis run
type Options struct {
	// Serialized program tree produced by the parser
	TreeFile string
	// Debug output
	Debug bool
	// Write the escape-annotated tree next to the source
	SaveAnnotated bool
	// External names resolvable without a declaration; their signatures
	// are unknown, so calls through them escape every argument
	Externals []string
}

// Result of one analysis run
type Result struct {
	Success  bool
	Analysis *escape.Result
}

// Run decodes the program tree, analyzes it and emits diagnostics. On a
// clean run the deallocation plan is printed and, when requested, the
// annotated tree is written for the code generator.
func Run(opts *Options) Result {
	bag := diagnostics.NewDiagnosticBag()

	absPath, err := filepath.Abs(opts.TreeFile)
	if err != nil {
		absPath = opts.TreeFile
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		colors.RED.Fprintf(os.Stderr, "File not found: %s\n", opts.TreeFile)
		return Result{Success: false}
	}

	prog, err := ast.DecodeFile(absPath)
	if err != nil {
		colors.RED.Fprintf(os.Stderr, "Failed to load program tree: %v\n", err)
		return Result{Success: false}
	}

	table := escape.DefaultTable()
	for _, name := range opts.Externals {
		table.RegisterExternal(name)
	}

	analysis := escape.Analyze(prog, table, bag, escape.Options{Debug: opts.Debug})

	bag.EmitAll()
	if bag.HasErrors() {
		return Result{Success: false, Analysis: analysis}
	}

	printPlan(analysis)

	if opts.SaveAnnotated {
		if err := prog.SaveAnnotated(analysis.AnnotationTag); err != nil {
			colors.RED.Fprintf(os.Stderr, "%v\n", err)
			return Result{Success: false, Analysis: analysis}
		}
		colors.GREEN.Printf("Annotated tree written to %s.esc.json\n", prog.FileName)
	}

	return Result{Success: true, Analysis: analysis}
}

func printPlan(analysis *escape.Result) {
	plan := analysis.Plan
	if plan == nil {
		return
	}
	if plan.TotalFrees() == 0 {
		colors.GREY.Println("Deallocation plan: nothing to free")
		return
	}

	colors.BOLD.Printf("Deallocation plan (%d free(s)):\n", plan.TotalFrees())
	for _, scopePlan := range plan.Scopes {
		colors.CYAN.Printf("  at exit of %s\n", scopePlan.Scope)
		for _, entry := range scopePlan.Entries {
			site := ""
			if entry.Value.Alloc != nil {
				site = fmt.Sprintf(" allocated at %s", entry.Value.Alloc.Loc())
			}
			switch entry.Kind {
			case escape.PartialFree:
				colors.YELLOW.Printf("    partial-free %s%s (props: %v)\n", entry.Value, site, entry.Props)
			default:
				colors.WHITE.Printf("    free %s%s\n", entry.Value, site)
			}
		}
	}
}
