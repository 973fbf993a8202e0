package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/xyproto/env/v2"

	"github.com/indutny/escape.js/colors"
	"github.com/indutny/escape.js/internal/compiler"
)

const version = "0.1.0"

func main() {
	debug := flag.Bool("d", env.Bool("ESCAPEJS_DEBUG"), "Enable debug output")
	showVersion := flag.Bool("v", false, "Show version")
	save := flag.Bool("s", false, "Write the escape-annotated tree next to the source")
	externals := flag.String("extern", env.Str("ESCAPEJS_EXTERNALS", "escape"),
		"Comma-separated external names with unknown signatures")
	flag.BoolVar(debug, "debug", env.Bool("ESCAPEJS_DEBUG"), "Enable debug output")
	flag.BoolVar(showVersion, "version", false, "Show version")
	flag.BoolVar(save, "save", false, "Write the escape-annotated tree next to the source")

	flag.Parse()

	if env.Bool("NO_COLOR") {
		colors.Disable()
	}

	if *showVersion {
		fmt.Printf("escape.js analyzer version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: escapejs [options] <tree.json>")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var names []string
	for _, name := range strings.Split(*externals, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	result := compiler.Run(&compiler.Options{
		TreeFile:      args[0],
		Debug:         *debug,
		SaveAnnotated: *save,
		Externals:     names,
	})

	if !result.Success {
		os.Exit(1)
	}
}
