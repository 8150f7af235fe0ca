package script

import (
	"slices"
	"strings"
)

// Built-in tool routines. They run through the same sequencer as any
// loaded script.
var macros = map[string][]string{
	"screw-in": {
		"tighten_screw(25, 14, 2)",
		"loosen_screw(25, 10)",
	},
	"screw-out": {
		"tighten_screw(25, 15, 0.3)",
		"loosen_screw(25, 8)",
	},
}

// Macro returns the script text of a built-in routine.
func Macro(name string) (string, bool) {
	lines, ok := macros[name]
	if !ok {
		return "", false
	}
	return strings.Join(lines, "\n") + "\n", true
}

// MacroNames returns the built-in routine names in sorted order.
func MacroNames() []string {
	names := make([]string, 0, len(macros))
	for name := range macros {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
