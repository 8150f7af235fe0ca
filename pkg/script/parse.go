package script

import (
	"bufio"
	"fmt"
	"iter"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gwillem/screwcell/pkg/fault"
	"github.com/gwillem/screwcell/pkg/robot"
)

// Entry is the outcome of one recognized line: either a Command or a
// Parse error.
type Entry struct {
	// Line is the 1-based source line number.
	Line    int
	Text    string
	Command Command
	Err     error
}

var (
	// first bracketed or parenthesized list of numbers
	argsRe = regexp.MustCompile(`[\[(]\s*([-+0-9.eE,\s]*?)\s*[\])]`)
	// movej([q0, ..., q5], <rest>): the joint list must open the call, so a
	// pose literal such as p[...] does not match.
	movejRe = regexp.MustCompile(`^movej\s*\(\s*\[([^\]]*)\]([^)]*)\)`)
)

// movejParams are the optional movej arguments in positional order.
var movejParams = []string{"a", "v", "t", "r"}

// unsupported are motion keywords that are recognized but cannot be run, so
// they show up as failed lines instead of vanishing.
var unsupported = map[string]string{
	"movel": "linear (tool-space) moves are not supported; use movej",
}

type directive struct {
	kind  Kind
	arity int
	build func(args []float64) Command
}

// Order matters only for keywords that prefix each other; none currently do.
var directives = []directive{
	{KindMoveJoint, robot.NumJoints, nil}, // see parseMoveJ
	{KindMoveShank, 1, func(a []float64) Command {
		return MoveShank{PositionMm: a[0]}
	}},
	{KindPickScrew, 2, func(a []float64) Command {
		return PickScrew{ForceN: a[0], LengthMm: a[1]}
	}},
	{KindPremountScrew, 3, func(a []float64) Command {
		return PremountScrew{ForceN: a[0], LengthMm: a[1], TorqueNm: a[2]}
	}},
	{KindTightenScrew, 3, func(a []float64) Command {
		return TightenScrew{ForceN: a[0], LengthMm: a[1], TorqueNm: a[2]}
	}},
	{KindLoosenScrew, 2, func(a []float64) Command {
		return LoosenScrew{ForceN: a[0], LengthMm: a[1]}
	}},
}

// Directives returns the recognized line keywords.
func Directives() []string {
	out := make([]string, len(directives))
	for i, d := range directives {
		out[i] = d.kind.Directive()
	}
	return out
}

// Parse yields one Entry per recognized line of src, in source order.
// Blank and unrecognized lines are skipped. The sequence can be ranged
// over any number of times and yields the same entries each time.
func Parse(src string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		sc := bufio.NewScanner(strings.NewReader(src))
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		n := 0
		for sc.Scan() {
			n++
			e, ok := parseLine(n, sc.Text())
			if !ok {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// ParseFile reads path and parses its contents.
func ParseFile(path string) (iter.Seq[Entry], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Parse(string(data)), nil
}

// Collect splits entries into commands and parse errors.
func Collect(entries iter.Seq[Entry]) (cmds []Command, errs []error) {
	for e := range entries {
		if e.Err != nil {
			errs = append(errs, e.Err)
			continue
		}
		cmds = append(cmds, e.Command)
	}
	return cmds, errs
}

// parseLine returns false when the line is not a recognized directive.
func parseLine(n int, raw string) (Entry, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Entry{}, false
	}
	for name, reason := range unsupported {
		if strings.HasPrefix(text, name) {
			return Entry{Line: n, Text: text, Err: fault.Parsef(name, "line %d: %s", n, reason)}, true
		}
	}
	for _, d := range directives {
		name := d.kind.Directive()
		if !strings.HasPrefix(text, name) {
			continue
		}
		e := Entry{Line: n, Text: text}
		cmd, err := d.parse(text)
		if err != nil {
			e.Err = fault.Parsef(name, "line %d: %v", n, err)
		} else {
			e.Command = cmd
		}
		return e, true
	}
	return Entry{}, false
}

func (d directive) parse(text string) (Command, error) {
	if d.kind == KindMoveJoint {
		return parseMoveJ(text)
	}
	m := argsRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("no numeric argument list in %q", text)
	}
	args, err := parseNumbers(m[1])
	if err != nil {
		return nil, err
	}
	if len(args) != d.arity {
		return nil, fmt.Errorf("want %d arguments, got %d", d.arity, len(args))
	}
	return d.build(args), nil
}

// parseMoveJ parses movej([q0..q5], a, v, t, r), where the optional
// arguments may be positional or a=/v=/t=/r= keywords. Time-based moves and
// blending are rejected because the cell sends plain joint moves.
func parseMoveJ(text string) (Command, error) {
	m := movejRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("couldn't find joint values in %q", text)
	}
	q, err := parseNumbers(m[1])
	if err != nil {
		return nil, err
	}
	if len(q) != robot.NumJoints {
		return nil, fmt.Errorf("want %d joint values, got %d", robot.NumJoints, len(q))
	}
	cmd := MoveJoint{Target: robot.Joints(q)}

	rest := strings.TrimSpace(m[2])
	if rest == "" {
		return cmd, nil
	}
	if !strings.HasPrefix(rest, ",") {
		return nil, fmt.Errorf("unexpected %q after joint values", rest)
	}

	values := make(map[string]float64)
	keyword := false
	for i, arg := range strings.Split(rest[1:], ",") {
		arg = strings.TrimSpace(arg)
		var name string
		if k, v, ok := strings.Cut(arg, "="); ok {
			name, arg, keyword = strings.TrimSpace(k), strings.TrimSpace(v), true
			if !slices.Contains(movejParams, name) {
				return nil, fmt.Errorf("unknown movej argument %q", name)
			}
		} else {
			if keyword {
				return nil, fmt.Errorf("positional argument %q after keyword argument", arg)
			}
			if i >= len(movejParams) {
				return nil, fmt.Errorf("too many movej arguments")
			}
			name = movejParams[i]
		}
		if _, dup := values[name]; dup {
			return nil, fmt.Errorf("movej argument %s given twice", name)
		}
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s value %q", name, arg)
		}
		values[name] = v
	}

	if values["t"] != 0 || values["r"] != 0 {
		return nil, fmt.Errorf("time (t) and blend radius (r) are not supported")
	}
	cmd.Accel, cmd.Speed = values["a"], values["v"]
	return cmd, nil
}

func parseNumbers(list string) ([]float64, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	fields := strings.Split(list, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

// FromCommands wraps already-built commands as parse entries, so one-off
// operations run through the same sequencer as scripts.
func FromCommands(cmds ...Command) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for i, c := range cmds {
			if !yield(Entry{Line: i + 1, Text: c.String(), Command: c}) {
				return
			}
		}
	}
}
