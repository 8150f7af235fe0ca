package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/gwillem/screwcell/pkg/script"
	"github.com/gwillem/screwcell/pkg/tool"
)

type ToolCommand struct {
	Position float64 `long:"position" description:"Shank position in mm (0-55)"`
	Force    float64 `long:"force" description:"Shank force in N (0-200)"`
	Length   float64 `long:"length" description:"Screwing length in mm (0-55)"`
	Torque   float64 `long:"torque" description:"Torque in Nm (0-5)"`
	Defaults bool    `long:"defaults" description:"Use defaults for missing values instead of prompting"`

	Args struct {
		Op string `positional-arg-name:"operation" required:"yes" description:"move-shank, pick, premount, tighten or loosen"`
	} `positional-args:"yes"`
}

// toolParam is one numeric parameter of a tool operation.
type toolParam struct {
	flag  string
	label string
	def   float64
	max   float64
}

var (
	paramPosition = toolParam{"position", "Shank position (mm)", 20, tool.MaxShankMm}
	paramForce    = toolParam{"force", "Shank force (N)", tool.DefaultForceN, tool.MaxForceN}
)

func lengthParam(def float64) toolParam {
	return toolParam{"length", "Screwing length (mm)", def, tool.MaxLengthMm}
}

func torqueParam(def float64) toolParam {
	return toolParam{"torque", "Torque (Nm)", def, tool.MaxTorqueNm}
}

// toolOps lists each operation's parameters and how to build its command.
var toolOps = map[string]struct {
	params []toolParam
	build  func(v []float64) script.Command
}{
	"move-shank": {
		[]toolParam{paramPosition},
		func(v []float64) script.Command { return script.MoveShank{PositionMm: v[0]} },
	},
	"pick": {
		[]toolParam{paramForce, lengthParam(tool.DefaultPickLengthMm)},
		func(v []float64) script.Command { return script.PickScrew{ForceN: v[0], LengthMm: v[1]} },
	},
	"premount": {
		[]toolParam{paramForce, lengthParam(tool.DefaultPremountLength), torqueParam(tool.DefaultPremountTorque)},
		func(v []float64) script.Command {
			return script.PremountScrew{ForceN: v[0], LengthMm: v[1], TorqueNm: v[2]}
		},
	},
	"tighten": {
		[]toolParam{paramForce, lengthParam(tool.DefaultTightenLength), torqueParam(tool.DefaultTightenTorque)},
		func(v []float64) script.Command {
			return script.TightenScrew{ForceN: v[0], LengthMm: v[1], TorqueNm: v[2]}
		},
	},
	"loosen": {
		[]toolParam{paramForce, lengthParam(tool.DefaultLoosenLength)},
		func(v []float64) script.Command { return script.LoosenScrew{ForceN: v[0], LengthMm: v[1]} },
	},
}

func (c *ToolCommand) Execute(args []string) error {
	op, ok := toolOps[c.Args.Op]
	if !ok {
		return fmt.Errorf("unknown operation %q (want move-shank, pick, premount, tighten or loosen)", c.Args.Op)
	}

	values := make([]float64, len(op.params))
	var missing []int
	for i, p := range op.params {
		if v, set := c.flagValue(p.flag); set {
			values[i] = v
			continue
		}
		values[i] = p.def
		missing = append(missing, i)
	}

	if len(missing) > 0 && !c.Defaults {
		if err := promptParams(c.Args.Op, op.params, missing, values); err != nil {
			return err
		}
	}

	cmd := op.build(values)
	fmt.Println(headerStyle.Render(cmd.String()))
	return runSequence(script.FromCommands(cmd))
}

// flagValue returns the flag's value if the operator passed it.
func (c *ToolCommand) flagValue(name string) (float64, bool) {
	cmd := parser.Find("tool")
	if cmd == nil {
		return 0, false
	}
	opt := cmd.FindOptionByLongName(name)
	if opt == nil || !opt.IsSet() {
		return 0, false
	}
	switch name {
	case "position":
		return c.Position, true
	case "force":
		return c.Force, true
	case "length":
		return c.Length, true
	case "torque":
		return c.Torque, true
	}
	return 0, false
}

// promptParams asks for the parameters at the missing indexes, pre-filled
// with their defaults.
func promptParams(opName string, params []toolParam, missing []int, values []float64) error {
	inputs := make([]string, len(params))
	fields := make([]huh.Field, 0, len(missing))
	for _, i := range missing {
		p := params[i]
		inputs[i] = strconv.FormatFloat(values[i], 'f', -1, 64)
		fields = append(fields, huh.NewInput().
			Title(p.label).
			Description(fmt.Sprintf("0 - %g", p.max)).
			Value(&inputs[i]).
			Validate(func(s string) error {
				_, err := parseParam(s, p.max)
				return err
			}))
	}

	form := huh.NewForm(huh.NewGroup(fields...).Title(strings.ReplaceAll(opName, "-", " ")))
	if err := form.Run(); err != nil {
		return errCanceled
	}

	for _, i := range missing {
		v, err := parseParam(inputs[i], params[i].max)
		if err != nil {
			return err
		}
		values[i] = v
	}
	return nil
}

func parseParam(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if v < 0 || v > limit {
		return 0, fmt.Errorf("must be between 0 and %g", limit)
	}
	return v, nil
}
