// Package script turns robot program text into typed cell commands.
package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gwillem/screwcell/pkg/robot"
)

// Kind identifies a command variant.
type Kind int

const (
	KindMoveJoint Kind = iota
	KindMoveShank
	KindPickScrew
	KindPremountScrew
	KindTightenScrew
	KindLoosenScrew
)

// Directive returns the script keyword of the kind.
func (k Kind) Directive() string {
	switch k {
	case KindMoveJoint:
		return "movej"
	case KindMoveShank:
		return "move_shank"
	case KindPickScrew:
		return "pick_screw"
	case KindPremountScrew:
		return "premount_screw"
	case KindTightenScrew:
		return "tighten_screw"
	case KindLoosenScrew:
		return "loosen_screw"
	default:
		return "unknown"
	}
}

// IsMotion reports whether the kind moves the arm.
func (k Kind) IsMotion() bool {
	return k == KindMoveJoint
}

// Command is one parsed directive. Values are immutable once parsed.
type Command interface {
	Kind() Kind
	// String renders the command as a script line.
	String() string
}

// MoveJoint moves the arm to a joint configuration. Zero Speed or Accel
// means the cell default.
type MoveJoint struct {
	Target robot.Joints
	Speed  float64
	Accel  float64
}

func (MoveJoint) Kind() Kind { return KindMoveJoint }

func (c MoveJoint) String() string {
	var b strings.Builder
	b.WriteString("movej([")
	for i, v := range c.Target {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(num(v))
	}
	b.WriteString("]")
	if c.Accel != 0 {
		b.WriteString(", a=" + num(c.Accel))
	}
	if c.Speed != 0 {
		b.WriteString(", v=" + num(c.Speed))
	}
	b.WriteString(")")
	return b.String()
}

// MoveShank moves the screwdriver shank.
type MoveShank struct {
	PositionMm float64
}

func (MoveShank) Kind() Kind       { return KindMoveShank }
func (c MoveShank) String() string { return call(KindMoveShank, c.PositionMm) }

// PickScrew picks up a screw.
type PickScrew struct {
	ForceN   float64
	LengthMm float64
}

func (PickScrew) Kind() Kind       { return KindPickScrew }
func (c PickScrew) String() string { return call(KindPickScrew, c.ForceN, c.LengthMm) }

// PremountScrew pre-mounts a screw.
type PremountScrew struct {
	ForceN   float64
	LengthMm float64
	TorqueNm float64
}

func (PremountScrew) Kind() Kind { return KindPremountScrew }
func (c PremountScrew) String() string {
	return call(KindPremountScrew, c.ForceN, c.LengthMm, c.TorqueNm)
}

// TightenScrew tightens a screw.
type TightenScrew struct {
	ForceN   float64
	LengthMm float64
	TorqueNm float64
}

func (TightenScrew) Kind() Kind { return KindTightenScrew }
func (c TightenScrew) String() string {
	return call(KindTightenScrew, c.ForceN, c.LengthMm, c.TorqueNm)
}

// LoosenScrew loosens a screw.
type LoosenScrew struct {
	ForceN   float64
	LengthMm float64
}

func (LoosenScrew) Kind() Kind       { return KindLoosenScrew }
func (c LoosenScrew) String() string { return call(KindLoosenScrew, c.ForceN, c.LengthMm) }

func call(k Kind, args ...float64) string {
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = num(v)
	}
	return fmt.Sprintf("%s(%s)", k.Directive(), strings.Join(parts, ", "))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
