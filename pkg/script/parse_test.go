package script

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/screwcell/pkg/fault"
	"github.com/gwillem/screwcell/pkg/robot"
)

func TestParse_SkipsUnrecognizedLines(t *testing.T) {
	src := "movej([0,0,0,0,0,0])\nbogus line\nmove_shank(30)\n"

	cmds, errs := Collect(Parse(src))
	assert.Empty(t, errs)
	require.Len(t, cmds, 2)
	assert.Equal(t, MoveJoint{}, cmds[0])
	assert.Equal(t, MoveShank{PositionMm: 30}, cmds[1])
}

func TestParse_MalformedArgument(t *testing.T) {
	entries := slices.Collect(Parse("move_shank(abc)"))
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Command)
	assert.True(t, fault.Is(entries[0].Err, fault.Parse), "%v", entries[0].Err)
	assert.Equal(t, 1, entries[0].Line)

	cmds, errs := Collect(Parse("move_shank(abc)"))
	assert.Empty(t, cmds)
	assert.Len(t, errs, 1)
}

func TestParse_Directives(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"  movej([0.1, -0.2, 1.5e0, 0, 0, 3.14], a=1.4, v=1.05)  ", MoveJoint{
			Target: robot.Joints{0.1, -0.2, 1.5, 0, 0, 3.14}, Accel: 1.4, Speed: 1.05,
		}},
		{"movej([1,2,3,4,5,6],v=0.2)", MoveJoint{Target: robot.Joints{1, 2, 3, 4, 5, 6}, Speed: 0.2}},
		{"movej([1,2,3,4,5,6],1.2,0.25,0,0)", MoveJoint{Target: robot.Joints{1, 2, 3, 4, 5, 6}, Accel: 1.2, Speed: 0.25}},
		{"movej( [1,2,3,4,5,6], 1.2, v=0.25) # approach", MoveJoint{Target: robot.Joints{1, 2, 3, 4, 5, 6}, Accel: 1.2, Speed: 0.25}},
		{"move_shank(12.5)", MoveShank{PositionMm: 12.5}},
		{"pick_screw(25, 10)", PickScrew{ForceN: 25, LengthMm: 10}},
		{"premount_screw(25, 25, 0.5)", PremountScrew{ForceN: 25, LengthMm: 25, TorqueNm: 0.5}},
		{"tighten_screw(25, 14, 2)", TightenScrew{ForceN: 25, LengthMm: 14, TorqueNm: 2}},
		{"loosen_screw(25, 8)", LoosenScrew{ForceN: 25, LengthMm: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			entries := slices.Collect(Parse(tt.line))
			require.Len(t, entries, 1)
			require.NoError(t, entries[0].Err)
			assert.Equal(t, tt.want, entries[0].Command)
		})
	}
}

func TestParse_ArgumentErrors(t *testing.T) {
	lines := []string{
		"movej([0,0,0])",
		"movej(p[0,0,0,0,0,x])",
		"movej(p[0.4, -0.2, 0.3, 0, 3.14, 0])",
		"movej(get_inverse_kin(p[0.4, -0.2, 0.3, 0, 3.14, 0]))",
		"movej([1,2,3,4,5,6], 1.2, 0.25, 2, 0)",
		"movej([1,2,3,4,5,6], r=0.01)",
		"movej([1,2,3,4,5,6], a=1, 0.3)",
		"movej([1,2,3,4,5,6], 1, 2, 0, 0, 9)",
		"movej([1,2,3,4,5,6], a=1, a=2)",
		"movej([1,2,3,4,5,6], x=1)",
		"movej([1,2,3,4,5,6] 1.2)",
		"move_shank()",
		"move_shank(1, 2)",
		"pick_screw(25)",
		"tighten_screw(25,,2)",
		"loosen_screw",
	}
	for _, line := range lines {
		entries := slices.Collect(Parse(line))
		require.Len(t, entries, 1, line)
		assert.True(t, fault.Is(entries[0].Err, fault.Parse), "%s: %v", line, entries[0].Err)
	}
}

func TestParse_MovelIsReported(t *testing.T) {
	src := "movel(p[0.4, -0.2, 0.3, 0, 3.14, 0], a=1.2, v=0.25)\nmove_shank(3)\n"

	entries := slices.Collect(Parse(src))
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].Command)
	assert.True(t, fault.Is(entries[0].Err, fault.Parse), "%v", entries[0].Err)
	assert.Contains(t, entries[0].Err.Error(), "movel")
	assert.Equal(t, MoveShank{PositionMm: 3}, entries[1].Command)
}

func TestParse_OutOfRangeIsNotAParseError(t *testing.T) {
	// range checks belong to the tool client at dispatch time
	cmds, errs := Collect(Parse("move_shank(99)"))
	assert.Empty(t, errs)
	assert.Equal(t, []Command{MoveShank{PositionMm: 99}}, cmds)
}

func TestParse_Restartable(t *testing.T) {
	seq := Parse("def prog():\n  movej([0,0,0,0,0,0])\n  move_shank(abc)\n  move_shank(3)\nend\n")
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{first[0].Line, first[1].Line, first[2].Line})
}

func TestParse_StopsEarly(t *testing.T) {
	n := 0
	for range Parse("move_shank(1)\nmove_shank(2)\nmove_shank(3)") {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestCommandString_RoundTrips(t *testing.T) {
	cmds := []Command{
		MoveJoint{Target: robot.Joints{0.5, -1, 0, 0, 0, 2}, Speed: 0.5, Accel: 0.3},
		MoveShank{PositionMm: 30},
		PremountScrew{ForceN: 25, LengthMm: 25, TorqueNm: 0.5},
	}
	for _, c := range cmds {
		got, errs := Collect(Parse(c.String()))
		require.Empty(t, errs, c.String())
		assert.Equal(t, []Command{c}, got)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.script")
	require.NoError(t, os.WriteFile(path, []byte("move_shank(5)\n"), 0644))

	seq, err := ParseFile(path)
	require.NoError(t, err)
	cmds, _ := Collect(seq)
	assert.Equal(t, []Command{MoveShank{PositionMm: 5}}, cmds)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestMacros(t *testing.T) {
	assert.Equal(t, []string{"screw-in", "screw-out"}, MacroNames())

	src, ok := Macro("screw-in")
	require.True(t, ok)
	cmds, errs := Collect(Parse(src))
	assert.Empty(t, errs)
	assert.Equal(t, []Command{
		TightenScrew{ForceN: 25, LengthMm: 14, TorqueNm: 2},
		LoosenScrew{ForceN: 25, LengthMm: 10},
	}, cmds)

	src, ok = Macro("screw-out")
	require.True(t, ok)
	cmds, _ = Collect(Parse(src))
	assert.Equal(t, []Command{
		TightenScrew{ForceN: 25, LengthMm: 15, TorqueNm: 0.3},
		LoosenScrew{ForceN: 25, LengthMm: 8},
	}, cmds)

	_, ok = Macro("nope")
	assert.False(t, ok)
}
