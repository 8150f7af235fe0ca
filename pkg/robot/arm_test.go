package robot

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/screwcell/pkg/fault"
	"github.com/gwillem/screwcell/pkg/link"
)

func TestMoving(t *testing.T) {
	tests := []struct {
		name  string
		state JointState
		want  bool
	}{
		{"at rest", JointState{}, false},
		{"velocity over threshold", JointState{Velocity: Joints{0, 0, 0.006, 0, 0, 0}}, true},
		{"negative velocity", JointState{Velocity: Joints{0, 0, 0, 0, 0, -0.01}}, true},
		{"velocity at threshold", JointState{Velocity: Joints{0.005, 0.005, 0, 0, 0, 0}}, false},
		{"position delta over threshold", JointState{Target: Joints{1.02}, Actual: Joints{1.0}}, true},
		{"position delta at threshold", JointState{Target: Joints{0, 0.01}, Actual: Joints{0, 0}}, false},
		{"both small", JointState{
			Target:   Joints{1, 1, 1, 1, 1, 1},
			Actual:   Joints{1.009, 0.995, 1, 1, 1, 1},
			Velocity: Joints{0.004, -0.004, 0, 0, 0, 0},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Moving(tt.state))
		})
	}
}

// fakeLink is an in-memory Link.
type fakeLink struct {
	mu     sync.Mutex
	state  JointState
	err    error
	sent   []string
	closed bool
}

func (f *fakeLink) Send(script string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, script)
	return nil
}

func (f *fakeLink) Latest() (JointState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.err
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// fakeDialer hands out links and counts dials. A nil entry fails the dial.
type fakeDialer struct {
	mu    sync.Mutex
	links []*fakeLink
	dials int
}

func (d *fakeDialer) dial(ctx context.Context, addr string) (Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.links) == 0 {
		return nil, errors.New("connection refused")
	}
	l := d.links[0]
	d.links = d.links[1:]
	if l == nil {
		return nil, errors.New("connection refused")
	}
	return l, nil
}

func TestArm_ConnectIsLazyAndIdempotent(t *testing.T) {
	fl := &fakeLink{}
	d := &fakeDialer{links: []*fakeLink{nil, fl}}
	arm := NewArm(Config{Host: "arm", Dial: d.dial}, nil)
	ctx := context.Background()

	assert.Equal(t, link.Disconnected, arm.Status().State())
	assert.False(t, arm.Connect(ctx))
	assert.Error(t, arm.Status().LastError())

	assert.True(t, arm.Connect(ctx))
	assert.True(t, arm.Connect(ctx))
	assert.Equal(t, 2, d.dials)
	assert.Equal(t, link.Connected, arm.Status().State())
}

func TestArm_ReconnectsAfterLoss(t *testing.T) {
	first, second := &fakeLink{}, &fakeLink{}
	d := &fakeDialer{links: []*fakeLink{first, second}}
	arm := NewArm(Config{Host: "arm", Dial: d.dial}, nil)
	ctx := context.Background()

	require.True(t, arm.Connect(ctx))
	first.fail(errors.New("broken pipe"))

	_, err := arm.IsPhysicallyMoving(false)
	assert.True(t, fault.Is(err, fault.LinkUnavailable))
	assert.Equal(t, link.Disconnected, arm.Status().State())
	assert.True(t, first.closed)

	require.NoError(t, arm.MoveJ(ctx, Joints{}, 0.5, 0.3))
	assert.Equal(t, 2, d.dials)
	assert.Len(t, second.sent, 1)
}

func TestArm_MoveJ(t *testing.T) {
	fl := &fakeLink{}
	arm := NewArm(Config{Host: "arm", Dial: (&fakeDialer{links: []*fakeLink{fl}}).dial}, nil)

	require.NoError(t, arm.MoveJ(context.Background(), Joints{0.1, -0.2, 1, 0, 0, 3.14}, 0.5, 0.3))
	require.Len(t, fl.sent, 1)
	assert.Equal(t, "movej([0.1, -0.2, 1, 0, 0, 3.14], a=0.3, v=0.5)\n", fl.sent[0])
}

func TestArm_MoveJ_NotConnected(t *testing.T) {
	arm := NewArm(Config{Host: "arm", Dial: (&fakeDialer{}).dial}, nil)
	err := arm.MoveJ(context.Background(), Joints{}, 0.5, 0.3)
	assert.True(t, fault.Is(err, fault.LinkUnavailable), "%v", err)
}

func TestArm_MoveJ_Validates(t *testing.T) {
	d := &fakeDialer{}
	arm := NewArm(Config{Host: "arm", Dial: d.dial}, nil)
	ctx := context.Background()

	assert.True(t, fault.Is(arm.MoveJ(ctx, Joints{math.NaN()}, 0.5, 0.3), fault.Validation))
	assert.True(t, fault.Is(arm.MoveJ(ctx, Joints{}, 0, 0.3), fault.Validation))
	assert.True(t, fault.Is(arm.MoveJ(ctx, Joints{}, 0.5, -1), fault.Validation))
	assert.Zero(t, d.dials)
}

func TestArm_IsPhysicallyMoving(t *testing.T) {
	fl := &fakeLink{state: JointState{Velocity: Joints{0.01}}}
	arm := NewArm(Config{Host: "arm", Dial: (&fakeDialer{links: []*fakeLink{fl}}).dial}, nil)
	require.True(t, arm.Connect(context.Background()))

	moving, err := arm.IsPhysicallyMoving(true)
	require.NoError(t, err)
	assert.True(t, moving)

	fl.mu.Lock()
	fl.state = JointState{}
	fl.mu.Unlock()
	moving, err = arm.IsPhysicallyMoving(false)
	require.NoError(t, err)
	assert.False(t, moving)
}

func TestArm_IsPhysicallyMovingPanicsBeforeConnect(t *testing.T) {
	arm := NewArm(Config{Host: "arm", Dial: (&fakeDialer{}).dial}, nil)
	assert.Panics(t, func() { _, _ = arm.IsPhysicallyMoving(false) })

	assert.False(t, arm.Connect(context.Background()))
	assert.Panics(t, func() { _, _ = arm.IsPhysicallyMoving(false) }, "a failed connect does not initialize")
}

func encodeState(s JointState) []byte {
	pkt := make([]byte, minPacketSize)
	binary.BigEndian.PutUint32(pkt, uint32(len(pkt)))
	binary.BigEndian.PutUint64(pkt[offTime:], math.Float64bits(s.Time))
	for _, f := range []struct {
		off int
		j   Joints
	}{{offQTarget, s.Target}, {offQActual, s.Actual}, {offQDActual, s.Velocity}} {
		for i, v := range f.j {
			binary.BigEndian.PutUint64(pkt[f.off+8*i:], math.Float64bits(v))
		}
	}
	return pkt
}

func TestDecodeState(t *testing.T) {
	want := JointState{
		Time:     12.5,
		Target:   Joints{1, 2, 3, 4, 5, 6},
		Actual:   Joints{1.1, 2.1, 3.1, 4.1, 5.1, 6.1},
		Velocity: Joints{0, 0, 0.2, 0, 0, -0.1},
	}
	got, err := decodeState(encodeState(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = decodeState(make([]byte, minPacketSize-1))
	assert.Error(t, err)
}

// fakeController accepts one realtime client, streams state packets and
// records the script lines it receives.
func fakeController(t *testing.T, state JointState) (addr string, lines <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 8)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			buf := make([]byte, 1024)
			var acc strings.Builder
			for {
				n, err := conn.Read(buf)
				if err != nil {
					return
				}
				acc.Write(buf[:n])
				for {
					s := acc.String()
					i := strings.IndexByte(s, '\n')
					if i < 0 {
						break
					}
					out <- s[:i]
					acc.Reset()
					acc.WriteString(s[i+1:])
				}
			}
		}()

		pkt := encodeState(state)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := conn.Write(pkt); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestDialRealtime(t *testing.T) {
	state := JointState{Time: 1, Target: Joints{0.5}, Actual: Joints{0.5}}
	addr, lines := fakeController(t, state)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l, err := DialRealtime(ctx, addr)
	require.NoError(t, err)
	defer l.Close()

	got, err := l.Latest()
	require.NoError(t, err)
	assert.Equal(t, state, got)

	require.NoError(t, l.Send(MoveJScript(Joints{0.5}, 0.3, 0.5)))
	select {
	case line := <-lines:
		assert.Equal(t, "movej([0.5, 0, 0, 0, 0, 0], a=0.3, v=0.5)", line)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not receive the script line")
	}

	require.NoError(t, l.Close())
	_, err = l.Latest()
	assert.Error(t, err)
}

func TestDialRealtime_Refused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := DialRealtime(ctx, "127.0.0.1:1")
	assert.Error(t, err)
}
