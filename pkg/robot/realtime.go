package robot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPort is the controller's realtime interface port.
const DefaultPort = 30003

// Realtime state packet layout: int32 size, then big-endian doubles.
const (
	offTime     = 4
	offQTarget  = 12
	offQDTarget = 60
	offQActual  = 252
	offQDActual = 300

	minPacketSize = offQDActual + NumJoints*8
	maxPacketSize = 1 << 16

	writeTimeout = 2 * time.Second
)

var errLinkClosed = errors.New("realtime: link closed")

// Link is an open connection to the arm controller.
type Link interface {
	// Send writes one URScript line.
	Send(script string) error
	// Latest returns the most recent state sample, or the error that ended
	// the connection.
	Latest() (JointState, error)
	Close() error
}

// Dialer opens a Link to addr. It returns once the first state sample has
// arrived.
type Dialer func(ctx context.Context, addr string) (Link, error)

// realtimeConn is a Link over the controller's realtime TCP interface.
type realtimeConn struct {
	conn net.Conn

	latest atomic.Pointer[JointState]
	first  chan struct{}
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// DialRealtime connects to the realtime interface at addr and waits for the
// first state packet.
func DialRealtime(ctx context.Context, addr string) (Link, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	c := &realtimeConn{
		conn:  conn,
		first: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.readLoop()

	select {
	case <-c.first:
		return c, nil
	case <-c.done:
		_, err := c.Latest()
		c.conn.Close()
		return nil, err
	case <-ctx.Done():
		c.Close()
		return nil, fmt.Errorf("realtime: waiting for first state packet: %w", ctx.Err())
	}
}

func (c *realtimeConn) readLoop() {
	defer close(c.done)

	var header [4]byte
	firstSeen := false
	for {
		if _, err := io.ReadFull(c.conn, header[:]); err != nil {
			c.setErr(fmt.Errorf("realtime: read header: %w", err))
			return
		}
		size := int(binary.BigEndian.Uint32(header[:]))
		if size < len(header) || size > maxPacketSize {
			c.setErr(fmt.Errorf("realtime: bad packet size %d", size))
			return
		}

		pkt := make([]byte, size)
		copy(pkt, header[:])
		if _, err := io.ReadFull(c.conn, pkt[len(header):]); err != nil {
			c.setErr(fmt.Errorf("realtime: read packet: %w", err))
			return
		}

		state, err := decodeState(pkt)
		if err != nil {
			// Short packets come from unrelated message types; skip them.
			continue
		}
		c.latest.Store(&state)
		if !firstSeen {
			firstSeen = true
			close(c.first)
		}
	}
}

func (c *realtimeConn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *realtimeConn) Send(script string) error {
	select {
	case <-c.done:
		_, err := c.Latest()
		return err
	default:
	}
	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := io.WriteString(c.conn, script); err != nil {
		err = fmt.Errorf("realtime: write: %w", err)
		c.setErr(err)
		return err
	}
	return nil
}

func (c *realtimeConn) Latest() (JointState, error) {
	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return JointState{}, err
	}
	p := c.latest.Load()
	if p == nil {
		return JointState{}, errors.New("realtime: no state received")
	}
	return *p, nil
}

func (c *realtimeConn) Close() error {
	c.setErr(errLinkClosed)
	return c.conn.Close()
}

// decodeState extracts the joint fields of one realtime state packet.
func decodeState(pkt []byte) (JointState, error) {
	if len(pkt) < minPacketSize {
		return JointState{}, fmt.Errorf("realtime: packet too short (%d bytes)", len(pkt))
	}
	s := JointState{
		Time:     readFloat(pkt, offTime),
		Target:   readJoints(pkt, offQTarget),
		Actual:   readJoints(pkt, offQActual),
		Velocity: readJoints(pkt, offQDActual),
	}
	return s, nil
}

func readFloat(b []byte, off int) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b[off : off+8]))
}

func readJoints(b []byte, off int) Joints {
	var j Joints
	for i := range NumJoints {
		j[i] = readFloat(b, off+8*i)
	}
	return j
}

// MoveJScript formats a joint-space move as one URScript line.
func MoveJScript(q Joints, accel, speed float64) string {
	parts := make([]string, NumJoints)
	for i, v := range q {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("movej([%s], a=%s, v=%s)\n",
		strings.Join(parts, ", "),
		strconv.FormatFloat(accel, 'f', -1, 64),
		strconv.FormatFloat(speed, 'f', -1, 64))
}
