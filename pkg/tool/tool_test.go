package tool

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/screwcell/pkg/fault"
)

type recorder struct {
	mu     sync.Mutex
	paths  []string
	status int
	body   string
}

func (r *recorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		user, pass, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "pw", pass)

		r.mu.Lock()
		r.paths = append(r.paths, req.URL.Path)
		status, body := r.status, r.body
		r.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

type busyFlag bool

func (b busyFlag) IsBusy() bool { return bool(b) }

func newTestClient(t *testing.T, rec *recorder) *Client {
	t.Helper()
	srv := httptest.NewServer(rec.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Username: "admin", Password: "pw", ToolID: 0}, busyFlag(false), nil)
}

func TestOperations_Paths(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec)
	ctx := context.Background()

	require.NoError(t, c.MoveShank(ctx, 20))
	require.NoError(t, c.PickScrew(ctx, 25, 10))
	require.NoError(t, c.PremountScrew(ctx, 25, 25, 0.5))
	require.NoError(t, c.TightenScrew(ctx, 25, 14, 2))
	require.NoError(t, c.LoosenScrew(ctx, 25, 8))

	assert.Equal(t, []string{
		"/api/dc/sd/move_shank/0/20",
		"/api/dc/sd/pickup_screw/0/25/10",
		"/api/dc/sd/premount/0/25/25/0.5",
		"/api/dc/sd/tighten/0/25/14/2",
		"/api/dc/sd/loosen/0/25/8",
	}, rec.calls())
}

func TestMoveShank_Range(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec)
	ctx := context.Background()

	for _, pos := range []float64{-0.001, -10, 55.001, 100, math.NaN(), math.Inf(1)} {
		err := c.MoveShank(ctx, pos)
		assert.True(t, fault.Is(err, fault.Validation), "position %v: %v", pos, err)
	}
	assert.Empty(t, rec.calls(), "rejected positions must not reach the endpoint")

	for _, pos := range []float64{0, 0.5, 27.5, 55} {
		assert.NoError(t, c.MoveShank(ctx, pos), "position %v", pos)
	}
	assert.Len(t, rec.calls(), 4)
}

func TestOperations_ValidateParams(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"negative force", func() error { return c.PickScrew(ctx, -1, 10) }},
		{"length too long", func() error { return c.LoosenScrew(ctx, 25, 80) }},
		{"torque too high", func() error { return c.TightenScrew(ctx, 25, 10, 9) }},
		{"premount torque", func() error { return c.PremountScrew(ctx, 25, 10, -0.1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, fault.Is(tt.call(), fault.Validation))
		})
	}
	assert.Empty(t, rec.calls())
}

func TestRemoteFailure(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError, body: "torque fault\n"}
	c := newTestClient(t, rec)

	err := c.TightenScrew(context.Background(), 25, 14, 2)
	require.Error(t, err)

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fault.RemoteFailure, fe.Kind)
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.Equal(t, "torque fault", fe.Body)
}

func TestLinkUnavailable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, nil, nil)
	err := c.MoveShank(context.Background(), 10)
	assert.True(t, fault.Is(err, fault.LinkUnavailable), "%v", err)
}

func TestIsBusy_Delegates(t *testing.T) {
	assert.True(t, New(Config{}, busyFlag(true), nil).IsBusy())
	assert.False(t, New(Config{}, busyFlag(false), nil).IsBusy())
	assert.False(t, New(Config{}, nil, nil).IsBusy())
}
