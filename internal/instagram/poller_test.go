package instagram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/transport"
)

// fakeClock records simulated sleeps instead of blocking.
type fakeClock struct {
	sleeps []time.Duration
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) total() time.Duration {
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

func newPollerFor(t *testing.T, h http.HandlerFunc, clock *fakeClock) *Poller {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	api, err := transport.New(transport.Config{Platform: "instagram", BaseURL: srv.URL, Auth: transport.AuthQuery, Token: "ig-token", RetryCount: 0})
	require.NoError(t, err)
	return NewPoller(api, DefaultPollConfig(), clock.sleep, nil)
}

func TestPollerErrorStopsImmediately(t *testing.T) {
	var polls atomic.Int32
	clock := &fakeClock{}
	p := newPollerFor(t, func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.Write([]byte(`{"status_code":"ERROR","status":"Error: Media upload has failed with error code 2207026","id":"c1"}`))
	}, clock)

	err := p.Wait(context.Background(), "c1")
	require.Error(t, err)
	var perr *publish.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, publish.KindProcessing, perr.Kind)
	assert.Contains(t, perr.Message, "2207026")
	assert.EqualValues(t, 1, polls.Load())
	assert.Empty(t, clock.sleeps)
}

func TestPollerTimesOutAfterBudget(t *testing.T) {
	var polls atomic.Int32
	clock := &fakeClock{}
	p := newPollerFor(t, func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.Write([]byte(`{"status_code":"IN_PROGRESS","status":"In Progress: Media is still being processed."}`))
	}, clock)

	err := p.Wait(context.Background(), "c1")
	var perr *publish.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, publish.KindProcessing, perr.Kind)
	assert.Contains(t, perr.Message, StateTimeout)

	s := time.Second
	assert.Equal(t, []time.Duration{5 * s, 10 * s, 15 * s, 20 * s, 25 * s, 30 * s, 30 * s, 30 * s, 15 * s}, clock.sleeps)
	assert.Equal(t, 180*time.Second, clock.total())
	assert.EqualValues(t, len(clock.sleeps)+1, polls.Load())
}

func TestPollerReadySynonyms(t *testing.T) {
	for _, code := range []string{"FINISHED", "READY", "SUCCEEDED", "finished"} {
		t.Run(code, func(t *testing.T) {
			var polls atomic.Int32
			clock := &fakeClock{}
			p := newPollerFor(t, func(w http.ResponseWriter, r *http.Request) {
				if polls.Add(1) < 3 {
					w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
					return
				}
				w.Write([]byte(`{"status_code":"` + code + `"}`))
			}, clock)
			require.NoError(t, p.Wait(context.Background(), "c1"))
			assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, clock.sleeps)
		})
	}
}

func TestPollerFallsBackToReducedFields(t *testing.T) {
	var fields []string
	clock := &fakeClock{}
	p := newPollerFor(t, func(w http.ResponseWriter, r *http.Request) {
		f := r.URL.Query().Get("fields")
		fields = append(fields, f)
		if f == fullStatusFields {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"(#100) Tried accessing nonexisting field (processing_progress)","code":100}}`))
			return
		}
		w.Write([]byte(`{"status":"Finished: Media has been uploaded and it is ready to be published."}`))
	}, clock)

	require.NoError(t, p.Wait(context.Background(), "c1"))
	assert.Equal(t, []string{fullStatusFields, reducedStatusFields}, fields)
	assert.Empty(t, clock.sleeps)
}

func TestPollerToleratesTransientPollFailure(t *testing.T) {
	var polls atomic.Int32
	clock := &fakeClock{}
	p := newPollerFor(t, func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		if n <= 2 { // both field sets fail on the first poll
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status_code":"FINISHED"}`))
	}, clock)

	require.NoError(t, p.Wait(context.Background(), "c1"))
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.sleeps)
}

func TestPollerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{}
	p := newPollerFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
	}, clock)
	p.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	assert.ErrorIs(t, p.Wait(ctx, "c1"), context.Canceled)
}
