package resilience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scatsroute/scatsroute/internal/resilience"
)

type fixedBreaker struct {
	state gobreaker.State
}

func (b fixedBreaker) State() gobreaker.State { return b.state }

func (b fixedBreaker) Counts() gobreaker.Counts { return gobreaker.Counts{Requests: 7} }

func TestRegistry_Probes(t *testing.T) {
	r := resilience.NewRegistry()
	fail := true
	r.RegisterProbe("redis", func(context.Context) error {
		if fail {
			return errors.New("connection refused")
		}
		return nil
	})
	r.RegisterProbe("postgres", func(context.Context) error { return nil })

	h, ok := r.Get("redis")
	require.True(t, ok)
	assert.Equal(t, resilience.StatusUnknown, h.Status)

	all := r.Check(context.Background())
	require.Len(t, all, 2)
	assert.Equal(t, "postgres", all[0].Name)
	assert.Equal(t, resilience.StatusHealthy, all[0].Status)
	assert.Equal(t, "redis", all[1].Name)
	assert.Equal(t, resilience.StatusUnhealthy, all[1].Status)
	assert.Equal(t, "connection refused", all[1].LastError)
	assert.Equal(t, resilience.StatusUnhealthy, resilience.Overall(all))

	fail = false
	all = r.Check(context.Background())
	assert.Equal(t, resilience.StatusHealthy, all[1].Status)
	assert.Equal(t, resilience.StatusHealthy, resilience.Overall(all))
}

func TestRegistry_Breakers(t *testing.T) {
	r := resilience.NewRegistry()
	r.RegisterBreaker("closed", fixedBreaker{gobreaker.StateClosed})
	r.RegisterBreaker("half", fixedBreaker{gobreaker.StateHalfOpen})

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, resilience.StatusHealthy, all[0].Status)
	assert.Equal(t, uint32(7), all[0].Counts.Requests)
	assert.Equal(t, resilience.StatusDegraded, all[1].Status)
	assert.Equal(t, resilience.StatusDegraded, resilience.Overall(all))

	r.RegisterBreaker("open", fixedBreaker{gobreaker.StateOpen})
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, resilience.StatusUnhealthy, resilience.Overall(r.All()))
}

func TestRegistry_UnknownDependency(t *testing.T) {
	r := resilience.NewRegistry()
	r.RecordSuccess("ghost")
	r.RecordFailure("ghost", errors.New("boom"))

	_, ok := r.Get("ghost")
	assert.False(t, ok)
	assert.Equal(t, resilience.StatusHealthy, resilience.Overall(r.All()))
}
