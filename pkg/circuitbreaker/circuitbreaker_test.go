package circuitbreaker_test

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/pkg/circuitbreaker"
)

func TestCircuitBreaker(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker("test")
	require.Equal(t, "test", cb.Name())

	failure := func() (interface{}, error) { return nil, errors.New("failure") }
	for i := 0; i <= circuitbreaker.MaxNumOfFailingRequests; i++ {
		_, err := cb.Execute(failure)
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}
