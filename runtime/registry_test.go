package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corebank/runtime"
)

type pinger interface {
	Ping() string
}

type pingService struct{}

func (pingService) Ping() string { return "pong" }

func TestRegistryLookup(t *testing.T) {
	reg := runtime.NewRegistry()
	reg.Put("ping", pingService{})

	svc, err := runtime.Lookup[pinger](reg, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", svc.Ping())

	_, err = runtime.Lookup[pinger](reg, "missing")
	assert.Error(t, err)

	_, err = runtime.Lookup[int](reg, "ping")
	assert.Error(t, err, "a type mismatch must not pass the assertion")
}

func TestRegistryReplace(t *testing.T) {
	reg := runtime.NewRegistry()
	reg.Put("n", 1)
	reg.Put("n", 2)

	n, err := runtime.Lookup[int](reg, "n")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "a re-put replaces the registration")
}
