package bonjour_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/lanpeer/pkg/bonjour"
	"github.com/rescp17/lanpeer/pkg/provider/memory"
)

func TestRegistration_AdvertisesUntilStopped(t *testing.T) {
	network := memory.NewNetwork()
	added := make(chan bonjour.Identity, 1)
	reg := bonjour.NewRegistration(network.Provider("alpha"), "alice", "_chat._tcp", "", 5000, bonjour.RegisterHooks{
		Added: func(_ *bonjour.Registration, id bonjour.Identity, complete bool) {
			assert.True(t, complete)
			added <- id
		},
	}, opts()...)

	assert.Equal(t, "alice", reg.Name())
	assert.Equal(t, "local.", reg.Domain())
	assert.Equal(t, uint16(5000), reg.Port())
	assert.Empty(t, reg.RegisteredName())

	require.True(t, reg.Start())
	select {
	case id := <-added:
		assert.True(t, id.Equal(reg.Identity()))
	case <-timeoutC():
		t.Fatal("add hook did not fire")
	}
	assert.Equal(t, "alice", reg.RegisteredName())
	assert.Equal(t, []bonjour.Identity{reg.Identity()}, network.Instances())

	reg.Stop()
	require.Eventually(t, func() bool { return len(network.Instances()) == 0 }, waitFor, tick)
}

func TestRegistration_NameConflictIsReported(t *testing.T) {
	network := memory.NewNetwork()
	network.Publish("alice", "_chat._tcp", "", "elsewhere", 1)

	reg := bonjour.NewRegistration(network.Provider("alpha"), "alice", "_chat._tcp", "", 5000, bonjour.RegisterHooks{}, opts()...)
	defer reg.Stop()
	require.True(t, reg.Start())

	require.Eventually(t, func() bool { return reg.RegisteredName() == "alice (2)" }, waitFor, tick)
	assert.Equal(t, "alice", reg.Name(), "the requested identity is unchanged")
}

func TestRegistration_StartFailure(t *testing.T) {
	network := memory.NewNetwork()
	network.FailStarts(bonjour.KindRegister, errors.New("name server unavailable"))

	reg := bonjour.NewRegistration(network.Provider("alpha"), "alice", "_chat._tcp", "", 5000, bonjour.RegisterHooks{}, opts()...)
	assert.False(t, reg.Start())
	assert.False(t, reg.Active())
	assert.Empty(t, network.Instances(), "a failed registration leaves nothing advertised")
}

func TestRegistration_ReplyErrorStops(t *testing.T) {
	network := memory.NewNetwork()
	boom := errors.New("registration refused")
	network.FailReplies(bonjour.KindRegister, boom)

	stopped := make(chan error, 1)
	reg := bonjour.NewRegistration(network.Provider("alpha"), "alice", "_chat._tcp", "", 5000, bonjour.RegisterHooks{
		Stopped: func(_ *bonjour.Registration, err error) { stopped <- err },
		Added:   func(*bonjour.Registration, bonjour.Identity, bool) { t.Error("add must not fire on a failed reply") },
	}, opts()...)
	require.True(t, reg.Start())

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, boom)
	case <-timeoutC():
		t.Fatal("stop hook did not fire")
	}
	assert.False(t, reg.Active())
	require.Eventually(t, func() bool { return len(network.Instances()) == 0 }, waitFor, tick)
}
