package sensors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_SerializesRequests(t *testing.T) {
	h := NewHandle(CapabilityBLE)

	release, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Busy())

	acquired := make(chan struct{})

	go func() {
		second, err := h.Acquire(context.Background())
		if err == nil {
			close(acquired)
			second()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second request acquired while the first held the capability")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second request never acquired the capability")
	}
}

func TestHandle_AcquireHonorsContext(t *testing.T) {
	h := NewHandle(CapabilityLocation)

	release, err := h.Acquire(context.Background())
	require.NoError(t, err)

	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = h.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, IsCapabilityError(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCapabilityError(t *testing.T) {
	err := NewCapabilityError(CapabilityWiFi, ErrPermissionDenied, "wifi state not readable")

	assert.True(t, IsCapabilityError(err))
	assert.True(t, IsPermissionDenied(err))
	assert.Equal(t, "wifi: wifi state not readable: permission denied", err.Error())
	assert.False(t, IsCapabilityError(errors.New("plain")))
}
