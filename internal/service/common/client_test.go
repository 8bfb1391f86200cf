//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	api "github.com/oshokin/shake-couplet/internal/api/grpc/shake"
	"github.com/oshokin/shake-couplet/internal/config"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestDial_Options verifies defaults and option overrides without contacting a server.
func TestDial_Options(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "127.0.0.1:1")
	require.NoError(t, err)

	defer func() {
		require.NoError(t, c.Close())
	}()

	require.Equal(t, config.DefaultTimeout, c.callTimeout)

	c2, err := Dial(context.Background(), "127.0.0.1:1", WithCallTimeout(time.Second), WithCallTimeout(0), WithOrigin("me@box"))
	require.NoError(t, err)

	defer func() {
		require.NoError(t, c2.Close())
	}()

	require.Equal(t, time.Second, c2.callTimeout)
	require.Equal(t, "me@box", c2.origin)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_streamContext checks that the origin travels as outgoing metadata.
func TestClient_streamContext(t *testing.T) {
	t.Parallel()

	c := &Client{origin: "me@box"}

	md, ok := metadata.FromOutgoingContext(c.streamContext(context.Background()))
	require.True(t, ok)
	require.Equal(t, []string{"me@box"}, md.Get(api.OriginMetadataKey))

	_, ok = metadata.FromOutgoingContext(new(Client).streamContext(context.Background()))
	require.False(t, ok)
}

// TestClient_CloseNil ensures Close on a zero client is a no-op.
func TestClient_CloseNil(t *testing.T) {
	t.Parallel()

	var c *Client
	require.NoError(t, c.Close())
	require.NoError(t, new(Client).Close())
}
