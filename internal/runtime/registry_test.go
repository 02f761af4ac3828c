package runtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/rpcflow/internal/runtime/handlers"
)

func noopInvoker(context.Context, handlerpkg.RawCall) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func TestRegistryRegisterAndFind(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewHandlerEntry("device", "ping", noopInvoker, nil, nil)))
	require.NoError(t, reg.Register(NewHandlerEntry("device", "reboot", noopInvoker, nil, nil)))
	require.NoError(t, reg.Register(NewHandlerEntry("audio", "ping", noopInvoker, nil, nil)))

	entry, ok := reg.Find("device", "ping")
	require.True(t, ok)
	assert.Equal(t, "device", entry.Channel)
	assert.Equal(t, "ping", entry.Type)

	_, ok = reg.Find("device", "missing")
	assert.False(t, ok)
	_, ok = reg.Find("missing", "ping")
	assert.False(t, ok)

	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"audio", "device"}, reg.Channels())

	entries := reg.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "audio", entries[0].Channel)
	assert.Equal(t, "ping", entries[1].Type)
	assert.Equal(t, "reboot", entries[2].Type)
}

func TestRegistryRejectsBadEntries(t *testing.T) {
	reg := NewRegistry()

	assert.ErrorIs(t, reg.Register(nil), errspkg.ErrHandlerRequired)
	assert.ErrorIs(t, reg.Register(NewHandlerEntry("device", "ping", nil, nil, nil)), errspkg.ErrHandlerRequired)
	assert.ErrorIs(t, reg.Register(NewHandlerEntry("", "ping", noopInvoker, nil, nil)), errspkg.ErrChannelRequired)
	assert.ErrorIs(t, reg.Register(NewHandlerEntry("device", "", noopInvoker, nil, nil)), errspkg.ErrTypeRequired)

	require.NoError(t, reg.Register(NewHandlerEntry("device", "ping", noopInvoker, nil, nil)))
	err := reg.Register(NewHandlerEntry("device", "ping", noopInvoker, nil, nil))
	var configErr *errspkg.ConfigurationError
	require.ErrorAs(t, err, &configErr)
	assert.ErrorIs(t, err, errspkg.ErrDuplicateHandler)
	assert.Equal(t, 1, reg.Len())
}

func TestHandlerEntryInvoke(t *testing.T) {
	entry := NewHandlerEntry("device", "ping", noopInvoker, nil, nil)
	out, err := entry.Invoke(context.Background(), handlerpkg.RawCall{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out))
}
