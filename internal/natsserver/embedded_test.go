package natsserver_test

import (
	"testing"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-orchestrator/internal/config"
	"github.com/book-expert/voice-orchestrator/internal/natsserver"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	return testLogger
}

func TestStart_Disabled(t *testing.T) {
	t.Parallel()

	embedded, err := natsserver.Start(config.NATSConfig{}, newTestLogger(t))
	require.NoError(t, err)
	assert.Nil(t, embedded)
	assert.Empty(t, embedded.ClientURL())

	embedded.Shutdown()
}

func TestStart_ServesJetStream(t *testing.T) {
	t.Parallel()

	embedded, err := natsserver.Start(config.NATSConfig{
		Embedded:     true,
		EmbeddedPort: -1,
		StoreDir:     t.TempDir(),
	}, newTestLogger(t))
	require.NoError(t, err)
	require.NotNil(t, embedded)

	t.Cleanup(embedded.Shutdown)

	natsConnection, err := nats.Connect(embedded.ClientURL())
	require.NoError(t, err)

	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{Bucket: "PROBE"})
	require.NoError(t, err)

	_, err = kv.Put("key", []byte("value"))
	require.NoError(t, err)
}
