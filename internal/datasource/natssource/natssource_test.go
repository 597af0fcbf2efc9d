package natssource

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/ragifylabs/ragify/internal/datasource"
	"github.com/ragifylabs/ragify/internal/model"
)

func startEmbeddedServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5*time.Second))
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestSource_BuffersPublishedMessages(t *testing.T) {
	srv := startEmbeddedServer(t)

	src, err := New(Config{
		Name:           "events",
		Subject:        "ragify.events",
		URL:            srv.ClientURL(),
		PrivacyLevel:   model.PrivacyPublic,
		AuthorityScore: 0.6,
		FreshnessScore: 1.0,
		BufferSize:     10,
	})
	require.NoError(t, err)
	defer src.Close()

	publisher, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer publisher.Close()

	require.NoError(t, publisher.Publish("ragify.events", []byte("deploy started")))
	require.NoError(t, publisher.Publish("ragify.events", []byte("deploy finished")))
	require.NoError(t, publisher.Flush())

	require.Eventually(t, func() bool {
		chunks, err := src.GetChunks(context.Background(), datasource.ChunkRequest{MaxChunks: 10})
		return err == nil && len(chunks) == 2
	}, 2*time.Second, 10*time.Millisecond)

	chunks, err := src.GetChunks(context.Background(), datasource.ChunkRequest{MaxChunks: 1})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "deploy finished", chunks[0].Content)
	require.Equal(t, "events", chunks[0].SourceRef.Name)
	require.Equal(t, model.SourceTypeRealtime, chunks[0].SourceRef.Type)
}

func TestSource_HealthAndClose(t *testing.T) {
	srv := startEmbeddedServer(t)

	src, err := New(Config{Name: "events", Subject: "ragify.events", URL: srv.ClientURL()})
	require.NoError(t, err)

	healthy, err := src.Health(context.Background())
	require.NoError(t, err)
	require.True(t, healthy)
	require.True(t, src.IsActive())

	require.NoError(t, src.Close())
	require.False(t, src.IsActive())
}
