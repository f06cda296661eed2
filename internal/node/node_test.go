package node

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/compressedheaders/internal/config"
	headergrpc "github.com/yourusername/compressedheaders/internal/grpc"
	"github.com/yourusername/compressedheaders/internal/headertest"
	"github.com/yourusername/compressedheaders/internal/lightclient"
	"github.com/yourusername/compressedheaders/internal/p2p"
	"github.com/yourusername/compressedheaders/internal/storage"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Port = "0"
	cfg.GRPC.Enabled = true
	cfg.GRPC.Address = "127.0.0.1:0"
	cfg.P2P.Enabled = true
	cfg.P2P.ListenAddr = "/ip4/127.0.0.1/tcp/0"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Address = "127.0.0.1:0"
	return cfg
}

func TestNodeSyncsAndServes(t *testing.T) {
	chain := headertest.NewChain(40)
	source := headertest.NewNode(chain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	peer, err := p2p.NewNetwork(ctx, p2p.Config{ListenAddr: "/ip4/127.0.0.1/tcp/0"}, storage.NewCompactStore(), nil)
	require.NoError(t, err)
	defer peer.Stop()

	cfg := testConfig()
	cfg.P2P.Peers = []string{peer.Addrs()[0], "/ip4/127.0.0.1/tcp/1"}
	nd, err := New(ctx, cfg, source)
	require.NoError(t, err)
	require.NoError(t, nd.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- nd.Run(ctx) }()

	client := lightclient.New("http://" + nd.ServerAddr() + "/bitcoin-headers")
	require.Eventually(t, func() bool {
		height, err := client.Height(ctx)
		return err == nil && height == 34
	}, 10*time.Second, 10*time.Millisecond)

	headers, err := client.Headers(ctx, 0, 34)
	require.NoError(t, err)
	assert.Equal(t, headertest.IDs(chain[:34]), headertest.IDs(headers))

	gc, err := headergrpc.Dial(nd.GRPCAddr())
	require.NoError(t, err)
	defer gc.Close()
	info, err := gc.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(34), info.SyncedHeaders)
	assert.Equal(t, uint64(39), info.TipHeight)

	require.Equal(t, 1, nd.P2P().PeerCount())
	length, err := peer.FetchLength(ctx, nd.P2P().ID())
	require.NoError(t, err)
	assert.Equal(t, nd.Store().Len(), length)

	resp, err := http.Get("http://" + nd.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "compressedheaders_synced_headers 34")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("node did not stop")
	}
	require.NoError(t, nd.Stop(context.Background()))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Node.Network = "moonnet"
	_, err := New(context.Background(), cfg, headertest.NewNode(nil))
	assert.Error(t, err)
}
