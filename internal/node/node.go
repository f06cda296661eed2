// Package node assembles the sync engine, the compact store and the servers
// reading from it.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/compressedheaders/internal/blockchain"
	"github.com/yourusername/compressedheaders/internal/config"
	headergrpc "github.com/yourusername/compressedheaders/internal/grpc"
	"github.com/yourusername/compressedheaders/internal/metrics"
	"github.com/yourusername/compressedheaders/internal/p2p"
	"github.com/yourusername/compressedheaders/internal/rpc"
	"github.com/yourusername/compressedheaders/internal/server"
	"github.com/yourusername/compressedheaders/internal/storage"
)

var log = logging.Logger("node")

const stopTimeout = 10 * time.Second

// Node owns one compact store, its single writer and every reader serving it.
type Node struct {
	cfg *config.Config

	store  *storage.CompactStore
	chain  *storage.ChainStorage
	syncer *blockchain.Syncer

	server  *server.Server
	grpc    *headergrpc.Server
	p2p     *p2p.Network
	metrics *metrics.Server

	stopOnce sync.Once
	stopErr  error
}

// New builds a node syncing from source. Nothing is started.
func New(ctx context.Context, cfg *config.Config, source rpc.HeaderSource) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	genesis, err := cfg.Node.Network.Genesis()
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	n := &Node{cfg: cfg, store: storage.NewCompactStore()}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		n.metrics = metrics.NewServer(cfg.Metrics.Address, reg)
	}

	n.chain, err = storage.NewChainStorage()
	if err != nil {
		return nil, err
	}
	opts := append(cfg.SyncOptions(), blockchain.WithMetrics(m))
	n.syncer, err = blockchain.NewSyncer(source, n.chain, n.store, genesis, opts...)
	if err != nil {
		n.chain.Close()
		return nil, err
	}

	n.server = server.NewServer(server.Config{
		Addr:           cfg.ServerAddr(),
		Path:           cfg.Server.Path,
		AllowedOrigins: cfg.Server.CORSOrigins,
	}, n.store, m)

	if cfg.GRPC.Enabled {
		n.grpc, err = headergrpc.NewServer(n.store, n.syncer, m)
		if err != nil {
			n.chain.Close()
			return nil, err
		}
	}
	if cfg.P2P.Enabled {
		n.p2p, err = p2p.NewNetwork(ctx, p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			NATPortMap: cfg.P2P.NATPortMap,
		}, n.store, m)
		if err != nil {
			n.chain.Close()
			return nil, err
		}
	}
	return n, nil
}

// Start opens every listener. The store is empty until Run syncs it.
func (n *Node) Start(ctx context.Context) error {
	if err := n.server.Start(ctx); err != nil {
		return fmt.Errorf("node: range server: %w", err)
	}
	if n.metrics != nil {
		if err := n.metrics.Start(ctx); err != nil {
			return fmt.Errorf("node: metrics: %w", err)
		}
	}
	if n.grpc != nil {
		if err := n.grpc.Start(ctx, n.cfg.GRPC.Address); err != nil {
			return fmt.Errorf("node: grpc: %w", err)
		}
	}
	if n.p2p != nil {
		if err := n.p2p.Start(); err != nil {
			return fmt.Errorf("node: p2p: %w", err)
		}
		for _, addr := range n.cfg.P2P.Peers {
			if _, err := n.p2p.ConnectToPeer(addr); err != nil {
				log.Warnw("dialing bootstrap peer", "addr", addr, "err", err)
			}
		}
	}
	log.Infow("node started", "network", n.cfg.Node.Network, "headers", "http://"+n.server.ListenAddr()+n.cfg.Server.Path)
	return nil
}

// Run syncs until ctx is done, then stops the servers.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.syncer.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return n.Stop(stopCtx)
	})

	err := g.Wait()
	// the syncer is the chain's only user and has returned
	if cerr := n.chain.Close(); cerr != nil {
		log.Warnw("closing chain storage", "err", cerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop closes every server. Safe to call more than once.
func (n *Node) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		var errs []error
		errs = append(errs, n.server.Stop(ctx))
		if n.grpc != nil {
			n.grpc.Stop()
		}
		if n.p2p != nil {
			errs = append(errs, n.p2p.Stop())
		}
		if n.metrics != nil {
			errs = append(errs, n.metrics.Stop(ctx))
		}
		n.stopErr = errors.Join(errs...)
		log.Info("node stopped")
	})
	return n.stopErr
}

// Store returns the node's compact store.
func (n *Node) Store() *storage.CompactStore {
	return n.store
}

// Syncer returns the node's sync engine.
func (n *Node) Syncer() *blockchain.Syncer {
	return n.syncer
}

// P2P returns the libp2p network, if enabled.
func (n *Node) P2P() *p2p.Network {
	return n.p2p
}

// ServerAddr returns the listen address of the range server.
func (n *Node) ServerAddr() string {
	return n.server.ListenAddr()
}

// GRPCAddr returns the listen address of the gRPC server, if enabled.
func (n *Node) GRPCAddr() string {
	if n.grpc == nil {
		return ""
	}
	return n.grpc.ListenAddr()
}

// MetricsAddr returns the listen address of the metrics server, if enabled.
func (n *Node) MetricsAddr() string {
	if n.metrics == nil {
		return ""
	}
	return n.metrics.ListenAddr()
}
