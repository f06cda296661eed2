// Package p2p serves the compact header store to libp2p peers.
package p2p

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/yourusername/compressedheaders/internal/metrics"
	"github.com/yourusername/compressedheaders/internal/server"
)

var log = logging.Logger("p2p")

// RangeProtocol is the stream protocol for range requests. A request is one
// line holding a Range header value, or an empty line to ask for the store
// length. The response is a status byte, a big-endian uint64 length and that
// many bytes: store bytes on success, an error message otherwise. An empty
// request is answered with an eight byte length as payload.
const RangeProtocol = protocol.ID("/compressedheaders/range/1.0.0")

const (
	maxRequestLine = 256
	maxErrorLength = 1 << 10
	streamTimeout  = time.Minute
)

// response status
const (
	statusOK byte = iota
	statusInvalid
	statusUnsupported
	statusNotSatisfiable
	statusInternal
)

// ErrMalformedResponse is returned when a peer violates the range protocol.
var ErrMalformedResponse = errors.New("p2p: malformed response")

// Config configures a Network.
type Config struct {
	// ListenAddr is the multiaddr to listen on, e.g. /ip4/0.0.0.0/tcp/4001
	ListenAddr string
	// NATPortMap enables NAT traversal through UPnP/NAT-PMP
	NATPortMap bool
}

// Network manages the libp2p host serving the store.
type Network struct {
	host    host.Host
	store   server.Store
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc

	// Peer management
	peers     map[peer.ID]bool
	peerMutex sync.RWMutex
}

// NewNetwork creates a new libp2p host serving store. m may be nil.
func NewNetwork(ctx context.Context, cfg Config, store server.Store, m *metrics.Metrics) (*Network, error) {
	addr, err := multiaddr.NewMultiaddr(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address: %w", err)
	}

	opts := []libp2p.Option{libp2p.ListenAddrs(addr)}
	if cfg.NATPortMap {
		opts = append(opts, libp2p.NATPortMap())
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	netCtx, cancel := context.WithCancel(ctx)
	n := &Network{
		host:    h,
		store:   store,
		metrics: m,
		ctx:     netCtx,
		cancel:  cancel,
		peers:   make(map[peer.ID]bool),
	}
	h.SetStreamHandler(RangeProtocol, n.handleRangeStream)
	return n, nil
}

// Start logs the host identity. Streams are handled from NewNetwork on.
func (n *Network) Start() error {
	log.Infow("p2p network started", "id", n.host.ID().String(), "addrs", n.Addrs())
	return nil
}

// Stop gracefully shuts down the network
func (n *Network) Stop() error {
	n.cancel()
	return n.host.Close()
}

// ID returns the host's peer ID.
func (n *Network) ID() peer.ID {
	return n.host.ID()
}

// Addrs returns the host's dialable addresses including the /p2p component.
func (n *Network) Addrs() []string {
	addrs := make([]string, 0, len(n.host.Addrs()))
	for _, addr := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", addr, n.host.ID()))
	}
	return addrs
}

// ConnectToPeer connects to a peer using its multiaddr
func (n *Network) ConnectToPeer(peerAddr string) (peer.ID, error) {
	addr, err := multiaddr.NewMultiaddr(peerAddr)
	if err != nil {
		return "", fmt.Errorf("invalid peer address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return "", fmt.Errorf("failed to parse peer info: %w", err)
	}
	if err := n.host.Connect(n.ctx, *info); err != nil {
		return "", fmt.Errorf("failed to connect to peer: %w", err)
	}

	n.peerMutex.Lock()
	n.peers[info.ID] = true
	n.peerMutex.Unlock()

	log.Infow("connected to peer", "peer", info.ID.String())
	return info.ID, nil
}

// PeerCount returns the number of peers connected through ConnectToPeer.
func (n *Network) PeerCount() int {
	n.peerMutex.RLock()
	defer n.peerMutex.RUnlock()
	return len(n.peers)
}

// FetchRange requests the bytes selected by spec, e.g. "bytes=0-80", from p.
func (n *Network) FetchRange(ctx context.Context, p peer.ID, spec string) ([]byte, error) {
	if spec == "" || strings.ContainsAny(spec, "\r\n") {
		return nil, fmt.Errorf("%w: %q", server.ErrInvalidRange, spec)
	}
	return n.request(ctx, p, spec)
}

// FetchLength asks p for the length of its store.
func (n *Network) FetchLength(ctx context.Context, p peer.ID) (uint64, error) {
	data, err := n.request(ctx, p, "")
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: length payload of %d bytes", ErrMalformedResponse, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (n *Network) request(ctx context.Context, p peer.ID, line string) ([]byte, error) {
	stream, err := n.host.NewStream(ctx, p, RangeProtocol)
	if err != nil {
		return nil, fmt.Errorf("opening stream to %s: %w", p, err)
	}
	defer stream.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	} else {
		_ = stream.SetDeadline(time.Now().Add(streamTimeout))
	}

	if _, err := io.WriteString(stream, line+"\n"); err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		_ = stream.Reset()
		return nil, err
	}

	var head [9]byte
	if _, err := io.ReadFull(stream, head[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	status, size := head[0], binary.BigEndian.Uint64(head[1:])
	if status != statusOK && size > maxErrorLength {
		return nil, fmt.Errorf("%w: error message of %d bytes", ErrMalformedResponse, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(stream, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if status == statusOK {
		return body, nil
	}
	return nil, statusError(status, string(body))
}

func (n *Network) handleRangeStream(stream network.Stream) {
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(streamTimeout))
	remote := stream.Conn().RemotePeer()

	line, err := bufio.NewReader(io.LimitReader(stream, maxRequestLine)).ReadString('\n')
	if err != nil {
		log.Debugw("reading range request", "peer", remote, "err", err)
		_ = stream.Reset()
		return
	}
	spec := strings.TrimSuffix(line, "\n")

	var (
		status = statusOK
		body   []byte
	)
	if spec == "" {
		body = binary.BigEndian.AppendUint64(nil, n.store.Len())
		n.metrics.RangeRequest(metrics.TransportP2P, metrics.ResultInfo)
	} else {
		body, err = n.readRange(spec)
		if err != nil {
			log.Debugw("rejecting range", "peer", remote, "range", spec, "err", err)
			status, body = errorStatus(err), []byte(err.Error())
			n.metrics.RangeRequest(metrics.TransportP2P, metrics.ResultRejected)
		} else {
			n.metrics.RangeRequest(metrics.TransportP2P, metrics.ResultOK)
		}
	}

	var head [9]byte
	head[0] = status
	binary.BigEndian.PutUint64(head[1:], uint64(len(body)))
	if _, err := stream.Write(head[:]); err != nil {
		log.Debugw("writing range response", "peer", remote, "err", err)
		_ = stream.Reset()
		return
	}
	if _, err := stream.Write(body); err != nil {
		log.Debugw("writing range response", "peer", remote, "err", err)
		_ = stream.Reset()
	}
}

func (n *Network) readRange(spec string) ([]byte, error) {
	rng, err := server.ParseRange(spec, n.store.Len())
	if err != nil {
		return nil, err
	}
	return n.store.ReadRange(rng.Start, rng.End)
}

func errorStatus(err error) byte {
	switch {
	case errors.Is(err, server.ErrInvalidRange):
		return statusInvalid
	case errors.Is(err, server.ErrUnsupportedRange):
		return statusUnsupported
	case errors.Is(err, server.ErrNotSatisfiable):
		return statusNotSatisfiable
	default:
		return statusInternal
	}
}

func statusError(status byte, msg string) error {
	switch status {
	case statusInvalid:
		return fmt.Errorf("%w: peer: %s", server.ErrInvalidRange, msg)
	case statusUnsupported:
		return fmt.Errorf("%w: peer: %s", server.ErrUnsupportedRange, msg)
	case statusNotSatisfiable:
		return fmt.Errorf("%w: peer: %s", server.ErrNotSatisfiable, msg)
	case statusInternal:
		return fmt.Errorf("p2p: peer failed: %s", msg)
	default:
		return fmt.Errorf("%w: status %d", ErrMalformedResponse, status)
	}
}
