package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yourusername/compressedheaders/pkg/types"
)

// Info is the decoded GetInfo response.
type Info struct {
	StoreBytes    uint64
	SyncedHeaders uint64
	TipHeight     uint64
}

// Client calls a remote HeaderService.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to a header service at target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.Dial(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", target, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// GetInfo fetches store and sync progress.
func (c *Client) GetInfo(ctx context.Context) (Info, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getInfoMethod, &emptypb.Empty{}, out); err != nil {
		return Info{}, err
	}
	fields := out.GetFields()
	return Info{
		StoreBytes:    uint64(fields[InfoStoreBytes].GetNumberValue()),
		SyncedHeaders: uint64(fields[InfoSyncedHeaders].GetNumberValue()),
		TipHeight:     uint64(fields[InfoTipHeight].GetNumberValue()),
	}, nil
}

// GetRange fetches the store bytes selected by spec, e.g. "bytes=-44".
func (c *Client) GetRange(ctx context.Context, spec string) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, getRangeMethod, wrapperspb.String(spec), out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// GetHeader fetches and decodes the header at height.
func (c *Client) GetHeader(ctx context.Context, height uint64) (types.BlockHeader, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, getHeaderMethod, wrapperspb.UInt64(height), out); err != nil {
		return types.BlockHeader{}, err
	}
	return types.DeserializeHeader(out.GetValue())
}
