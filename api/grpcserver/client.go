package grpcserver

import (
	"context"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the engine service over conn.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Call invokes method with req and returns the raw response.
func (c *Client) Call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Request builds a request from string fields.
func Request(kv map[string]string) *structpb.Struct {
	m := make(map[string]*structpb.Value, len(kv))
	for k, v := range kv {
		m[k] = str(v)
	}
	return object(m)
}

func (c *Client) Market(ctx context.Context) (*structpb.Struct, error) {
	return c.Call(ctx, "GetMarket", nil)
}

func (c *Client) Account(ctx context.Context, addr solana.PublicKey) (*structpb.Struct, error) {
	return c.Call(ctx, "GetAccount", Request(map[string]string{"account": addr.String()}))
}

func (c *Client) Book(ctx context.Context, side string, depth int) (*structpb.Struct, error) {
	return c.Call(ctx, "GetBook", Request(map[string]string{"side": side, "depth": strconv.Itoa(depth)}))
}
