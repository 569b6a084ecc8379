package dnsreconcile

import (
	"context"
	"encoding/json"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// Router is the L7 TCP router's capability set: read its current vhost map
// and atomically replace it.
type Router interface {
	Routes(ctx context.Context) (map[string]string, error)
	OverrideRoutes(ctx context.Context, routes map[string]string) error
}

// FakeRouter is an in-memory Router for tests.
type FakeRouter struct {
	mu     sync.Mutex
	routes map[string]string
}

// NewFakeRouter creates an empty fake router.
func NewFakeRouter() *FakeRouter {
	return &FakeRouter{routes: make(map[string]string)}
}

func (r *FakeRouter) Routes(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.routes))
	for k, v := range r.routes {
		out[k] = v
	}
	return out, nil
}

func (r *FakeRouter) OverrideRoutes(ctx context.Context, routes map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = make(map[string]string, len(routes))
	for k, v := range routes {
		r.routes[k] = v
	}
	return nil
}

// jsonCodec is a grpc encoding.Codec that marshals messages as JSON instead
// of protobuf, since no .proto toolchain is available here; the router's
// wire contract is two JSON-bodied RPCs over a plain grpc transport.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type routesResponse struct {
	Routes map[string]string `json:"routes"`
}

type overrideRoutesRequest struct {
	Routes map[string]string `json:"routes"`
}

type overrideRoutesResponse struct{}

// grpcRouterClient dials the router over grpc, using the hand-registered
// JSON codec above in place of protobuf-generated stubs.
type grpcRouterClient struct {
	conn *grpc.ClientConn
}

// NewGRPCRouterClient dials addr and returns a Router backed by it. The
// connection uses insecure transport credentials; production deployments
// are expected to sit behind a private network or an mTLS-terminating
// sidecar, matching how the teacher's own internal grpc services are
// typically fronted.
func NewGRPCRouterClient(addr string) (*grpcRouterClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, err
	}
	return &grpcRouterClient{conn: conn}, nil
}

func (c *grpcRouterClient) Close() error { return c.conn.Close() }

func (c *grpcRouterClient) Routes(ctx context.Context) (map[string]string, error) {
	var resp routesResponse
	if err := c.conn.Invoke(ctx, "/mcfleet.router.v1.Router/Routes", &struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Routes, nil
}

func (c *grpcRouterClient) OverrideRoutes(ctx context.Context, routes map[string]string) error {
	req := overrideRoutesRequest{Routes: routes}
	var resp overrideRoutesResponse
	return c.conn.Invoke(ctx, "/mcfleet.router.v1.Router/OverrideRoutes", &req, &resp)
}
