package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/vietddude/batchfetch/internal/core/domain"
)

// GRPCError describes a failed gRPC call together with its error details.
type GRPCError struct {
	Code       codes.Code
	Message    string
	Reason     string
	Domain     string
	RetryDelay time.Duration
}

func (e *GRPCError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "grpc %s: %s", e.Code, e.Message)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (reason %s", e.Reason)
		if e.Domain != "" {
			fmt.Fprintf(&b, ", domain %s", e.Domain)
		}
		b.WriteString(")")
	}
	if e.RetryDelay > 0 {
		fmt.Fprintf(&b, ", retry after %v", e.RetryDelay)
	}
	return b.String()
}

// Retryable reports whether the code usually clears on its own.
func (e *GRPCError) Retryable() bool {
	switch e.Code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// ErrNotServing is returned when the health service reports anything but SERVING.
var ErrNotServing = errors.New("service not serving")

// GRPCFetcher runs health checks against a gRPC server.
type GRPCFetcher struct {
	target string
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewGRPCFetcher creates a client for target. https:// or :443 targets use TLS.
// The connection is established lazily on the first call.
func NewGRPCFetcher(target string, opts ...grpc.DialOption) (*GRPCFetcher, error) {
	addr := target
	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)
		addr = strings.TrimPrefix(addr, "https://")
	} else {
		opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
		addr = strings.TrimPrefix(addr, "http://")
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}
	return &GRPCFetcher{
		target: addr,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

// Func binds a health service name to a fetch function.
func (g *GRPCFetcher) Func(service string) domain.FetchFunc {
	return func(ctx context.Context) (any, error) {
		return g.Check(ctx, service)
	}
}

// Check queries the health of service. An empty name asks for overall server health.
func (g *GRPCFetcher) Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error) {
	resp, err := g.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return nil, describe(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return resp, fmt.Errorf("%w: %s reports %s", ErrNotServing, g.target, resp.GetStatus())
	}
	return resp, nil
}

// Close cleans up resources.
func (g *GRPCFetcher) Close() error {
	return g.conn.Close()
}

// describe converts a status error into a GRPCError. Context errors pass through.
func describe(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	ge := &GRPCError{Code: st.Code(), Message: st.Message()}
	for _, d := range st.Details() {
		switch info := d.(type) {
		case *errdetails.ErrorInfo:
			ge.Reason = info.GetReason()
			ge.Domain = info.GetDomain()
		case *errdetails.RetryInfo:
			ge.RetryDelay = info.GetRetryDelay().AsDuration()
		}
	}
	return ge
}
