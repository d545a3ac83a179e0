package flight

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
)

// NewFlightServer wraps a Server in a gRPC Flight server.
func NewFlightServer(opts Options, grpcOpts ...grpc.ServerOption) flight.Server {
	server := flight.NewServerWithMiddleware(nil, grpcOpts...)
	server.RegisterFlightService(NewServer(opts))
	return server
}

// StartFlightServer listens on port and serves until the server stops.
func StartFlightServer(opts Options, port int, grpcOpts ...grpc.ServerOption) error {
	addr := fmt.Sprintf(":%d", port)
	server := NewFlightServer(opts, grpcOpts...)
	log.WithField("addr", addr).Info("starting Flight server")
	if err := server.Init(addr); err != nil {
		return err
	}
	return server.Serve()
}
