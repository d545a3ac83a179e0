// Package flight serves plan evaluation over Arrow Flight DoExchange.
//
// The client opens an exchange, sends the plan (JSON or YAML) in the
// AppMetadata of a first message or in the descriptor command, then
// streams its record batches. The server answers with the evaluated
// frame.
package flight

import (
	"context"
	"errors"
	"fmt"
	"io"

	"geoexpr/pkg/frame"
	"geoexpr/pkg/plan"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var log = logrus.WithField("component", "flight")

// Options tune the exchange server.
type Options struct {
	// SpoolRows is the number of buffered rows after which incoming
	// batches go to parquet instead of memory.
	SpoolRows int64
	SpoolDir  string
}

// Server evaluates plans sent through DoExchange.
type Server struct {
	flight.BaseFlightServer
	opts Options
}

// NewServer returns a Server. A non-positive SpoolRows disables spooling.
func NewServer(opts Options) *Server {
	return &Server{opts: opts}
}

// planOf extracts the plan bytes from the first message of an exchange.
func planOf(first *flight.FlightData) []byte {
	if len(first.AppMetadata) > 0 {
		return first.AppMetadata
	}
	if first.FlightDescriptor != nil {
		return first.FlightDescriptor.Cmd
	}
	return nil
}

func (s *Server) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	first, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	raw := planOf(first)
	if len(raw) == 0 {
		return status.Error(codes.InvalidArgument, "exchange carries no plan")
	}
	p, err := plan.Decode(raw)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	ctx := stream.Context()
	in, err := s.receive(ctx, stream)
	if err != nil {
		return err
	}
	defer in.Release()

	log.WithFields(logrus.Fields{"rows": in.NumRows(), "columns": len(p.Select)}).Info("evaluating exchange")

	out, err := p.Run(ctx, in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	defer out.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(out.Schema()))
	defer writer.Close()

	rec := out.Record()
	defer rec.Release()
	return writer.Write(rec)
}

// receive reads the incoming batches into one frame, spooling them to
// parquet once SpoolRows is reached.
func (s *Server) receive(ctx context.Context, stream flight.FlightService_DoExchangeServer) (*frame.Frame, error) {
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("failed to read record batches: %v", err))
	}
	defer reader.Release()

	var (
		records []arrow.RecordBatch
		rows    int64
		spool   *Spool
	)
	defer func() {
		for _, r := range records {
			r.Release()
		}
		if spool != nil {
			spool.Cleanup()
		}
	}()

	for reader.Next() {
		rec := reader.RecordBatch()
		rows += rec.NumRows()

		if spool != nil {
			if err := spool.Add(ctx, rec); err != nil {
				return nil, err
			}
			continue
		}

		rec.Retain()
		records = append(records, rec)

		if s.opts.SpoolRows > 0 && rows >= s.opts.SpoolRows {
			log.WithField("rows", rows).Info("exchange exceeds spool threshold, writing to parquet")
			if spool, err = NewSpool(s.opts.SpoolDir); err != nil {
				return nil, err
			}
			err = spill(ctx, spool, records)
			records = nil
			if err != nil {
				return nil, err
			}
		}
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}

	switch {
	case spool != nil:
		return spool.Frame(ctx)
	case len(records) > 0:
		return frame.FromRecords(records)
	}
	return emptyFrame(reader.Schema())
}

// spill moves records into spool. It takes ownership of records and
// releases every one of them, even when a write fails.
func spill(ctx context.Context, spool *Spool, records []arrow.RecordBatch) error {
	var err error
	for _, r := range records {
		if err == nil {
			err = spool.Add(ctx, r)
		}
		r.Release()
	}
	return err
}

func emptyFrame(schema *arrow.Schema) (*frame.Frame, error) {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = frame.Empty(mem, f.Type)
		defer cols[i].Release()
	}
	return frame.New(schema, cols)
}
