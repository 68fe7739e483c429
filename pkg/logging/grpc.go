package logging

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// grpcLogger builds the per-call logger and propagates the request id into ctx
func grpcLogger(ctx context.Context, method string, stream bool) (context.Context, zerolog.Logger) {
	lc := log.With().Str("grpc.method", method)
	if stream {
		lc = lc.Bool("grpc.stream", true)
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(requestIDMetadata); len(ids) > 0 {
			lc = lc.Str("request_id", ids[0])
			ctx = WithRequestID(ctx, ids[0])
		}
	}
	return ctx, lc.Logger()
}

// logCompletion logs the call outcome. Caller mistakes are warnings, the rest errors.
func logCompletion(logger zerolog.Logger, err error, start time.Time, msg string) {
	code := status.Code(err)

	var event *zerolog.Event
	switch code {
	case codes.OK:
		event = logger.Info()
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.Canceled:
		event = logger.Warn().Err(err)
	default:
		event = logger.Error().Err(err)
	}

	event.Dur("duration", time.Since(start)).
		Str("grpc.code", code.String()).
		Msg(msg)
}

// UnaryServerInterceptor returns a gRPC interceptor for request logging
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		ctx, logger := grpcLogger(ctx, info.FullMethod, false)
		logger.Debug().Msg("Request received")

		resp, err := handler(ctx, req)
		logCompletion(logger, err, start, "Request completed")
		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC interceptor for streaming request logging
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx, logger := grpcLogger(stream.Context(), info.FullMethod, true)
		logger.Debug().Msg("Stream started")

		err := handler(srv, &wrappedServerStream{ServerStream: stream, ctx: ctx})
		logCompletion(logger, err, start, "Stream completed")
		return err
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a modified context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapper's modified context
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
