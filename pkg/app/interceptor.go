package app

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/dibs-shares/shares-server/pkg/metrics"
)

const (
	grpcRequestMethodAttributeKey      = "grpc.request.method"
	grpcResponseStatusCodeAttributeKey = "grpc.response.statusCode"
)

// newRelicUnaryServerInterceptor records each unary call as a New Relic
// transaction and makes the application available to downstream code
func newRelicUnaryServerInterceptor(app *newrelic.Application) grpc.UnaryServerInterceptor {
	if app == nil {
		return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			return handler(ctx, req)
		}
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx = metrics.WithNewRelicApp(ctx, app)

		txn := app.StartTransaction(info.FullMethod)
		defer txn.End()

		ctx = newrelic.NewContext(ctx, txn)
		txn.AddAttribute(grpcRequestMethodAttributeKey, info.FullMethod)

		resp, err := handler(ctx, req)

		s, _ := status.FromError(err)
		txn.SetWebResponse(nil).WriteHeader(200)
		txn.AddAttribute(grpcResponseStatusCodeAttributeKey, s.Code().String())
		if err != nil {
			txn.NoticeError(err)
		}

		return resp, err
	}
}
