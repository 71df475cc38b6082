package grpcsvc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vladislavdragonenkov/shop-orders/internal/auth"
)

// AuthUnaryInterceptor проверяет metadata authorization: Bearer <jwt> для методов сервиса заказов.
// Health и reflection проходят без токена.
func AuthUnaryInterceptor(verifier *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}

		identity, err := verifier.Parse(bearerToken(ctx))
		if err != nil {
			return nil, toStatus(err).Err()
		}
		return handler(auth.WithIdentity(ctx, identity), req)
	}
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get("authorization") {
		if token, found := strings.CutPrefix(value, "Bearer "); found {
			return token
		}
	}
	return ""
}
