package relay

import (
	"context"
	"testing"
	"time"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/remote/grpcremote"
	"github.com/BrennanVollmar/vplm/internal/remote/memremote"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer(secret string) *Server {
	return NewServer("127.0.0.1:0", logging.Discard(), memremote.NewClient(), secret)
}

func incoming(token string) context.Context {
	md := metadata.New(map[string]string{common.AccessTokenHeaderName: token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_Ping_AllowsWithoutToken(t *testing.T) {
	s := newTestServer("secret")

	info := &grpc.UnaryServerInfo{FullMethod: grpcremote.MethodPing}
	handlerCalled := false
	h := func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled || resp != "ok" {
		t.Fatalf("handler not reached: called=%v resp=%v", handlerCalled, resp)
	}
}

func TestInterceptor_NoSecret_AllowsEverything(t *testing.T) {
	s := newTestServer("")

	info := &grpc.UnaryServerInfo{FullMethod: grpcremote.MethodUpsert}
	h := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	if _, err := s.accessTokenInterceptor(context.Background(), nil, info, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInterceptor_Upsert_MissingToken(t *testing.T) {
	s := newTestServer("secret")

	info := &grpc.UnaryServerInfo{FullMethod: grpcremote.MethodUpsert}
	h := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != "missing token" {
		t.Fatalf("expected 'missing token', got %q", status.Convert(err).Message())
	}
}

func TestInterceptor_ExpiredToken(t *testing.T) {
	s := newTestServer("secret")
	tok, err := GenerateToken("d1", []byte("secret"), -time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	info := &grpc.UnaryServerInfo{FullMethod: grpcremote.MethodFetch}
	h := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called for expired token")
		return nil, nil
	}

	_, err = s.accessTokenInterceptor(incoming(tok), nil, info, h)
	if status.Convert(err).Message() != common.ErrTokenExpired.Error() {
		t.Fatalf("expected token expired message, got %v", err)
	}
}

func TestInterceptor_ValidToken_SetsDevice(t *testing.T) {
	secret := "super-secret"
	s := newTestServer(secret)

	tok, err := GenerateToken("tablet-7", []byte(secret), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	info := &grpc.UnaryServerInfo{FullMethod: grpcremote.MethodDelete}
	var got any
	h := func(ctx context.Context, req any) (any, error) {
		got = ctx.Value(DeviceKey)
		return "ok", nil
	}

	if _, err := s.accessTokenInterceptor(incoming(tok), nil, info, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "tablet-7" {
		t.Fatalf("device not propagated in context: got %v", got)
	}
}
