package grpcremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote store exposed with Register.
type Client struct {
	endpointURL string
	conn        *grpc.ClientConn

	mu          sync.RWMutex
	accessToken string
	now         func() time.Time
}

// New dials endpointURL. Extra options are appended after the defaults
// (plaintext transport and the access-token interceptor), so tests can swap
// the dialer.
func New(endpointURL, accessToken string, opts ...grpc.DialOption) (*Client, error) {
	c := &Client{endpointURL: endpointURL, accessToken: accessToken, now: time.Now}

	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dial...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// SetAccessToken replaces the token sent with every call.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

// accessTokenInterceptor attaches the access token and refuses to send one
// that has already expired; the server would only bounce it.
func (c *Client) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	token := c.token()
	if token == "" {
		return invoker(ctx, method, req, reply, cc, opts...)
	}
	if tokenExpired(token, c.now()) {
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}
	return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
}

// tokenExpired reads the exp claim without verifying the signature. Tokens
// that are not JWTs are passed through for the server to judge.
func tokenExpired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(now)
}

func (c *Client) Upsert(ctx context.Context, collection string, row json.RawMessage) error {
	req, err := upsertRequest(collection, row)
	if err != nil {
		return err
	}
	if err := c.conn.Invoke(ctx, MethodUpsert, req, &emptypb.Empty{}); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if err := c.conn.Invoke(ctx, MethodDelete, deleteRequest(collection, id), &emptypb.Empty{}); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) Fetch(ctx context.Context, collection string, limit int) ([]json.RawMessage, error) {
	resp := &structpb.ListValue{}
	if err := c.conn.Invoke(ctx, MethodFetch, fetchRequest(collection, limit), resp); err != nil {
		return nil, mapError(err)
	}
	return fetchRows(resp)
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, MethodPing, &emptypb.Empty{}, &emptypb.Empty{}); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		if st.Message() == common.ErrTokenExpired.Error() {
			return common.ErrTokenExpired
		}
		return common.ErrUnauthorized
	case codes.PermissionDenied:
		return common.ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", common.ErrUnavailable, st.Message())
	case codes.AlreadyExists:
		return common.ErrAlreadyExists
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
