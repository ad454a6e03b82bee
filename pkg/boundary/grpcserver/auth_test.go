package grpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func signedToken(t *testing.T, secret string, expiry time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(expiry).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func noopHandler(_ context.Context, _ interface{}) (interface{}, error) {
	return "ok", nil
}

func TestAuthInterceptorDisabledSecret(t *testing.T) {
	interceptor := authInterceptor("")
	info := &grpc.UnaryServerInfo{FullMethod: "/p2pim.Node/Lease"}

	resp, err := interceptor(context.Background(), nil, info, noopHandler)
	if err != nil {
		t.Fatalf("expected no error with auth disabled, got %v", err)
	}
	if resp != "ok" {
		t.Errorf("resp = %v, want ok", resp)
	}
}

func TestAuthInterceptorNonMutatingMethod(t *testing.T) {
	interceptor := authInterceptor("secret")
	info := &grpc.UnaryServerInfo{FullMethod: "/p2pim.Node/Balance"}

	if _, err := interceptor(context.Background(), nil, info, noopHandler); err != nil {
		t.Fatalf("expected non-mutating method to bypass auth, got %v", err)
	}
}

func TestAuthInterceptorMissingToken(t *testing.T) {
	interceptor := authInterceptor("secret")
	info := &grpc.UnaryServerInfo{FullMethod: "/p2pim.Node/Lease"}

	if _, err := interceptor(context.Background(), nil, info, noopHandler); err == nil {
		t.Fatal("expected error for missing bearer token")
	}
}

func TestAuthInterceptorValidToken(t *testing.T) {
	secret := "secret"
	interceptor := authInterceptor(secret)
	info := &grpc.UnaryServerInfo{FullMethod: "/p2pim.Node/Deposit"}

	md := metadata.Pairs("authorization", "Bearer "+signedToken(t, secret, time.Minute))
	ctx := metadata.NewIncomingContext(context.Background(), md)

	resp, err := interceptor(ctx, nil, info, noopHandler)
	if err != nil {
		t.Fatalf("expected valid token to pass, got %v", err)
	}
	if resp != "ok" {
		t.Errorf("resp = %v, want ok", resp)
	}
}

func TestAuthInterceptorExpiredToken(t *testing.T) {
	secret := "secret"
	interceptor := authInterceptor(secret)
	info := &grpc.UnaryServerInfo{FullMethod: "/p2pim.Node/Withdraw"}

	md := metadata.Pairs("authorization", "Bearer "+signedToken(t, secret, -time.Minute))
	ctx := metadata.NewIncomingContext(context.Background(), md)

	if _, err := interceptor(ctx, nil, info, noopHandler); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestAuthInterceptorWrongSecret(t *testing.T) {
	interceptor := authInterceptor("secret")
	info := &grpc.UnaryServerInfo{FullMethod: "/p2pim.Node/Approve"}

	md := metadata.Pairs("authorization", "Bearer "+signedToken(t, "wrong-secret", time.Minute))
	ctx := metadata.NewIncomingContext(context.Background(), md)

	if _, err := interceptor(ctx, nil, info, noopHandler); err == nil {
		t.Fatal("expected error for token signed with wrong secret")
	}
}

func TestBearerTokenMalformed(t *testing.T) {
	md := metadata.Pairs("authorization", "NotBearer abc")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	if _, err := bearerToken(ctx); err == nil {
		t.Fatal("expected error for malformed authorization header")
	}
}

func TestBearerTokenMissingMetadata(t *testing.T) {
	if _, err := bearerToken(context.Background()); err == nil {
		t.Fatal("expected error for missing metadata")
	}
}
