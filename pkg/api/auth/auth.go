// Package auth resolves and carries the caller identity for the journaling API.
package auth

import (
	"context"
	"strings"
)

// Principal is the authenticated caller. UserID scopes conversations,
// complexes and chart data; APIKey is empty when authentication is disabled.
type Principal struct {
	APIKey string
	UserID string
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// BearerKey extracts the token from an Authorization header value. A missing
// or malformed header yields ok=false, never an empty token.
func BearerKey(header string) (string, bool) {
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
