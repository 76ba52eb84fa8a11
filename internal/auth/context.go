package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxOperator ctxKey = iota
	ctxRole
	ctxServices
)

func WithIdentity(ctx context.Context, operator, role string, services []string) context.Context {
	ctx = context.WithValue(ctx, ctxOperator, operator)
	ctx = context.WithValue(ctx, ctxRole, role)
	ctx = context.WithValue(ctx, ctxServices, services)
	return ctx
}

func Operator(ctx context.Context) (string, error) {
	v := ctx.Value(ctxOperator)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("operator not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

// Services returns the services the caller may touch; nil means all of them.
func Services(ctx context.Context) []string {
	v, _ := ctx.Value(ctxServices).([]string)
	return v
}
