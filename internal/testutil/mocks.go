// Package testutil provides shared test mocks and helpers. Test files should
// import mocks from here instead of defining their own.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/firstday-app/firstday/internal/gateway"
)

// MockGateway implements gateway.Gateway for tests using testify expectations.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Generate(ctx context.Context, req gateway.GenerateRequest) (gateway.GenerateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return gateway.GenerateResult{}, args.Error(1)
	}
	return args.Get(0).(gateway.GenerateResult), args.Error(1)
}

// GatewayFunc adapts a function to gateway.Gateway, for tests that want
// scripted behavior without expectation bookkeeping.
type GatewayFunc func(ctx context.Context, req gateway.GenerateRequest) (gateway.GenerateResult, error)

func (f GatewayFunc) Generate(ctx context.Context, req gateway.GenerateRequest) (gateway.GenerateResult, error) {
	return f(ctx, req)
}

// StaticGateway returns a gateway that always answers with the given text.
func StaticGateway(text string) gateway.Gateway {
	return GatewayFunc(func(ctx context.Context, req gateway.GenerateRequest) (gateway.GenerateResult, error) {
		return gateway.GenerateResult{Text: text, Model: "test-model"}, nil
	})
}

// FailingGateway returns a gateway that always fails with the given message.
func FailingGateway(message string) gateway.Gateway {
	return GatewayFunc(func(ctx context.Context, req gateway.GenerateRequest) (gateway.GenerateResult, error) {
		return gateway.GenerateResult{}, gateway.WrapError(message, nil)
	})
}
