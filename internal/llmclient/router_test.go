package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// -- Test Setup Helper --

func setupRouter(t *testing.T) (*LLMRouter, *MockLLMClient, *MockLLMClient, *observer.ObservedLogs) {
	t.Helper()
	loggerCore, observedLogs := observer.New(zap.DebugLevel)
	logger := zap.New(loggerCore)

	fastClient := &MockLLMClient{Name: "FastClient"}
	powerfulClient := &MockLLMClient{Name: "PowerfulClient"}

	router, err := NewLLMRouter(logger, fastClient, powerfulClient)
	require.NoError(t, err, "NewLLMRouter should initialize successfully")

	return router, fastClient, powerfulClient, observedLogs
}

// -- Initialization --

func TestNewLLMRouter_Success(t *testing.T) {
	router, fastClient, powerfulClient, _ := setupRouter(t)

	require.NotNil(t, router)
	assert.Equal(t, fastClient, router.clients[schemas.TierFast])
	assert.Equal(t, powerfulClient, router.clients[schemas.TierPowerful])
}

func TestNewLLMRouter_Failure_MissingClients(t *testing.T) {
	logger := setupTestLogger(t)
	validClient := new(MockLLMClient)

	tests := []struct {
		name     string
		fast     schemas.LLMClient
		powerful schemas.LLMClient
	}{
		{"Missing Fast Client", nil, validClient},
		{"Missing Powerful Client", validClient, nil},
		{"Missing Both Clients", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, err := NewLLMRouter(logger, tt.fast, tt.powerful)
			assert.Error(t, err)
			assert.Nil(t, router)
			assert.Contains(t, err.Error(), "both fast and powerful tier clients must be provided")
		})
	}
}

// -- Routing --

func TestGenerate_Routing(t *testing.T) {
	ctx := context.Background()

	t.Run("fast tier", func(t *testing.T) {
		router, fast, powerful, logs := setupRouter(t)
		req := schemas.GenerationRequest{UserPrompt: "quick", Tier: schemas.TierFast}
		fast.On("Generate", ctx, req).Return("fast answer", nil).Once()

		out, err := router.Generate(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, "fast answer", out)
		fast.AssertExpectations(t)
		powerful.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		assert.Equal(t, 1, logs.FilterMessage("Routing LLM request").Len())
	})

	t.Run("empty tier defaults to powerful", func(t *testing.T) {
		router, fast, powerful, _ := setupRouter(t)
		req := schemas.GenerationRequest{UserPrompt: "deep"}
		powerful.On("Generate", ctx, req).Return("powerful answer", nil).Once()

		out, err := router.Generate(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, "powerful answer", out)
		fast.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("unknown tier", func(t *testing.T) {
		router, _, _, _ := setupRouter(t)
		_, err := router.Generate(ctx, schemas.GenerationRequest{Tier: "experimental"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no LLM client configured for tier: experimental")
	})

	t.Run("client error propagates", func(t *testing.T) {
		router, _, powerful, _ := setupRouter(t)
		req := schemas.GenerationRequest{Tier: schemas.TierPowerful}
		boom := errors.New("upstream failure")
		powerful.On("Generate", ctx, req).Return("", boom).Once()

		_, err := router.Generate(ctx, req)
		assert.ErrorIs(t, err, boom)
	})
}

func TestRouter_Close(t *testing.T) {
	t.Run("closes both clients", func(t *testing.T) {
		router, fast, powerful, _ := setupRouter(t)
		fast.On("Close").Return(nil).Once()
		powerful.On("Close").Return(errors.New("close failed")).Once()

		err := router.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closing powerful client")
		fast.AssertExpectations(t)
		powerful.AssertExpectations(t)
	})

	t.Run("shared client closed once", func(t *testing.T) {
		shared := &MockLLMClient{Name: "Shared"}
		shared.On("Close").Return(nil).Once()
		router, err := NewLLMRouter(setupTestLogger(t), shared, shared)
		require.NoError(t, err)

		require.NoError(t, router.Close())
		shared.AssertNumberOfCalls(t, "Close", 1)
	})
}
