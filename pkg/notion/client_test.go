package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func TestNewClient_DefaultThrottle(t *testing.T) {
	c := NewClient("test-token")
	require.NotNil(t, c)

	nc := c.(*notionClient)
	require.NotNil(t, nc.limiter)
	assert.Equal(t, rate.Limit(defaultRPS), nc.limiter.Limit())
}

func TestWithRateLimit_Override(t *testing.T) {
	nc := NewClient("test-token", WithRateLimit(5)).(*notionClient)
	require.NotNil(t, nc.limiter)
	assert.Equal(t, rate.Limit(5), nc.limiter.Limit())
	assert.Equal(t, 5, nc.limiter.Burst())
}

func TestWithRateLimit_Disabled(t *testing.T) {
	nc := NewClient("test-token", WithRateLimit(0)).(*notionClient)
	assert.Nil(t, nc.limiter)

	// Without a limiter, throttle never blocks, even on a dead context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, nc.throttle(ctx))
}

func TestThrottle_CancelledContext(t *testing.T) {
	nc := NewClient("test-token").(*notionClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, nc.throttle(ctx))
}
