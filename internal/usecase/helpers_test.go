package usecase

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/agent"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/cache"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/provider"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/pkg/logger"
)

const testCompanyID = "company-test-001"

func TestMain(m *testing.M) {
	_ = logger.Initialize("fatal") // Reduce noise; gives logger.FromContext a non-nil fallback
	os.Exit(m.Run())
}

// newTestContext returns a context carrying a test logger and the test tenant.
func newTestContext(t *testing.T) context.Context {
	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))
	return tenant.WithCompanyID(ctx, testCompanyID)
}

func newTestCache() *cache.OptOutCache {
	return cache.NewOptOutCache(testCompanyID, 1000, 1000, 0.01)
}

// AgentClientMock is a testify mock for agent.Client.
type AgentClientMock struct {
	mock.Mock
}

func (m *AgentClientMock) Generate(ctx context.Context, req agent.GenerateRequest) (*agent.GenerateResult, error) {
	args := m.Called(ctx, req)
	var result *agent.GenerateResult
	if args.Get(0) != nil {
		result = args.Get(0).(*agent.GenerateResult)
	}
	return result, args.Error(1)
}

// ProviderClientMock is a testify mock for provider.Client.
type ProviderClientMock struct {
	mock.Mock
}

func (m *ProviderClientMock) SendText(ctx context.Context, companyID, toPhone, text string) (*provider.SendResult, error) {
	args := m.Called(ctx, companyID, toPhone, text)
	var result *provider.SendResult
	if args.Get(0) != nil {
		result = args.Get(0).(*provider.SendResult)
	}
	return result, args.Error(1)
}

func (m *ProviderClientMock) SendInteractive(ctx context.Context, companyID, toPhone, bodyText string, buttons []provider.Button) (*provider.SendResult, error) {
	args := m.Called(ctx, companyID, toPhone, bodyText, buttons)
	var result *provider.SendResult
	if args.Get(0) != nil {
		result = args.Get(0).(*provider.SendResult)
	}
	return result, args.Error(1)
}

// ReplyWorkerMock is a testify mock for IReplyWorker.
type ReplyWorkerMock struct {
	mock.Mock
}

func (m *ReplyWorkerMock) SubmitTask(taskData ReplyTaskData) error {
	args := m.Called(taskData)
	return args.Error(0)
}

func (m *ReplyWorkerMock) Stop() {
	m.Called()
}
