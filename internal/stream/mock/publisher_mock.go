package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/daisi-wa-reply-orchestrator/internal/model"
)

// PublisherMock is a testify mock for stream.PublisherInterface.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishTransition(ctx context.Context, event model.TransitionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() {
	m.Called()
}
