package audit

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRecorder struct {
	mock.Mock
}

func NewMockRecorder(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRecorder {
	m := &MockRecorder{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockRecorder) Record(ctx context.Context, event Event) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}
