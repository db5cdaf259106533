package mocks

import (
	"context"
	"io"
	"time"

	"pdfdrop/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Create(ctx context.Context, r io.Reader, originalName string, mimeType string, size int64) (*model.DocumentEntry, error) {
	args := m.Called(ctx, r, originalName, mimeType, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentEntry), args.Error(1)
}

func (m *MockService) Resolve(ctx context.Context, tok string) (*model.DocumentEntry, error) {
	args := m.Called(ctx, tok)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentEntry), args.Error(1)
}

func (m *MockService) Open(ctx context.Context, tok string) (io.ReadCloser, *model.DocumentEntry, error) {
	args := m.Called(ctx, tok)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(*model.DocumentEntry), args.Error(2)
}

func (m *MockService) OpenQR(ctx context.Context, tok string) (io.ReadCloser, *model.DocumentEntry, error) {
	args := m.Called(ctx, tok)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(*model.DocumentEntry), args.Error(2)
}

func (m *MockService) PresignView(ctx context.Context, tok string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, tok, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, tok string) error {
	args := m.Called(ctx, tok)
	return args.Error(0)
}

func (m *MockService) Purge(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockService) List(ctx context.Context) ([]model.DocumentEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DocumentEntry), args.Error(1)
}

func (m *MockService) Reindex(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockService) ViewURL(tok string) string {
	args := m.Called(tok)
	return args.String(0)
}
