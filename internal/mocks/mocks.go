// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/browser"
)

// -- Driver Mock --

// MockDriver mocks browser.Driver for tests that script individual calls.
type MockDriver struct {
	mock.Mock
}

var _ browser.Driver = (*MockDriver)(nil)

func (m *MockDriver) Name() string          { return m.Called().String(0) }
func (m *MockDriver) CurrentHandle() string { return m.Called().String(0) }

func (m *MockDriver) Handles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDriver) OpenTab(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockDriver) SwitchTo(ctx context.Context, handle string) error {
	return m.Called(ctx, handle).Error(0)
}
func (m *MockDriver) CloseCurrent(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockDriver) Quit(ctx context.Context) error         { return m.Called(ctx).Error(0) }

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockDriver) Reload(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) PageSource(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// Execute records the call. Tests populate out with mock.Run.
func (m *MockDriver) Execute(ctx context.Context, script browser.Script, scriptArgs []any, out any) error {
	return m.Called(ctx, script, scriptArgs, out).Error(0)
}

func (m *MockDriver) AddScriptOnNewDocument(ctx context.Context, source string) error {
	return m.Called(ctx, source).Error(0)
}

func (m *MockDriver) ConsoleMessages() []browser.ConsoleMessage {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]browser.ConsoleMessage)
}

func (m *MockDriver) Screenshot(ctx context.Context, clip *schemas.Rectangle) ([]byte, error) {
	args := m.Called(ctx, clip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDriver) MHTML(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDriver) SwitchToFrame(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}
func (m *MockDriver) SwitchToDefault(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockDriver) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]browser.Cookie), args.Error(1)
}

func (m *MockDriver) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	return m.Called(ctx, cookies).Error(0)
}
