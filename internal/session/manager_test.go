// internal/session/manager_test.go
package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	stderrors "apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	probeErr error
	closed   bool
	onClose  func()
}

func (f *fakeBrowser) Probe(context.Context) error { return f.probeErr }

func (f *fakeBrowser) Page() (playwright.Page, error) { return nil, nil }

func (f *fakeBrowser) Close() error {
	if !f.closed {
		f.closed = true
		if f.onClose != nil {
			f.onClose()
		}
	}
	return nil
}

type fakeLauncher struct {
	launches []string
	err      error
	browsers []*fakeBrowser
}

func (f *fakeLauncher) Launch(_ context.Context, profileDir string, onClose func()) (Browser, error) {
	f.launches = append(f.launches, profileDir)
	if f.err != nil {
		return nil, f.err
	}
	browser := &fakeBrowser{onClose: onClose}
	f.browsers = append(f.browsers, browser)
	return browser, nil
}

func newTestManager(t *testing.T, launcher Launcher) *Manager {
	t.Helper()
	return NewManager(launcher, t.TempDir(), logger.NewTestLogger(t))
}

func TestContextLaunchesLazily(t *testing.T) {
	launcher := &fakeLauncher{}
	m := newTestManager(t, launcher)

	browser, err := m.Context(context.Background(), "user-1")

	require.NoError(t, err)
	require.NotNil(t, browser)
	require.Len(t, launcher.launches, 1)
	assert.Equal(t, "user-1", filepath.Base(launcher.launches[0]))
}

func TestContextReturnsCachedWhileResponsive(t *testing.T) {
	launcher := &fakeLauncher{}
	m := newTestManager(t, launcher)

	first, err := m.Context(context.Background(), "user-1")
	require.NoError(t, err)
	second, err := m.Context(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, launcher.launches, 1)
}

func TestContextRelaunchesAfterFailedProbe(t *testing.T) {
	launcher := &fakeLauncher{}
	m := newTestManager(t, launcher)

	first, err := m.Context(context.Background(), "user-1")
	require.NoError(t, err)
	first.(*fakeBrowser).probeErr = errors.New("driver gone")

	second, err := m.Context(context.Background(), "user-1")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, first.(*fakeBrowser).closed, "dead context must be closed before relaunch")
	assert.Len(t, launcher.launches, 2)
}

func TestContextPerUserIsolation(t *testing.T) {
	launcher := &fakeLauncher{}
	m := newTestManager(t, launcher)

	a, err := m.Context(context.Background(), "user-a")
	require.NoError(t, err)
	b, err := m.Context(context.Background(), "user-b")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Len(t, launcher.launches, 2)
}

func TestCloseHookEvictsEntry(t *testing.T) {
	launcher := &fakeLauncher{}
	m := newTestManager(t, launcher)

	first, err := m.Context(context.Background(), "user-1")
	require.NoError(t, err)

	// Simulates the browser dying on its own; the hook removes the entry so
	// the next request relaunches.
	first.(*fakeBrowser).Close()

	second, err := m.Context(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Len(t, launcher.launches, 2)
}

func TestCloseShutsDownContext(t *testing.T) {
	launcher := &fakeLauncher{}
	m := newTestManager(t, launcher)

	browser, err := m.Context(context.Background(), "user-1")
	require.NoError(t, err)

	m.Close("user-1")
	assert.True(t, browser.(*fakeBrowser).closed)
}

func TestCloseAll(t *testing.T) {
	launcher := &fakeLauncher{}
	m := newTestManager(t, launcher)

	_, err := m.Context(context.Background(), "user-a")
	require.NoError(t, err)
	_, err = m.Context(context.Background(), "user-b")
	require.NoError(t, err)

	m.CloseAll()
	for _, browser := range launcher.browsers {
		assert.True(t, browser.closed)
	}
}

func TestContextRemovesStaleProfileLock(t *testing.T) {
	launcher := &fakeLauncher{}
	dir := t.TempDir()
	m := NewManager(launcher, dir, logger.NewTestLogger(t))

	profileDir := filepath.Join(dir, "user-1")
	require.NoError(t, os.MkdirAll(profileDir, 0o755))
	lock := filepath.Join(profileDir, "SingletonLock")
	require.NoError(t, os.WriteFile(lock, []byte{}, 0o644))

	_, err := m.Context(context.Background(), "user-1")
	require.NoError(t, err)

	_, statErr := os.Stat(lock)
	assert.True(t, os.IsNotExist(statErr))
}

func TestContextLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("no chromium")}
	m := newTestManager(t, launcher)

	_, err := m.Context(context.Background(), "user-1")

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeSessionLaunchFailed, stderrors.Code(err))
}
