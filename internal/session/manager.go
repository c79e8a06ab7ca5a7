// internal/session/manager.go
package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/common/metrics"

	"github.com/playwright-community/playwright-go"
)

// Browser is one live per-user browser context.
type Browser interface {
	// Probe is a cheap liveness check; any error means the context is dead.
	Probe(ctx context.Context) error
	// Page returns the context's working tab, creating one when none is open.
	Page() (playwright.Page, error)
	Close() error
}

// Launcher creates browser contexts bound to a persistent profile directory.
// onClose must fire exactly once when the context dies, however it dies, so
// the manager can drop its cache entry. Tests use fakes.
type Launcher interface {
	Launch(ctx context.Context, profileDir string, onClose func()) (Browser, error)
}

// Manager caches one browser context per user, created lazily. Access per user
// is serialized by the caller (one job per user at a time); the mutex only
// protects the map against concurrent users.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]Browser
	launcher    Launcher
	profilesDir string
	logger      logger.Logger
}

func NewManager(launcher Launcher, profilesDir string, log logger.Logger) *Manager {
	return &Manager{
		sessions:    make(map[string]Browser),
		launcher:    launcher,
		profilesDir: profilesDir,
		logger:      log.WithFields(map[string]interface{}{"component": "session"}),
	}
}

// Context returns the user's browser context, relaunching it when the cached
// one fails its liveness probe.
func (m *Manager) Context(ctx context.Context, userID string) (Browser, error) {
	m.mu.Lock()
	cached, ok := m.sessions[userID]
	m.mu.Unlock()

	if ok {
		err := cached.Probe(ctx)
		if err == nil {
			return cached, nil
		}
		m.logger.WithError(err).Warn("cached context unresponsive, relaunching", map[string]interface{}{"user_id": userID})
		cached.Close()
		m.mu.Lock()
		m.evictLocked(userID, cached)
		m.mu.Unlock()
	}

	profileDir := filepath.Join(m.profilesDir, userID)
	m.removeStaleLock(profileDir)

	var browser Browser
	browser, err := m.launcher.Launch(ctx, profileDir, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.evictLocked(userID, browser)
	})
	if err != nil {
		return nil, errors.NewSessionLaunchFailedError(userID, err)
	}

	m.mu.Lock()
	m.sessions[userID] = browser
	m.mu.Unlock()
	metrics.SessionsActive.Inc()
	m.logger.Info("browser context launched", map[string]interface{}{"user_id": userID, "profile_dir": profileDir})
	return browser, nil
}

// Close shuts down the user's context. Eviction happens through the close
// hook, so a context that died on its own is not double-counted.
func (m *Manager) Close(userID string) {
	m.mu.Lock()
	browser, ok := m.sessions[userID]
	m.mu.Unlock()
	if ok {
		browser.Close()
	}
}

// CloseAll shuts down every live context, for process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]Browser, 0, len(m.sessions))
	for _, browser := range m.sessions {
		open = append(open, browser)
	}
	m.mu.Unlock()

	for _, browser := range open {
		browser.Close()
	}
}

// evictLocked drops the cache entry if it still points at this browser. The
// guard keeps a late close hook from evicting a newer relaunch.
func (m *Manager) evictLocked(userID string, browser Browser) {
	if current, ok := m.sessions[userID]; ok && current == browser {
		delete(m.sessions, userID)
		metrics.SessionsActive.Dec()
	}
}

// removeStaleLock clears the profile lock marker a crashed browser leaves
// behind; a stale one blocks the relaunch.
func (m *Manager) removeStaleLock(profileDir string) {
	lock := filepath.Join(profileDir, "SingletonLock")
	if err := os.Remove(lock); err != nil && !os.IsNotExist(err) {
		m.logger.WithError(err).Warn("stale profile lock removal failed", map[string]interface{}{"path": lock})
	}
}
