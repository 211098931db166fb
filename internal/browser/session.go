package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/contentflow/uploadflow/internal/config"
	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/pkg/logger"
)

// Session is one attached remote browser: the launcher-side profile
// session plus a CDP-connected playwright client.
type Session struct {
	Profile   models.Profile
	DebugURL  string
	browser   playwright.Browser
	page      playwright.Page
	dom       DOM
	bookmarks []models.Bookmark
	tabCount  int
}

// NewSession assembles a session around an already-attached DOM. The
// orchestrator consumes sessions through this shape regardless of whether
// a real CDP connection backs them.
func NewSession(profile models.Profile, dom DOM, bookmarks []models.Bookmark, tabCount int) *Session {
	return &Session{
		Profile:   profile,
		dom:       dom,
		bookmarks: bookmarks,
		tabCount:  tabCount,
	}
}

func (s *Session) DOM() DOM {
	return s.dom
}

func (s *Session) Bookmarks() []models.Bookmark {
	return s.bookmarks
}

// TabCount is the number of pages open at attach time, diagnostic only.
func (s *Session) TabCount() int {
	return s.tabCount
}

// SessionManager opens and closes remote browser sessions. Opening is
// two-phase: the launcher start is recorded in the state store before the
// CDP attach, so a crash in between leaves a marker the next run can clean
// up instead of silently leaking the remote session.
type SessionManager struct {
	launcher *LauncherClient
	store    *state.Store
	stealth  *StealthInjector
	cfg      config.UploadConfig
	log      logger.Logger
	pw       *playwright.Playwright
}

func NewSessionManager(launcher *LauncherClient, store *state.Store, cfg config.UploadConfig, enableStealth bool, log logger.Logger) *SessionManager {
	m := &SessionManager{
		launcher: launcher,
		store:    store,
		cfg:      cfg,
		log:      log,
	}
	if enableStealth {
		m.stealth = NewStealthInjector()
	}
	return m
}

// CleanupOrphan stops any remote session left behind by a previous run.
// Best-effort: a stop failure is logged and the marker cleared anyway, so
// one unreachable launcher cannot wedge every subsequent run.
func (m *SessionManager) CleanupOrphan(ctx context.Context) {
	sess, err := m.store.ActiveSession()
	if err != nil || sess == nil {
		return
	}
	m.log.Warn("Found orphaned browser session from previous run",
		logger.Field{Key: "profile_id", Value: sess.ProfileID},
		logger.Field{Key: "opened_at", Value: sess.OpenedAt})
	if err := m.launcher.StopProfile(ctx, sess.ProfileID); err != nil {
		m.log.Warn("Failed to stop orphaned session",
			logger.Field{Key: "profile_id", Value: sess.ProfileID},
			logger.Field{Key: "error", Value: err.Error()})
	}
	if err := m.store.ClearActiveSession(); err != nil {
		m.log.Error("Failed to clear session marker",
			logger.Field{Key: "error", Value: err.Error()})
	}
}

// Open starts the remote browser, attaches over CDP, and verifies the
// page responds. Any failure after the launcher start rolls the remote
// session back.
func (m *SessionManager) Open(ctx context.Context, profile models.Profile) (*Session, error) {
	debugURL, err := m.launcher.StartProfile(ctx, profile.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser for profile %s: %w", profile.ProfileID, err)
	}

	if err := m.store.SetActiveSession(&models.BrowserSession{
		ProfileID: profile.ProfileID,
		DebugURL:  debugURL,
		OpenedAt:  time.Now(),
	}); err != nil {
		m.rollback(ctx, profile.ProfileID)
		return nil, err
	}

	if m.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			m.rollback(ctx, profile.ProfileID)
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		m.pw = pw
	}

	browser, err := m.pw.Chromium.ConnectOverCDP(debugURL)
	if err != nil {
		m.rollback(ctx, profile.ProfileID)
		return nil, fmt.Errorf("failed to attach to debug endpoint %s: %w", debugURL, err)
	}

	page, tabCount, err := m.attachPage(browser)
	if err != nil {
		if closeErr := browser.Close(); closeErr != nil {
			m.log.Warn("Failed to close browser after attach error",
				logger.Field{Key: "error", Value: closeErr.Error()})
		}
		m.rollback(ctx, profile.ProfileID)
		return nil, err
	}

	if m.stealth != nil {
		if err := m.stealth.Apply(page); err != nil {
			m.log.Warn("Stealth injection failed",
				logger.Field{Key: "profile_id", Value: profile.ProfileID},
				logger.Field{Key: "error", Value: err.Error()})
		}
	}

	// Verify the session answers by reading the current URL.
	if page.URL() == "" {
		if closeErr := browser.Close(); closeErr != nil {
			m.log.Warn("Failed to close unverified browser",
				logger.Field{Key: "error", Value: closeErr.Error()})
		}
		m.rollback(ctx, profile.ProfileID)
		return nil, models.ErrSessionNotVerified
	}

	bookmarks, err := m.launcher.Bookmarks(ctx, profile.ProfileID)
	if err != nil {
		m.log.Warn("Failed to fetch bookmarks",
			logger.Field{Key: "profile_id", Value: profile.ProfileID},
			logger.Field{Key: "error", Value: err.Error()})
	}

	m.log.Info("Browser session opened",
		logger.Field{Key: "profile_id", Value: profile.ProfileID},
		logger.Field{Key: "profile", Value: profile.Name},
		logger.Field{Key: "tabs", Value: tabCount},
		logger.Field{Key: "bookmarks", Value: len(bookmarks)})

	return &Session{
		Profile:   profile,
		DebugURL:  debugURL,
		browser:   browser,
		page:      page,
		dom:       NewPlaywrightDOM(page, m.cfg.NavigationTimeout),
		bookmarks: bookmarks,
		tabCount:  tabCount,
	}, nil
}

func (m *SessionManager) attachPage(browser playwright.Browser) (playwright.Page, int, error) {
	contexts := browser.Contexts()
	if len(contexts) == 0 {
		return nil, 0, fmt.Errorf("attached browser has no contexts")
	}
	pages := contexts[0].Pages()
	if len(pages) > 0 {
		return pages[0], len(pages), nil
	}
	page, err := contexts[0].NewPage()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open page: %w", err)
	}
	return page, 1, nil
}

// Close tears the session down. The driver quit and the launcher stop are
// attempted independently; a failure in one does not skip the other.
func (m *SessionManager) Close(ctx context.Context, sess *Session) {
	if sess == nil {
		return
	}
	if sess.browser != nil {
		if err := sess.browser.Close(); err != nil {
			m.log.Warn("Failed to close browser connection",
				logger.Field{Key: "profile_id", Value: sess.Profile.ProfileID},
				logger.Field{Key: "error", Value: err.Error()})
		}
	}
	if err := m.launcher.StopProfile(ctx, sess.Profile.ProfileID); err != nil {
		m.log.Warn("Failed to stop remote browser",
			logger.Field{Key: "profile_id", Value: sess.Profile.ProfileID},
			logger.Field{Key: "error", Value: err.Error()})
	}
	if err := m.store.ClearActiveSession(); err != nil {
		m.log.Error("Failed to clear session marker",
			logger.Field{Key: "error", Value: err.Error()})
	}
	m.log.Info("Browser session closed",
		logger.Field{Key: "profile_id", Value: sess.Profile.ProfileID})
}

func (m *SessionManager) rollback(ctx context.Context, profileID string) {
	if err := m.launcher.StopProfile(ctx, profileID); err != nil {
		m.log.Warn("Rollback stop failed",
			logger.Field{Key: "profile_id", Value: profileID},
			logger.Field{Key: "error", Value: err.Error()})
	}
	if err := m.store.ClearActiveSession(); err != nil {
		m.log.Error("Failed to clear session marker during rollback",
			logger.Field{Key: "error", Value: err.Error()})
	}
}

// Shutdown stops the embedded playwright driver.
func (m *SessionManager) Shutdown() error {
	if m.pw == nil {
		return nil
	}
	if err := m.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	m.pw = nil
	return nil
}
