// Package profile iterates the launcher-managed browser profiles for one
// run. The list is fetched fresh at startup; iteration is linear and does
// not wrap, so one run visits each profile at most once.
package profile

import (
	"context"
	"fmt"

	"github.com/contentflow/uploadflow/internal/browser"
	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/pkg/logger"
)

type Manager struct {
	launcher *browser.LauncherClient
	sessions *browser.SessionManager
	store    *state.Store
	log      logger.Logger

	profiles []models.Profile
	index    int
}

func NewManager(launcher *browser.LauncherClient, sessions *browser.SessionManager, store *state.Store, log logger.Logger) *Manager {
	return &Manager{
		launcher: launcher,
		sessions: sessions,
		store:    store,
		log:      log,
	}
}

// Load fetches the profile list and restores the persisted position. The
// saved ProfileID wins over the saved index: profiles can be reordered or
// removed in the launcher between runs, and the ID pins the position to
// the profile actually being processed. When the ID is gone the index is
// clamped instead.
func (m *Manager) Load(ctx context.Context) error {
	profiles, err := m.launcher.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch profiles: %w", err)
	}
	if len(profiles) == 0 {
		return models.ErrNoProfiles
	}
	m.profiles = profiles

	pos, err := m.store.ProfilePosition()
	if err != nil {
		return err
	}

	m.index = m.restoreIndex(pos)
	if err := m.persist(); err != nil {
		return err
	}

	m.log.Info("Profiles loaded",
		logger.Field{Key: "total", Value: len(m.profiles)},
		logger.Field{Key: "resume_index", Value: m.index})
	return nil
}

func (m *Manager) restoreIndex(pos models.ProfileState) int {
	if pos.CurrentProfileID != "" {
		for i, p := range m.profiles {
			if p.ProfileID == pos.CurrentProfileID {
				return i
			}
		}
		m.log.Warn("Saved profile no longer exists, falling back to saved index",
			logger.Field{Key: "profile_id", Value: pos.CurrentProfileID})
	}
	if pos.CurrentProfileIndex >= len(m.profiles) {
		return 0
	}
	if pos.CurrentProfileIndex < 0 {
		return 0
	}
	return pos.CurrentProfileIndex
}

// Current returns the profile at the cursor, or false when the run has
// walked past the final profile.
func (m *Manager) Current() (models.Profile, bool) {
	if m.index >= len(m.profiles) {
		return models.Profile{}, false
	}
	return m.profiles[m.index], true
}

// Advance moves to the next profile without wrapping and persists the new
// position. It returns false when the list is exhausted.
func (m *Manager) Advance() (bool, error) {
	if m.index >= len(m.profiles) {
		return false, nil
	}
	m.index++
	if err := m.persist(); err != nil {
		return false, err
	}
	return m.index < len(m.profiles), nil
}

// Rewind restarts iteration from the first profile for a new round.
func (m *Manager) Rewind() error {
	m.index = 0
	return m.persist()
}

func (m *Manager) Total() int {
	return len(m.profiles)
}

func (m *Manager) persist() error {
	id := ""
	if m.index < len(m.profiles) {
		id = m.profiles[m.index].ProfileID
	}
	return m.store.UpdateProfilePosition(m.index, id, len(m.profiles))
}

// Open starts the browser session for the current profile.
func (m *Manager) Open(ctx context.Context) (*browser.Session, error) {
	current, ok := m.Current()
	if !ok {
		return nil, models.ErrNoProfiles
	}
	return m.sessions.Open(ctx, current)
}

func (m *Manager) Close(ctx context.Context, sess *browser.Session) {
	m.sessions.Close(ctx, sess)
}
