package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/pkg/logger"
)

const (
	botStateFile       = "bot_state.json"
	folderProgressFile = "folder_progress.json"
	uploadHistoryFile  = "uploaded_videos.json"

	dateLayout = "2006-01-02"
)

// Store persists the orchestrator's progress documents as pretty-printed
// JSON files with sibling .bak backups. Writes go through a temp file and
// an atomic rename; a local mutex serializes access within the process.
// The store is not safe for use from multiple processes.
type Store struct {
	dir        string
	mu         sync.Mutex
	log        logger.Logger
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

func NewStore(dir string, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{
		dir:        dir,
		log:        log,
		maxRetries: 5,
		retryDelay: 100 * time.Millisecond,
		now:        time.Now,
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// LoadState reads bot_state.json. A missing or undecodable file yields a
// fresh empty document; only I/O errors other than not-exist propagate.
func (s *Store) LoadState() (*models.BotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadStateLocked()
}

func (s *Store) loadStateLocked() (*models.BotState, error) {
	st := models.NewBotState()
	if err := s.readJSON(botStateFile, st); err != nil {
		return nil, err
	}
	return st, nil
}

// SaveState writes the whole document, stamping LastUpdated.
func (s *Store) SaveState(st *models.BotState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveStateLocked(st)
}

func (s *Store) saveStateLocked(st *models.BotState) error {
	st.LastUpdated = s.now()
	return s.writeJSON(botStateFile, st)
}

// mutate runs a read-modify-write cycle on bot_state.json under the lock.
func (s *Store) mutate(fn func(st *models.BotState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadStateLocked()
	if err != nil {
		return err
	}
	fn(st)
	return s.saveStateLocked(st)
}

func (s *Store) UpdateCurrentUpload(cu models.CurrentUpload) error {
	return s.mutate(func(st *models.BotState) {
		cu.UpdatedAt = s.now()
		if cu.StartedAt.IsZero() {
			cu.StartedAt = st.CurrentUpload.StartedAt
		}
		st.CurrentUpload = cu
	})
}

func (s *Store) SetUploadProgress(progress int) error {
	return s.mutate(func(st *models.BotState) {
		st.CurrentUpload.Progress = progress
		st.CurrentUpload.UpdatedAt = s.now()
	})
}

func (s *Store) ClearCurrentUpload() error {
	return s.mutate(func(st *models.BotState) {
		st.CurrentUpload = models.CurrentUpload{Status: models.UploadIdle}
	})
}

func (s *Store) UpdateQueuePosition(index int, path string, total, cycle int) error {
	return s.mutate(func(st *models.BotState) {
		st.Queue = models.QueueState{
			CurrentFolderIndex: index,
			CurrentFolderPath:  path,
			TotalFolders:       total,
			CurrentCycle:       cycle,
		}
	})
}

func (s *Store) QueuePosition() (models.QueueState, error) {
	st, err := s.LoadState()
	if err != nil {
		return models.QueueState{}, err
	}
	return st.Queue, nil
}

func (s *Store) UpdateProfilePosition(index int, profileID string, total int) error {
	return s.mutate(func(st *models.BotState) {
		st.Profile = models.ProfileState{
			CurrentProfileIndex: index,
			CurrentProfileID:    profileID,
			TotalProfiles:       total,
			LastUpdated:         s.now(),
		}
	})
}

func (s *Store) ProfilePosition() (models.ProfileState, error) {
	st, err := s.LoadState()
	if err != nil {
		return models.ProfileState{}, err
	}
	return st.Profile, nil
}

func (s *Store) UpdateNetworkStatus(status models.NetworkStatus, consecutiveFailures int) error {
	return s.mutate(func(st *models.BotState) {
		now := s.now()
		if status != models.NetworkStable && st.Network.Status == models.NetworkStable {
			st.Network.LastDropTime = &now
		}
		st.Network.Status = status
		st.Network.LastCheck = now
		st.Network.ConsecutiveFailures = consecutiveFailures
	})
}

// SetActiveSession records a started remote browser session so a crash
// between launcher start and stop is detectable on the next run.
func (s *Store) SetActiveSession(sess *models.BrowserSession) error {
	return s.mutate(func(st *models.BotState) {
		st.Session = sess
	})
}

func (s *Store) ClearActiveSession() error {
	return s.mutate(func(st *models.BotState) {
		st.Session = nil
	})
}

func (s *Store) ActiveSession() (*models.BrowserSession, error) {
	st, err := s.LoadState()
	if err != nil {
		return nil, err
	}
	return st.Session, nil
}

// CheckDailyLimit reports whether the daily bookmark cap is reached. A
// stored date different from today resets the counters to zero first, and
// the reset is persisted so repeated calls on the same day are idempotent.
// Pro plan has no cap.
func (s *Store) CheckDailyLimit(plan models.Plan, limit int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadStateLocked()
	if err != nil {
		return false, 0, err
	}

	today := s.now().Format(dateLayout)
	if st.DailyStats.Date != today {
		st.DailyStats = models.DailyStats{
			Date:      today,
			StartedAt: s.now(),
		}
		if err := s.saveStateLocked(st); err != nil {
			return false, 0, err
		}
	}

	if plan == models.PlanPro {
		return false, st.DailyStats.BookmarksUploaded, nil
	}
	return st.DailyStats.BookmarksUploaded >= limit, st.DailyStats.BookmarksUploaded, nil
}

func (s *Store) IncrementDailyBookmarks(count int) error {
	return s.mutate(func(st *models.BotState) {
		today := s.now().Format(dateLayout)
		if st.DailyStats.Date != today {
			st.DailyStats = models.DailyStats{Date: today, StartedAt: s.now()}
		}
		st.DailyStats.BookmarksUploaded += count
	})
}

func (s *Store) IncrementDailyVideos(count int) error {
	return s.mutate(func(st *models.BotState) {
		today := s.now().Format(dateLayout)
		if st.DailyStats.Date != today {
			st.DailyStats = models.DailyStats{Date: today, StartedAt: s.now()}
		}
		st.DailyStats.VideosUploaded += count
	})
}

func (s *Store) DailyStats() (models.DailyStats, error) {
	st, err := s.LoadState()
	if err != nil {
		return models.DailyStats{}, err
	}
	return st.DailyStats, nil
}

// MarkFolderCompleted adds an entry to folder_progress.json. Entries grow
// monotonically; completed folders are never un-marked.
func (s *Store) MarkFolderCompleted(folderPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	progress := models.FolderProgress{}
	if err := s.readJSON(folderProgressFile, &progress); err != nil {
		return err
	}
	progress[filepath.Base(folderPath)] = models.FolderRecord{
		Status:      "completed",
		CompletedAt: s.now(),
		FolderPath:  folderPath,
	}
	return s.writeJSON(folderProgressFile, progress)
}

func (s *Store) FolderProgress() (models.FolderProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	progress := models.FolderProgress{}
	if err := s.readJSON(folderProgressFile, &progress); err != nil {
		return nil, err
	}
	return progress, nil
}

// MarkVideoUploaded appends to the upload history.
func (s *Store) MarkVideoUploaded(rec models.UploadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []models.UploadRecord
	if err := s.readJSON(uploadHistoryFile, &history); err != nil {
		return err
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = s.now()
	}
	history = append(history, rec)
	return s.writeJSON(uploadHistoryFile, history)
}

// IsVideoUploaded is an exact-path membership test against the history.
func (s *Store) IsVideoUploaded(path string) (bool, error) {
	history, err := s.UploadHistory()
	if err != nil {
		return false, err
	}
	for _, rec := range history {
		if rec.FilePath == path {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UploadHistory() ([]models.UploadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []models.UploadRecord
	if err := s.readJSON(uploadHistoryFile, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) readJSON(name string, v interface{}) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	// Decode into a scratch value so a file that fails partway through
	// cannot leave v half-populated. Maps share storage, so only non-map
	// documents carry their current defaults into the decode.
	elem := reflect.ValueOf(v).Elem()
	scratch := reflect.New(elem.Type())
	if elem.Kind() != reflect.Map {
		scratch.Elem().Set(elem)
	}
	if err := json.Unmarshal(data, scratch.Interface()); err != nil {
		// Undecodable state is treated as empty; the .bak copy is the only
		// recovery path.
		s.log.Warn("State file is corrupt, starting from empty document",
			logger.Field{Key: "file", Value: name},
			logger.Field{Key: "error", Value: err.Error()})
		return nil
	}
	elem.Set(scratch.Elem())
	return nil
}

// writeJSON performs the atomic write: back up the current file, write a
// temp file, then rename over the destination. Rename failures (a locking
// handle on some platforms) unlink the destination and retry with
// exponential backoff.
func (s *Store) writeJSON(name string, v interface{}) error {
	path := filepath.Join(s.dir, name)
	tmpPath := path + ".tmp"
	bakPath := path + ".bak"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(bakPath, prev, 0o644); err != nil {
			s.log.Warn("Failed to write backup copy",
				logger.Field{Key: "file", Value: bakPath},
				logger.Field{Key: "error", Value: err.Error()})
		}
	}

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write temp file for %s: %v", models.ErrStateWrite, name, err)
	}

	delay := s.retryDelay
	var renameErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		renameErr = os.Rename(tmpPath, path)
		if renameErr == nil {
			return nil
		}
		// Rename over an open file can fail on some platforms; drop the
		// destination and retry.
		_ = os.Remove(path)
		time.Sleep(delay)
		delay *= 2
	}
	return fmt.Errorf("%w: rename %s after %d attempts: %v", models.ErrStateWrite, name, s.maxRetries, renameErr)
}
