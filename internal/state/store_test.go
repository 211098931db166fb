package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/pkg/logger"
)

type StoreTestSuite struct {
	suite.Suite
	dir   string
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	var err error
	s.store, err = NewStore(s.dir, logger.New("debug", "text"))
	s.Require().NoError(err)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) TestLoadState_MissingFile() {
	st, err := s.store.LoadState()
	s.NoError(err)
	s.Equal(models.UploadIdle, st.CurrentUpload.Status)
	s.Equal(0, st.Queue.CurrentCycle)
}

func (s *StoreTestSuite) TestSaveLoad_RoundTrip() {
	st := models.NewBotState()
	st.CurrentUpload = models.CurrentUpload{
		VideoFile: "/data/alice/clip.mp4",
		VideoName: "clip",
		Bookmark:  "alice",
		Status:    models.UploadInProgress,
		Progress:  42,
		Attempt:   2,
	}
	st.Queue = models.QueueState{
		CurrentFolderIndex: 1,
		CurrentFolderPath:  "/data/alice",
		TotalFolders:       3,
		CurrentCycle:       2,
	}
	st.DailyStats = models.DailyStats{Date: "2026-08-24", BookmarksUploaded: 5, VideosUploaded: 5}

	s.Require().NoError(s.store.SaveState(st))

	loaded, err := s.store.LoadState()
	s.Require().NoError(err)

	// LastUpdated is stamped on save; compare everything else.
	loaded.LastUpdated = st.LastUpdated
	s.Equal(st, loaded)
}

func (s *StoreTestSuite) TestSaveState_WritesBackupAndPrettyJSON() {
	s.Require().NoError(s.store.SaveState(models.NewBotState()))

	st, err := s.store.LoadState()
	s.Require().NoError(err)
	st.Queue.CurrentCycle = 7
	s.Require().NoError(s.store.SaveState(st))

	data, err := os.ReadFile(filepath.Join(s.dir, "bot_state.json"))
	s.Require().NoError(err)
	s.Contains(string(data), "\n  \"queue\"")

	bak, err := os.ReadFile(filepath.Join(s.dir, "bot_state.json.bak"))
	s.Require().NoError(err)

	var prev models.BotState
	s.Require().NoError(json.Unmarshal(bak, &prev))
	s.Equal(0, prev.Queue.CurrentCycle, "backup must hold the previous version")
}

func (s *StoreTestSuite) TestLoadState_CorruptFileTreatedAsEmpty() {
	path := filepath.Join(s.dir, "bot_state.json")
	s.Require().NoError(os.WriteFile(path, []byte("{not json"), 0o644))

	st, err := s.store.LoadState()
	s.NoError(err)
	s.Equal(models.UploadIdle, st.CurrentUpload.Status)
}

func (s *StoreTestSuite) TestAtomicWrite_OriginalSurvivesStrandedTemp() {
	st := models.NewBotState()
	st.Queue.CurrentCycle = 3
	s.Require().NoError(s.store.SaveState(st))

	// A stranded temp file from an interrupted write must not affect the
	// destination.
	tmp := filepath.Join(s.dir, "bot_state.json.tmp")
	s.Require().NoError(os.WriteFile(tmp, []byte("partial"), 0o644))

	loaded, err := s.store.LoadState()
	s.Require().NoError(err)
	s.Equal(3, loaded.Queue.CurrentCycle)

	// Next write replaces the stranded temp and still lands atomically.
	loaded.Queue.CurrentCycle = 4
	s.Require().NoError(s.store.SaveState(loaded))
	again, err := s.store.LoadState()
	s.Require().NoError(err)
	s.Equal(4, again.Queue.CurrentCycle)
}

func (s *StoreTestSuite) TestCheckDailyLimit_ProAlwaysPasses() {
	s.Require().NoError(s.store.IncrementDailyBookmarks(1000))

	reached, count, err := s.store.CheckDailyLimit(models.PlanPro, 5)
	s.NoError(err)
	s.False(reached)
	s.Equal(1000, count)
}

func (s *StoreTestSuite) TestCheckDailyLimit_Basic() {
	tests := []struct {
		name    string
		uploads int
		limit   int
		reached bool
	}{
		{"under limit", 1, 5, false},
		{"at limit", 5, 5, true},
		{"over limit", 6, 5, true},
		{"zero uploads", 0, 5, false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			dir := s.T().TempDir()
			store, err := NewStore(dir, logger.New("debug", "text"))
			s.Require().NoError(err)
			if tt.uploads > 0 {
				s.Require().NoError(store.IncrementDailyBookmarks(tt.uploads))
			}

			reached, count, err := store.CheckDailyLimit(models.PlanBasic, tt.limit)
			s.NoError(err)
			s.Equal(tt.reached, reached)
			s.Equal(tt.uploads, count)
		})
	}
}

func (s *StoreTestSuite) TestCheckDailyLimit_DateRolloverResets() {
	s.Require().NoError(s.store.IncrementDailyBookmarks(9))

	// Move the clock one day forward.
	s.store.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	reached, count, err := s.store.CheckDailyLimit(models.PlanBasic, 5)
	s.NoError(err)
	s.False(reached)
	s.Equal(0, count)

	// Idempotent: a second check on the same new day does not reset again.
	s.Require().NoError(s.store.IncrementDailyBookmarks(2))
	reached, count, err = s.store.CheckDailyLimit(models.PlanBasic, 5)
	s.NoError(err)
	s.False(reached)
	s.Equal(2, count)
}

func (s *StoreTestSuite) TestMarkFolderCompleted_GrowsMonotonically() {
	s.Require().NoError(s.store.MarkFolderCompleted("/data/alice"))
	s.Require().NoError(s.store.MarkFolderCompleted("/data/bob"))
	s.Require().NoError(s.store.MarkFolderCompleted("/data/alice"))

	progress, err := s.store.FolderProgress()
	s.Require().NoError(err)
	s.Len(progress, 2)
	s.Equal("completed", progress["alice"].Status)
	s.Equal("/data/bob", progress["bob"].FolderPath)
}

func (s *StoreTestSuite) TestIsVideoUploaded_ExactPathMembership() {
	rec := models.UploadRecord{
		FilePath:  "/data/alice/clip.mp4",
		Bookmark:  "alice",
		SessionID: "sess-1",
	}
	s.Require().NoError(s.store.MarkVideoUploaded(rec))

	uploaded, err := s.store.IsVideoUploaded("/data/alice/clip.mp4")
	s.NoError(err)
	s.True(uploaded)

	uploaded, err = s.store.IsVideoUploaded("/data/alice/CLIP.mp4")
	s.NoError(err)
	s.False(uploaded, "membership is exact, not case-folded")

	uploaded, err = s.store.IsVideoUploaded("/data/alice/other.mp4")
	s.NoError(err)
	s.False(uploaded)
}

func (s *StoreTestSuite) TestUploadHistory_AppendOnly() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.MarkVideoUploaded(models.UploadRecord{
			FilePath: filepath.Join("/data/alice", "clip"+string(rune('a'+i))+".mp4"),
		}))
	}

	history, err := s.store.UploadHistory()
	s.Require().NoError(err)
	s.Len(history, 3)
	s.False(history[0].UploadedAt.IsZero())
}

func (s *StoreTestSuite) TestActiveSession_Marker() {
	sess, err := s.store.ActiveSession()
	s.Require().NoError(err)
	s.Nil(sess)

	s.Require().NoError(s.store.SetActiveSession(&models.BrowserSession{
		ProfileID: "p-1",
		DebugURL:  "http://127.0.0.1:9222",
		OpenedAt:  time.Now(),
	}))

	sess, err = s.store.ActiveSession()
	s.Require().NoError(err)
	s.Require().NotNil(sess)
	s.Equal("p-1", sess.ProfileID)

	s.Require().NoError(s.store.ClearActiveSession())
	sess, err = s.store.ActiveSession()
	s.Require().NoError(err)
	s.Nil(sess)
}

func TestStore_UpdateCurrentUploadPreservesStartedAt(t *testing.T) {
	store, err := NewStore(t.TempDir(), logger.New("debug", "text"))
	require.NoError(t, err)

	started := time.Now().Add(-time.Minute)
	require.NoError(t, store.UpdateCurrentUpload(models.CurrentUpload{
		VideoFile: "/data/a/v.mp4",
		Status:    models.UploadNavigating,
		StartedAt: started,
	}))
	require.NoError(t, store.UpdateCurrentUpload(models.CurrentUpload{
		VideoFile: "/data/a/v.mp4",
		Status:    models.UploadInProgress,
		Progress:  10,
	}))

	st, err := store.LoadState()
	require.NoError(t, err)
	assert.WithinDuration(t, started, st.CurrentUpload.StartedAt, time.Second)
	assert.Equal(t, models.UploadInProgress, st.CurrentUpload.Status)
}

// A file that decodes partway before erroring must not leak the partial
// content; the document comes back empty.
func TestStore_CorruptFileYieldsEmptyDocument(t *testing.T) {
	t.Run("bot state with a mistyped section", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewStore(dir, logger.New("debug", "text"))
		require.NoError(t, err)

		// Valid JSON, so decoding populates daily_stats before tripping
		// over the queue section.
		corrupt := `{"daily_stats":{"videos_uploaded":5},"queue":"nope"}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bot_state.json"), []byte(corrupt), 0o644))

		st, err := store.LoadState()
		require.NoError(t, err)
		assert.Equal(t, 0, st.DailyStats.VideosUploaded)
		assert.Equal(t, models.UploadIdle, st.CurrentUpload.Status)
		assert.Equal(t, models.NetworkStable, st.Network.Status)
	})

	t.Run("folder progress with a bad entry", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewStore(dir, logger.New("debug", "text"))
		require.NoError(t, err)

		// "alice" decodes fine before the decoder trips over "bob".
		corrupt := `{"alice":{"status":"completed"},"bob":42}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "folder_progress.json"), []byte(corrupt), 0o644))

		progress, err := store.FolderProgress()
		require.NoError(t, err)
		assert.Empty(t, progress)
	})
}
