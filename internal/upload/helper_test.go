package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/contentflow/uploadflow/internal/config"
	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/internal/network"
	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/internal/testutil"
	"github.com/contentflow/uploadflow/pkg/logger"
)

type fixedChecker struct {
	status models.NetworkStatus
}

func (c *fixedChecker) Check(ctx context.Context) models.NetworkStatus {
	return c.status
}

// recordingMetrics captures attempt and progress reports.
type recordingMetrics struct {
	attempts int
	progress []float64
}

func (m *recordingMetrics) IncrementAttempts()          { m.attempts++ }
func (m *recordingMetrics) SetUploadProgress(p float64) { m.progress = append(m.progress, p) }

type HelperTestSuite struct {
	suite.Suite

	store    *state.Store
	helper   *Helper
	metrics  *recordingMetrics
	dom      *testutil.FakeDOM
	folder   string
	video    string
	bookmark models.Bookmark
}

func (s *HelperTestSuite) SetupTest() {
	var err error
	s.store, err = state.NewStore(s.T().TempDir(), logger.New("debug", "text"))
	s.Require().NoError(err)

	s.folder = s.T().TempDir()
	s.video = filepath.Join(s.folder, "clip one.mp4")
	s.Require().NoError(os.WriteFile(s.video, []byte("video bytes"), 0o644))

	s.bookmark = models.Bookmark{Title: "clip channel", URL: "https://www.facebook.com/clipchannel"}

	s.helper = s.newHelper(models.NetworkStable, "")
	s.dom = s.successfulDOM()
}

func (s *HelperTestSuite) newHelper(netStatus models.NetworkStatus, quarantineDir string) *Helper {
	log := logger.New("debug", "text")
	monitor := network.NewMonitor(&fixedChecker{status: netStatus}, time.Minute, log)
	s.metrics = &recordingMetrics{}

	h := NewHelper(s.store, monitor, nil, config.DefaultSelectors(), config.UploadConfig{
		MaxAttempts:          3,
		RetryBackoffBase:     time.Millisecond,
		ProgressTimeout:      time.Second,
		ProgressPollInterval: time.Millisecond,
		StuckThreshold:       3,
		TargetDomain:         "facebook.com",
	}, config.NetworkConfig{
		MaxRecoveryWait: 20 * time.Millisecond,
		RecoveryPoll:    5 * time.Millisecond,
	}, quarantineDir, s.metrics, log)

	h.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}
	return h
}

// successfulDOM registers visible elements for the default selector chains
// so a full attempt runs through.
func (s *HelperTestSuite) successfulDOM() *testutil.FakeDOM {
	dom := testutil.NewFakeDOM()

	dom.Register("input[type='file'][accept*='video']", testutil.NewFakeElement())
	dom.Register("div[role='textbox'][contenteditable='true']", testutil.NewFakeElement())

	progress := testutil.NewFakeElement()
	progress.TextScript = testutil.ScriptedProgress(25, 50, 75, 100)
	dom.Register("div[role='progressbar']", progress)

	dom.Register("Publish", testutil.NewFakeElement())
	return dom
}

func (s *HelperTestSuite) TestSuccessfulUpload() {
	err := s.helper.Upload(context.Background(), s.dom, s.bookmark, s.video)
	s.Require().NoError(err)

	// Source moved into the processed subfolder.
	s.NoFileExists(s.video)
	moved := filepath.Join(s.folder, "uploaded videos", "clip one.mp4")
	s.FileExists(moved)

	// History records the original path and the destination.
	history, err := s.store.UploadHistory()
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(s.video, history[0].FilePath)
	s.Equal(moved, history[0].MovedTo)
	s.Equal("clip channel", history[0].Bookmark)
	s.Equal(s.helper.SessionID(), history[0].SessionID)

	uploaded, err := s.store.IsVideoUploaded(s.video)
	s.Require().NoError(err)
	s.True(uploaded)

	stats, err := s.store.DailyStats()
	s.Require().NoError(err)
	s.Equal(1, stats.VideosUploaded)

	// Current upload cleared after success.
	st, err := s.store.LoadState()
	s.Require().NoError(err)
	s.Equal(models.UploadIdle, st.CurrentUpload.Status)
	s.Empty(st.CurrentUpload.VideoFile)
}

func (s *HelperTestSuite) TestTitleTypedCharacterByCharacter() {
	err := s.helper.Upload(context.Background(), s.dom, s.bookmark, s.video)
	s.Require().NoError(err)

	title := s.dom.Elements["div[role='textbox'][contenteditable='true']"]
	s.Equal(len([]rune("clip one")), len(title.Typed))
	s.Empty(title.Fills)
}

func (s *HelperTestSuite) TestEmojiTitleFallsBackToFill() {
	video := filepath.Join(s.folder, "dance 🔥 reel.mp4")
	s.Require().NoError(os.WriteFile(video, []byte("v"), 0o644))

	err := s.helper.Upload(context.Background(), s.dom, s.bookmark, video)
	s.Require().NoError(err)

	title := s.dom.Elements["div[role='textbox'][contenteditable='true']"]
	s.Empty(title.Typed)
	s.Require().Len(title.Fills, 1)
	s.Equal("dance 🔥 reel", title.Fills[0])
}

func (s *HelperTestSuite) TestOverlaysDismissedBeforeInjection() {
	overlay := testutil.NewFakeElement()
	s.dom.Register("//div[@aria-label='Close']", overlay)

	err := s.helper.Upload(context.Background(), s.dom, s.bookmark, s.video)
	s.Require().NoError(err)
	s.Equal(1, overlay.Clicks)
}

func (s *HelperTestSuite) TestPublishHoveredNotClicked() {
	err := s.helper.Upload(context.Background(), s.dom, s.bookmark, s.video)
	s.Require().NoError(err)

	publish := s.dom.Elements["Publish"]
	s.Equal(1, publish.Hovers)
	s.Zero(publish.Clicks)
}

func (s *HelperTestSuite) TestProgressStuckBelowHundredTimesOut() {
	stuck := s.successfulDOM()
	progress := testutil.NewFakeElement()
	progress.TextScript = []string{"30%", "75%"}
	stuck.Register("div[role='progressbar']", progress)

	helper := s.newHelper(models.NetworkStable, "")
	helper.cfg.ProgressTimeout = 20 * time.Millisecond
	helper.cfg.MaxAttempts = 1

	err := helper.Upload(context.Background(), stuck, s.bookmark, s.video)
	s.Require().Error(err)
	s.ErrorIs(err, models.ErrUploadTimeout)

	// Terminal failure clears the in-flight record.
	st, err := s.store.LoadState()
	s.Require().NoError(err)
	s.Equal(models.UploadIdle, st.CurrentUpload.Status)
}

func (s *HelperTestSuite) TestRetryExhaustionDeletesVideoAndSkipsHistory() {
	// No file input on the page: every attempt fails at injection.
	dom := testutil.NewFakeDOM()

	err := s.helper.Upload(context.Background(), dom, s.bookmark, s.video)
	s.Require().Error(err)
	s.ErrorIs(err, models.ErrElementNotFound)

	s.NoFileExists(s.video)

	history, err := s.store.UploadHistory()
	s.Require().NoError(err)
	s.Empty(history)

	uploaded, err := s.store.IsVideoUploaded(s.video)
	s.Require().NoError(err)
	s.False(uploaded)

	st, err := s.store.LoadState()
	s.Require().NoError(err)
	s.Equal(models.UploadIdle, st.CurrentUpload.Status)

	// Every attempt of the exhausted retry budget is counted.
	s.Equal(3, s.metrics.attempts)
}

// A clean upload reports one attempt and the progress samples the page
// produced, ending at completion.
func (s *HelperTestSuite) TestMetricsRecordAttemptsAndProgress() {
	err := s.helper.Upload(context.Background(), s.dom, s.bookmark, s.video)
	s.Require().NoError(err)

	s.Equal(1, s.metrics.attempts)
	s.Equal([]float64{25, 50, 75, 100}, s.metrics.progress)
}

func (s *HelperTestSuite) TestRetryExhaustionQuarantinesWhenConfigured() {
	quarantine := s.T().TempDir()
	helper := s.newHelper(models.NetworkStable, quarantine)

	dom := testutil.NewFakeDOM()
	err := helper.Upload(context.Background(), dom, s.bookmark, s.video)
	s.Require().Error(err)

	s.NoFileExists(s.video)
	entries, err := os.ReadDir(quarantine)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Contains(entries[0].Name(), "clip one.mp4")
}

func (s *HelperTestSuite) TestNetworkPreflightAbortsWithoutTouchingPage() {
	helper := s.newHelper(models.NetworkDisconnected, "")

	err := helper.Upload(context.Background(), s.dom, s.bookmark, s.video)
	s.Require().Error(err)
	s.ErrorIs(err, models.ErrNetworkUnavailable)

	s.Empty(s.dom.Navigations)
	s.FileExists(s.video)
}

func (s *HelperTestSuite) TestWrongDomainFailsTheAttempt() {
	bookmark := models.Bookmark{Title: "offsite", URL: "https://example.com/upload"}

	err := s.helper.Upload(context.Background(), s.dom, bookmark, s.video)
	s.Require().Error(err)
	s.Contains(err.Error(), "expected facebook.com")
	s.NoFileExists(s.video)
}

func (s *HelperTestSuite) TestMoveCollisionGetsTimestampSuffix() {
	processed := filepath.Join(s.folder, "uploaded videos")
	s.Require().NoError(os.MkdirAll(processed, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(processed, "clip one.mp4"), []byte("old"), 0o644))

	err := s.helper.Upload(context.Background(), s.dom, s.bookmark, s.video)
	s.Require().NoError(err)

	entries, err := os.ReadDir(processed)
	s.Require().NoError(err)
	s.Len(entries, 2)

	history, err := s.store.UploadHistory()
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.NotEqual(filepath.Join(processed, "clip one.mp4"), history[0].MovedTo)
	s.Contains(history[0].MovedTo, "clip one_")
}

func (s *HelperTestSuite) TestCancellationStopsTheRetryLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dom := testutil.NewFakeDOM()
	err := s.helper.Upload(ctx, dom, s.bookmark, s.video)
	s.Require().Error(err)
	s.ErrorIs(err, context.Canceled)

	// Cancellation is not a terminal failure: the file survives.
	s.FileExists(s.video)
}

func TestHelperTestSuite(t *testing.T) {
	suite.Run(t, new(HelperTestSuite))
}
