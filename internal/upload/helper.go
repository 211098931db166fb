// Package upload drives one video upload attempt end to end: navigate to
// the bookmark, inject the file, set the title, poll progress, and confirm
// the publish control. Failures inside an attempt are converted into a
// bounded retry; only persistence failures propagate directly.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contentflow/uploadflow/internal/browser"
	"github.com/contentflow/uploadflow/internal/config"
	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/internal/network"
	"github.com/contentflow/uploadflow/internal/queue"
	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/pkg/logger"
)

// Metrics is the slice of the collector surface the helper reports to.
// Optional; a nil value drops everything.
type Metrics interface {
	IncrementAttempts()
	SetUploadProgress(percent float64)
}

// Helper is the per-video upload state machine. One instance serves the
// whole run; a fresh session ID is minted per process for history records.
type Helper struct {
	store   *state.Store
	monitor *network.Monitor
	human   *browser.Humanizer
	cfg     config.UploadConfig
	netCfg  config.NetworkConfig
	metrics Metrics
	log     logger.Logger

	overlays  *browser.Chain
	fileInput *browser.Chain
	title     *browser.Chain
	progress  *browser.Chain
	publish   *browser.Chain

	// QuarantineDir receives terminally failed videos instead of deletion
	// when set.
	quarantineDir string
	sessionID     string

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewHelper(store *state.Store, monitor *network.Monitor, human *browser.Humanizer, catalog *config.SelectorCatalog, cfg config.UploadConfig, netCfg config.NetworkConfig, quarantineDir string, metrics Metrics, log logger.Logger) *Helper {
	return &Helper{
		store:         store,
		monitor:       monitor,
		human:         human,
		cfg:           cfg,
		netCfg:        netCfg,
		metrics:       metrics,
		log:           log,
		overlays:      browser.NewChain("overlay_dismiss", catalog.OverlayDismiss, log),
		fileInput:     browser.NewChain("file_input", catalog.FileInput, log),
		title:         browser.NewChain("title_field", catalog.TitleField, log),
		progress:      browser.NewChain("progress_indicator", catalog.ProgressIndicator, log),
		publish:       browser.NewChain("publish_button", catalog.PublishButton, log),
		quarantineDir: quarantineDir,
		sessionID:     uuid.New().String(),
		sleep:         sleepCtx,
		now:           time.Now,
	}
}

func (h *Helper) SessionID() string {
	return h.sessionID
}

// Upload runs the full retry loop for one video. On success the source
// file is moved into the processed subfolder and recorded in history. On
// retry exhaustion the file is removed (or quarantined) so it cannot be
// reprocessed forever, and no history entry is written.
func (h *Helper) Upload(ctx context.Context, dom browser.DOM, bookmark models.Bookmark, videoPath string) error {
	if err := h.preflight(ctx); err != nil {
		return err
	}

	videoName := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))

	var lastErr error
	for attempt := 1; attempt <= h.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := h.attempt(ctx, dom, bookmark, videoPath, videoName, attempt)
		if err == nil {
			return h.finishSuccess(videoPath, bookmark)
		}
		if models.IsStateWrite(err) || ctx.Err() != nil {
			return err
		}
		lastErr = err

		h.log.Warn("Upload attempt failed",
			logger.Field{Key: "video", Value: videoName},
			logger.Field{Key: "attempt", Value: attempt},
			logger.Field{Key: "error", Value: err.Error()})

		if attempt < h.cfg.MaxAttempts {
			backoff := h.cfg.RetryBackoffBase * time.Duration(1<<(attempt-1))
			if err := h.sleep(ctx, backoff); err != nil {
				return err
			}
		}
	}

	if err := h.finishTerminalFailure(videoPath); err != nil {
		return err
	}
	return fmt.Errorf("upload failed after %d attempts: %w", h.cfg.MaxAttempts, lastErr)
}

// preflight gates the upload on network stability, blocking through a
// bounded reconnection wait when the link is down.
func (h *Helper) preflight(ctx context.Context) error {
	if h.monitor.CheckHealth(ctx) == models.NetworkStable {
		return nil
	}
	h.log.Warn("Network not stable, waiting for reconnection",
		logger.Field{Key: "max_wait", Value: h.netCfg.MaxRecoveryWait.String()})
	if !h.monitor.WaitForReconnection(ctx, h.netCfg.MaxRecoveryWait, h.netCfg.RecoveryPoll) {
		return fmt.Errorf("%w: no recovery within %s", models.ErrNetworkUnavailable, h.netCfg.MaxRecoveryWait)
	}
	return nil
}

func (h *Helper) attempt(ctx context.Context, dom browser.DOM, bookmark models.Bookmark, videoPath, videoName string, attempt int) error {
	if h.metrics != nil {
		h.metrics.IncrementAttempts()
	}
	if err := h.store.UpdateCurrentUpload(models.CurrentUpload{
		VideoFile: videoPath,
		VideoName: videoName,
		Bookmark:  bookmark.Title,
		Status:    models.UploadNavigating,
		Attempt:   attempt,
		StartedAt: h.now(),
	}); err != nil {
		return err
	}

	if err := h.navigate(ctx, dom, bookmark); err != nil {
		return h.fail(err)
	}

	if err := h.injectFile(ctx, dom, videoPath); err != nil {
		return h.fail(err)
	}
	if err := h.setStatus(models.UploadFileInjected); err != nil {
		return err
	}

	if err := h.setTitle(ctx, dom, videoName); err != nil {
		return h.fail(err)
	}
	if err := h.setStatus(models.UploadTitleSet); err != nil {
		return err
	}

	if err := h.setStatus(models.UploadInProgress); err != nil {
		return err
	}
	if err := h.pollProgress(ctx, dom); err != nil {
		return h.fail(err)
	}

	if err := h.confirmPublish(ctx, dom); err != nil {
		return h.fail(err)
	}

	return h.setStatus(models.UploadCompleted)
}

func (h *Helper) fail(err error) error {
	if stateErr := h.setStatus(models.UploadFailed); stateErr != nil {
		return stateErr
	}
	return err
}

func (h *Helper) setStatus(status models.UploadStatus) error {
	st, err := h.store.LoadState()
	if err != nil {
		return err
	}
	cu := st.CurrentUpload
	cu.Status = status
	return h.store.UpdateCurrentUpload(cu)
}

func (h *Helper) navigate(ctx context.Context, dom browser.DOM, bookmark models.Bookmark) error {
	if err := dom.Navigate(ctx, bookmark.URL); err != nil {
		return fmt.Errorf("failed to open bookmark %q: %w", bookmark.Title, err)
	}
	if h.cfg.TargetDomain != "" && !strings.Contains(dom.URL(), h.cfg.TargetDomain) {
		return fmt.Errorf("bookmark %q landed on %s, expected %s", bookmark.Title, dom.URL(), h.cfg.TargetDomain)
	}
	h.dismissOverlays(ctx, dom)
	return nil
}

// dismissOverlays clicks every visible match of the dismissal chain.
// Heuristic and best-effort: failures are logged at debug and ignored.
func (h *Helper) dismissOverlays(ctx context.Context, dom browser.DOM) {
	for _, el := range h.overlays.FindAll(ctx, dom) {
		if err := el.Click(ctx); err != nil {
			h.log.Debug("Overlay dismiss click failed",
				logger.Field{Key: "error", Value: err.Error()})
		}
	}
}

// injectFile sets the video path on the page's file input. The direct
// input API is tried first; a script-based value assignment is the
// fallback. Both paths avoid the native OS file picker.
func (h *Helper) injectFile(ctx context.Context, dom browser.DOM, videoPath string) error {
	el, sel, err := h.fileInput.Find(ctx, dom)
	if err != nil {
		return err
	}
	err = el.SetFiles(ctx, videoPath)
	if err == nil {
		return nil
	}
	h.log.Warn("Direct file injection failed, trying script assignment",
		logger.Field{Key: "error", Value: err.Error()})

	script := fmt.Sprintf(
		`(path) => { const input = document.querySelector(%q); if (!input) return false; input.value = path; input.dispatchEvent(new Event('change', { bubbles: true })); return true; }`,
		sel.Value)
	result, err := dom.Evaluate(ctx, script, videoPath)
	if err != nil {
		return fmt.Errorf("script file assignment failed: %w", err)
	}
	if ok, _ := result.(bool); !ok {
		return fmt.Errorf("%w: file input rejected script assignment", models.ErrElementNotFound)
	}
	return nil
}

func (h *Helper) setTitle(ctx context.Context, dom browser.DOM, title string) error {
	el, _, err := h.title.Find(ctx, dom)
	if err != nil {
		return err
	}
	if err := h.clearField(ctx, el); err != nil {
		return err
	}

	// Characters outside the basic multilingual plane (emoji) cannot be
	// reproduced keystroke by keystroke; fall back to a single fill.
	if !isTypeable(title) {
		return el.Fill(ctx, title)
	}

	for _, r := range title {
		var delay time.Duration
		if h.human != nil {
			delay = h.human.KeyDelay()
		}
		if err := el.Type(ctx, string(r), delay); err != nil {
			return el.Fill(ctx, title)
		}
	}
	return nil
}

// clearField empties the text field, escalating through select-all with
// delete, ctrl-A with backspace, and a plain fill.
func (h *Helper) clearField(ctx context.Context, el browser.Element) error {
	if err := el.Press(ctx, "ControlOrMeta+a"); err == nil {
		if err := el.Press(ctx, "Delete"); err == nil {
			return nil
		}
	}
	if err := el.Press(ctx, "Control+a"); err == nil {
		if err := el.Press(ctx, "Backspace"); err == nil {
			return nil
		}
	}
	return el.Fill(ctx, "")
}

func isTypeable(s string) bool {
	for _, r := range s {
		if r > 0xFFFF {
			return false
		}
	}
	return true
}

// pollProgress watches the progress indicator until it reports 100% or
// the timeout elapses. Every observed percentage is persisted so a crash
// mid-upload resumes its bookkeeping from the last known value.
func (h *Helper) pollProgress(ctx context.Context, dom browser.DOM) error {
	deadline := h.now().Add(h.cfg.ProgressTimeout)
	lastSeen := -1
	unchanged := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if el, _, err := h.progress.Find(ctx, dom); err == nil {
			if pct, ok := ExtractProgress(ctx, el); ok {
				if err := h.store.SetUploadProgress(pct); err != nil {
					return err
				}
				if h.metrics != nil {
					h.metrics.SetUploadProgress(float64(pct))
				}
				if pct >= 100 {
					return nil
				}
				if pct == lastSeen {
					unchanged++
					if h.cfg.StuckThreshold > 0 && unchanged >= h.cfg.StuckThreshold {
						h.log.Warn("Upload progress appears stuck",
							logger.Field{Key: "progress", Value: pct},
							logger.Field{Key: "polls", Value: unchanged})
						unchanged = 0
					}
				} else {
					lastSeen = pct
					unchanged = 0
				}
			}
		}

		if h.now().After(deadline) {
			return fmt.Errorf("%w: no completion within %s", models.ErrUploadTimeout, h.cfg.ProgressTimeout)
		}
		if err := h.sleep(ctx, h.cfg.ProgressPollInterval); err != nil {
			return err
		}
	}
}

// confirmPublish locates the publish control and glides the cursor onto
// it without clicking. The hover is the confirmation step; submission is
// out of scope for the automation.
func (h *Helper) confirmPublish(ctx context.Context, dom browser.DOM) error {
	el, _, err := h.publish.Find(ctx, dom)
	if err != nil {
		return err
	}

	enabled, err := el.Enabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		h.log.Warn("Publish control is disabled, confirming anyway")
	}

	if h.human != nil {
		if err := h.human.GlideTo(ctx, dom, el); err != nil {
			return err
		}
	}
	return el.Hover(ctx)
}

func (h *Helper) finishSuccess(videoPath string, bookmark models.Bookmark) error {
	movedTo, err := h.moveToProcessed(videoPath)
	if err != nil {
		return err
	}

	if err := h.store.MarkVideoUploaded(models.UploadRecord{
		FilePath:   videoPath,
		UploadedAt: h.now(),
		Bookmark:   bookmark.Title,
		SessionID:  h.sessionID,
		MovedTo:    movedTo,
	}); err != nil {
		return err
	}
	if err := h.store.IncrementDailyVideos(1); err != nil {
		return err
	}

	h.log.Info("Video uploaded",
		logger.Field{Key: "video", Value: filepath.Base(videoPath)},
		logger.Field{Key: "bookmark", Value: bookmark.Title},
		logger.Field{Key: "moved_to", Value: movedTo})

	return h.store.ClearCurrentUpload()
}

// moveToProcessed relocates the source file into the processed subfolder
// next to it, suffixing a timestamp when the name is already taken.
func (h *Helper) moveToProcessed(videoPath string) (string, error) {
	destDir := filepath.Join(filepath.Dir(videoPath), queue.UploadedSubdir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create processed folder: %w", err)
	}

	dest := filepath.Join(destDir, filepath.Base(videoPath))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		base := strings.TrimSuffix(filepath.Base(videoPath), ext)
		dest = filepath.Join(destDir, fmt.Sprintf("%s_%s%s", base, h.now().Format("20060102_150405"), ext))
	}

	if err := moveFile(videoPath, dest); err != nil {
		return "", fmt.Errorf("failed to move uploaded video: %w", err)
	}
	return dest, nil
}

func (h *Helper) finishTerminalFailure(videoPath string) error {
	if h.quarantineDir != "" {
		if err := os.MkdirAll(h.quarantineDir, 0o755); err == nil {
			dest := filepath.Join(h.quarantineDir, fmt.Sprintf("%s_%s", h.now().Format("20060102_150405"), filepath.Base(videoPath)))
			if err := moveFile(videoPath, dest); err == nil {
				h.log.Warn("Video quarantined after retry exhaustion",
					logger.Field{Key: "video", Value: videoPath},
					logger.Field{Key: "moved_to", Value: dest})
				return h.store.ClearCurrentUpload()
			}
		}
	}

	if err := os.Remove(videoPath); err != nil && !os.IsNotExist(err) {
		h.log.Error("Failed to remove video after retry exhaustion",
			logger.Field{Key: "video", Value: videoPath},
			logger.Field{Key: "error", Value: err.Error()})
	} else {
		h.log.Warn("Video removed after retry exhaustion",
			logger.Field{Key: "video", Value: videoPath})
	}
	return h.store.ClearCurrentUpload()
}

// moveFile renames, falling back to copy-and-delete across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
