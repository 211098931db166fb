// Package orchestrator drives the outer upload loop: for each profile,
// for each creator folder, upload one video at a time until the daily cap
// is hit, a full sweep finds nothing to do, or the run is cancelled.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/contentflow/uploadflow/internal/browser"
	"github.com/contentflow/uploadflow/internal/config"
	"github.com/contentflow/uploadflow/internal/events"
	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/internal/notify"
	"github.com/contentflow/uploadflow/internal/queue"
	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/pkg/logger"
)

// Run outcomes, reported in logs, metrics and events.
const (
	OutcomeRoundComplete = "round_complete"
	OutcomeDailyLimit    = "daily_limit"
	OutcomeCancelled     = "cancelled"
	OutcomeError         = "error"
)

// ProfileSource walks the launcher profiles for one run.
type ProfileSource interface {
	Load(ctx context.Context) error
	Current() (models.Profile, bool)
	Advance() (bool, error)
	Rewind() error
	Total() int
	Open(ctx context.Context) (*browser.Session, error)
	Close(ctx context.Context, sess *browser.Session)
}

// Uploader runs the full retry loop for one video.
type Uploader interface {
	Upload(ctx context.Context, dom browser.DOM, bookmark models.Bookmark, videoPath string) error
}

// Metrics is the collector surface the loop reports to. Optional; a nil
// value drops everything.
type Metrics interface {
	IncrementUploads(status string)
	ObserveUploadDuration(status string, seconds float64)
	IncrementFoldersSkipped(reason string)
	IncrementProfilesProcessed(status string)
	IncrementQueueCycles()
	SetDailyUploads(count float64)
	IncrementRuns(outcome string)
}

type Orchestrator struct {
	cfg      *config.Config
	store    *state.Store
	profiles ProfileSource
	queue    *queue.FolderQueue
	uploader Uploader
	metrics  Metrics
	events   *events.Publisher
	notifier *notify.Notifier
	log      logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func New(cfg *config.Config, store *state.Store, profiles ProfileSource, folderQueue *queue.FolderQueue, uploader Uploader, metrics Metrics, publisher *events.Publisher, notifier *notify.Notifier, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		profiles: profiles,
		queue:    folderQueue,
		uploader: uploader,
		metrics:  metrics,
		events:   publisher,
		notifier: notifier,
		log:      log,
	}
}

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Stop cancels an in-flight run. Cancellation takes effect at the next
// loop boundary inside the upload helper.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// Run executes one full round across all profiles and returns when a stop
// condition is reached. Only one run may be active per process.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return models.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancel = cancel
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.mu.Unlock()
	}()

	outcome, err := o.run(runCtx)
	o.finishRun(outcome)
	return err
}

func (o *Orchestrator) run(ctx context.Context) (string, error) {
	if err := o.profiles.Load(ctx); err != nil {
		return OutcomeError, err
	}

	o.log.Info("Upload run starting",
		logger.Field{Key: "profiles", Value: o.profiles.Total()})
	o.events.RunStarted(events.RunEvent{Profiles: o.profiles.Total()})
	o.notifier.RunStarted(ctx, o.profiles.Total())

	for {
		if ctx.Err() != nil {
			return OutcomeCancelled, ctx.Err()
		}

		reached, count, err := o.checkDailyLimit(ctx)
		if err != nil {
			return OutcomeError, err
		}
		if reached {
			o.log.Info("Daily limit reached, stopping run",
				logger.Field{Key: "count", Value: count})
			return OutcomeDailyLimit, nil
		}

		prof, ok := o.profiles.Current()
		if !ok {
			return o.completeRound()
		}

		limitHit, err := o.processProfile(ctx, prof)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return OutcomeCancelled, err
			}
			return OutcomeError, err
		}
		if limitHit {
			return OutcomeDailyLimit, nil
		}

		more, err := o.profiles.Advance()
		if err != nil {
			return OutcomeError, err
		}
		if !more {
			return o.completeRound()
		}
	}
}

// completeRound rewinds the profile cursor so the next run starts a fresh
// round from the first profile.
func (o *Orchestrator) completeRound() (string, error) {
	if err := o.profiles.Rewind(); err != nil {
		return OutcomeError, err
	}
	o.log.Info("All profiles processed, round complete")
	return OutcomeRoundComplete, nil
}

// processProfile runs the per-profile phase: open the browser, reconcile
// bookmarks against folders, sweep the folder queue. The returned bool
// reports whether the daily limit stopped the sweep.
func (o *Orchestrator) processProfile(ctx context.Context, prof models.Profile) (bool, error) {
	sess, err := o.profiles.Open(ctx)
	if err != nil {
		o.log.Warn("Skipping profile, browser session failed",
			logger.Field{Key: "profile_id", Value: prof.ProfileID},
			logger.Field{Key: "error", Value: err.Error()})
		if o.metrics != nil {
			o.metrics.IncrementProfilesProcessed("open_failed")
		}
		return false, nil
	}
	defer o.profiles.Close(ctx, sess)

	// Diagnostic only: a profile with many stray tabs usually means a
	// previous manual session was left behind.
	o.log.Info("Processing profile",
		logger.Field{Key: "profile_id", Value: prof.ProfileID},
		logger.Field{Key: "profile", Value: prof.Name},
		logger.Field{Key: "open_tabs", Value: sess.TabCount()})

	o.reconcileBookmarks(sess)

	// Each profile starts its sweep from the first folder.
	if err := o.queue.Reset(); err != nil {
		return false, err
	}

	limitHit, err := o.sweepFolders(ctx, sess)
	if err != nil {
		return false, err
	}
	if o.metrics != nil {
		o.metrics.IncrementProfilesProcessed("processed")
	}
	return limitHit, nil
}

// reconcileBookmarks compares local creator folders against the profile's
// bookmark titles by exact name. Log-only: mismatches are reported, never
// fixed.
func (o *Orchestrator) reconcileBookmarks(sess *browser.Session) {
	folders, err := o.queue.Folders()
	if err != nil {
		o.log.Warn("Cannot list folders for reconciliation",
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	titles := make(map[string]bool, len(sess.Bookmarks()))
	for _, bm := range sess.Bookmarks() {
		titles[bm.Title] = true
	}

	names := make(map[string]bool, len(folders))
	for _, folder := range folders {
		name := filepath.Base(folder)
		names[name] = true
		if !titles[name] {
			o.log.Warn("Creator folder has no matching bookmark",
				logger.Field{Key: "folder", Value: name})
		}
	}
	for title := range titles {
		if !names[title] {
			o.log.Warn("Bookmark has no matching creator folder",
				logger.Field{Key: "bookmark", Value: title})
		}
	}
}

// sweepFolders uploads one video per folder visit until the daily cap is
// hit or a full pass over the queue finds nothing uploadable.
func (o *Orchestrator) sweepFolders(ctx context.Context, sess *browser.Session) (bool, error) {
	folders, err := o.queue.Folders()
	if err != nil {
		return false, err
	}
	if len(folders) == 0 {
		o.log.Warn("No creator folders found",
			logger.Field{Key: "base_dir", Value: o.queue.BaseDir()})
		return false, nil
	}

	bookmarks := make(map[string]models.Bookmark, len(sess.Bookmarks()))
	for _, bm := range sess.Bookmarks() {
		bookmarks[bm.Title] = bm
	}

	emptyStreak := 0
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		folder, _, err := o.queue.Current()
		if err != nil {
			return false, err
		}
		if folder == "" {
			return false, nil
		}
		name := filepath.Base(folder)

		bookmark, hasBookmark := bookmarks[name]
		videos, err := o.queue.Videos(folder, true)
		if err != nil {
			return false, err
		}

		if !hasBookmark || len(videos) == 0 {
			reason := "no_videos"
			if !hasBookmark {
				reason = "no_bookmark"
				o.log.Info("Skipping folder without bookmark",
					logger.Field{Key: "folder", Value: name})
			} else {
				// A bookmarked folder with nothing left to upload is done.
				if err := o.store.MarkFolderCompleted(folder); err != nil {
					return false, err
				}
			}
			if o.metrics != nil {
				o.metrics.IncrementFoldersSkipped(reason)
			}

			emptyStreak++
			if emptyStreak >= len(folders) {
				o.log.Info("Full sweep found nothing to upload",
					logger.Field{Key: "folders", Value: len(folders)})
				return false, nil
			}
			if err := o.advanceQueue(); err != nil {
				return false, err
			}
			continue
		}
		emptyStreak = 0

		if err := o.uploadOne(ctx, sess, bookmark, videos[0]); err != nil {
			return false, err
		}

		reached, count, err := o.checkDailyLimit(ctx)
		if err != nil {
			return false, err
		}
		if reached {
			o.notifier.DailyLimitReached(ctx, count)
			return true, nil
		}

		if err := o.advanceQueue(); err != nil {
			return false, err
		}
	}
}

// uploadOne runs a single upload and converts terminal upload failures
// into a logged skip. Persistence failures and cancellation propagate.
func (o *Orchestrator) uploadOne(ctx context.Context, sess *browser.Session, bookmark models.Bookmark, video string) error {
	started := time.Now()
	err := o.uploader.Upload(ctx, sess.DOM(), bookmark, video)
	if err == nil {
		if incErr := o.store.IncrementDailyBookmarks(1); incErr != nil {
			return incErr
		}
		if o.metrics != nil {
			o.metrics.IncrementUploads("success")
			o.metrics.ObserveUploadDuration("success", time.Since(started).Seconds())
		}
		o.events.UploadCompleted(events.UploadEvent{
			ProfileID: sess.Profile.ProfileID,
			Bookmark:  bookmark.Title,
			VideoFile: video,
		})
		return nil
	}

	if models.IsStateWrite(err) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return err
	}

	o.log.Error("Upload failed terminally",
		logger.Field{Key: "video", Value: video},
		logger.Field{Key: "bookmark", Value: bookmark.Title},
		logger.Field{Key: "error", Value: err.Error()})
	if o.metrics != nil {
		o.metrics.IncrementUploads("failed")
		o.metrics.ObserveUploadDuration("failed", time.Since(started).Seconds())
	}
	o.events.UploadFailed(events.UploadEvent{
		ProfileID: sess.Profile.ProfileID,
		Bookmark:  bookmark.Title,
		VideoFile: video,
		Error:     err.Error(),
	})
	o.notifier.UploadFailed(ctx, filepath.Base(video), err)
	return nil
}

func (o *Orchestrator) advanceQueue() error {
	wrapped, err := o.queue.Advance()
	if err != nil {
		return err
	}
	if wrapped && o.metrics != nil {
		o.metrics.IncrementQueueCycles()
	}
	return nil
}

func (o *Orchestrator) checkDailyLimit(ctx context.Context) (bool, int, error) {
	reached, count, err := o.store.CheckDailyLimit(o.cfg.Limits.Plan, o.cfg.Limits.BasicDailyLimit)
	if err != nil {
		return false, 0, fmt.Errorf("daily limit check failed: %w", err)
	}
	if o.metrics != nil {
		o.metrics.SetDailyUploads(float64(count))
	}
	return reached, count, nil
}

func (o *Orchestrator) finishRun(outcome string) {
	stats, err := o.store.DailyStats()
	uploads := 0
	if err == nil {
		uploads = stats.VideosUploaded
	}

	o.log.Info("Upload run finished",
		logger.Field{Key: "outcome", Value: outcome},
		logger.Field{Key: "uploads_today", Value: uploads})
	if o.metrics != nil {
		o.metrics.IncrementRuns(outcome)
	}
	o.events.RunFinished(events.RunEvent{Outcome: outcome, Uploads: uploads})
	o.notifier.RunFinished(context.Background(), outcome, uploads)
}
