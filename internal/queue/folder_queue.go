package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/pkg/logger"
)

// UploadedSubdir inside a creator folder holds already-processed files and
// is excluded from scans.
const UploadedSubdir = "uploaded videos"

var videoExtensions = map[string]struct{}{
	".mp4": {},
	".mov": {},
	".avi": {},
	".mkv": {},
	".wmv": {},
}

// FolderQueue iterates the creator folders under a base directory in an
// infinite cycle. The queue itself never terminates; stop conditions (daily
// cap, empty sweep, cancellation) belong to the orchestrator.
type FolderQueue struct {
	baseDir string
	store   *state.Store
	log     logger.Logger
}

func NewFolderQueue(baseDir string, store *state.Store, log logger.Logger) *FolderQueue {
	return &FolderQueue{
		baseDir: baseDir,
		store:   store,
		log:     log,
	}
}

func (q *FolderQueue) BaseDir() string {
	return q.baseDir
}

// Folders lists the immediate subdirectories of the base path in
// lexicographic order.
func (q *FolderQueue) Folders() ([]string, error) {
	entries, err := os.ReadDir(q.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list creator folders: %w", err)
	}

	var folders []string
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, filepath.Join(q.baseDir, entry.Name()))
		}
	}
	sort.Strings(folders)
	return folders, nil
}

// Current resolves the persisted index against the live folder list. An
// index past the end of a shrunken list resets to 0. An empty base
// directory yields ("", -1).
func (q *FolderQueue) Current() (string, int, error) {
	folders, err := q.Folders()
	if err != nil {
		return "", -1, err
	}
	if len(folders) == 0 {
		return "", -1, nil
	}

	pos, err := q.store.QueuePosition()
	if err != nil {
		return "", -1, err
	}

	index := pos.CurrentFolderIndex
	if index < 0 || index >= len(folders) {
		index = 0
	}

	folder := folders[index]
	if index != pos.CurrentFolderIndex || folder != pos.CurrentFolderPath || len(folders) != pos.TotalFolders {
		if err := q.store.UpdateQueuePosition(index, folder, len(folders), pos.CurrentCycle); err != nil {
			return "", -1, err
		}
	}
	return folder, index, nil
}

// Videos lists the video files directly inside a creator folder, sorted
// lexicographically. Files under the "uploaded videos" subfolder are never
// returned.
func (q *FolderQueue) Videos(folder string, excludeUploaded bool) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list videos in %s: %w", folder, err)
	}

	var videos []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := videoExtensions[ext]; !ok {
			continue
		}
		path := filepath.Join(folder, entry.Name())
		if excludeUploaded {
			uploaded, err := q.store.IsVideoUploaded(path)
			if err != nil {
				return nil, err
			}
			if uploaded {
				continue
			}
		}
		videos = append(videos, path)
	}
	sort.Strings(videos)
	return videos, nil
}

// Advance moves to the next folder. Reaching the end wraps to index 0 and
// increments the persisted cycle counter exactly once.
func (q *FolderQueue) Advance() (bool, error) {
	folders, err := q.Folders()
	if err != nil {
		return false, err
	}
	if len(folders) == 0 {
		return false, nil
	}

	pos, err := q.store.QueuePosition()
	if err != nil {
		return false, err
	}

	index := pos.CurrentFolderIndex + 1
	cycle := pos.CurrentCycle
	wrapped := false
	if index >= len(folders) {
		index = 0
		cycle++
		wrapped = true
		q.log.Info("Folder queue wrapped around",
			logger.Field{Key: "cycle", Value: cycle},
			logger.Field{Key: "folders", Value: len(folders)})
	}

	if err := q.store.UpdateQueuePosition(index, folders[index], len(folders), cycle); err != nil {
		return false, err
	}
	return wrapped, nil
}

// Reset rewinds the queue to the first folder without touching the cycle
// counter.
func (q *FolderQueue) Reset() error {
	folders, err := q.Folders()
	if err != nil {
		return err
	}
	pos, err := q.store.QueuePosition()
	if err != nil {
		return err
	}
	path := ""
	if len(folders) > 0 {
		path = folders[0]
	}
	return q.store.UpdateQueuePosition(0, path, len(folders), pos.CurrentCycle)
}

// Cycle returns the persisted wraparound counter.
func (q *FolderQueue) Cycle() (int, error) {
	pos, err := q.store.QueuePosition()
	if err != nil {
		return 0, err
	}
	return pos.CurrentCycle, nil
}
