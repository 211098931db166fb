package models

import "time"

type UploadStatus string

const (
	UploadIdle         UploadStatus = "idle"
	UploadNavigating   UploadStatus = "navigating"
	UploadFileInjected UploadStatus = "file_injected"
	UploadTitleSet     UploadStatus = "title_set"
	UploadInProgress   UploadStatus = "uploading"
	UploadCompleted    UploadStatus = "completed"
	UploadFailed       UploadStatus = "failed"
)

type Plan string

const (
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

type NetworkStatus string

const (
	NetworkStable       NetworkStatus = "stable"
	NetworkUnstable     NetworkStatus = "unstable"
	NetworkDisconnected NetworkStatus = "disconnected"
)

// CurrentUpload tracks the one in-flight upload attempt. At most one upload
// may be in the "uploading" state per process.
type CurrentUpload struct {
	VideoFile string       `json:"video_file,omitempty"`
	VideoName string       `json:"video_name,omitempty"`
	Bookmark  string       `json:"bookmark,omitempty"`
	Status    UploadStatus `json:"status"`
	Progress  int          `json:"progress"`
	Attempt   int          `json:"attempt"`
	StartedAt time.Time    `json:"started_at,omitempty"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}

type QueueState struct {
	CurrentFolderIndex int    `json:"current_folder_index"`
	CurrentFolderPath  string `json:"current_folder_path,omitempty"`
	TotalFolders       int    `json:"total_folders"`
	CurrentCycle       int    `json:"current_cycle"`
}

// DailyStats is reset whenever Date no longer matches the current day.
type DailyStats struct {
	Date              string    `json:"date"`
	BookmarksUploaded int       `json:"bookmarks_uploaded"`
	VideosUploaded    int       `json:"videos_uploaded"`
	StartedAt         time.Time `json:"started_at,omitempty"`
}

type ProfileState struct {
	CurrentProfileIndex int       `json:"current_profile_index"`
	CurrentProfileID    string    `json:"current_profile_id,omitempty"`
	TotalProfiles       int       `json:"total_profiles"`
	LastUpdated         time.Time `json:"last_updated,omitempty"`
}

type NetworkState struct {
	Status              NetworkStatus `json:"status"`
	LastCheck           time.Time     `json:"last_check,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastDropTime        *time.Time    `json:"last_drop_time,omitempty"`
}

// BrowserSession marks a remote browser session that has been started but
// not yet confirmed closed. A leftover marker on startup means the previous
// run crashed between launcher start and stop, and the session should be
// cleaned up before opening a new one.
type BrowserSession struct {
	ProfileID string    `json:"profile_id"`
	DebugURL  string    `json:"debug_url,omitempty"`
	OpenedAt  time.Time `json:"opened_at"`
}

// BotState is the single persisted progress document (bot_state.json).
type BotState struct {
	CurrentUpload CurrentUpload   `json:"current_upload"`
	Queue         QueueState      `json:"queue"`
	DailyStats    DailyStats      `json:"daily_stats"`
	Profile       ProfileState    `json:"profile_state"`
	Network       NetworkState    `json:"network"`
	Session       *BrowserSession `json:"session,omitempty"`
	LastUpdated   time.Time       `json:"last_updated"`
}

func NewBotState() *BotState {
	return &BotState{
		CurrentUpload: CurrentUpload{Status: UploadIdle},
		Network:       NetworkState{Status: NetworkStable},
	}
}

// FolderRecord marks one creator folder as completed. Entries are only ever
// added, never removed.
type FolderRecord struct {
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
	FolderPath  string    `json:"folder_path"`
}

type FolderProgress map[string]FolderRecord

// UploadRecord is one entry of the append-only upload history
// (uploaded_videos.json). Duplicate prevention is a path membership test
// against FilePath.
type UploadRecord struct {
	FilePath   string    `json:"file_path"`
	UploadedAt time.Time `json:"uploaded_at"`
	Bookmark   string    `json:"bookmark"`
	SessionID  string    `json:"session_id"`
	MovedTo    string    `json:"moved_to,omitempty"`
}

// Profile is a browser identity managed by the remote launcher API. The
// list is fetched fresh each run and never persisted beyond the current
// index and ID.
type Profile struct {
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
	Group     string `json:"group,omitempty"`
	Status    string `json:"status,omitempty"`
	Remark    string `json:"remark,omitempty"`
}

// Bookmark is a saved browser favorite; Title is matched against creator
// folder names by exact string equality.
type Bookmark struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
