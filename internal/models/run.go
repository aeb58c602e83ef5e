package models

import (
	"time"

	"github.com/google/uuid"
)

type Workflow string

const (
	WorkflowPlaylistMerge Workflow = "playlist-merge"
	WorkflowLinkExtract   Workflow = "link-extract"
	WorkflowExtractEdit   Workflow = "extract-edit"
	WorkflowMusicVideo    Workflow = "music-video"
	WorkflowLogoComposite Workflow = "logo-composite"
	WorkflowMusicAnalysis Workflow = "music-analysis"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

func (s RunStatus) Finished() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

type TrackSettings struct {
	FadeIn  float64 `json:"fadeIn" yaml:"fade_in"`
	FadeOut float64 `json:"fadeOut" yaml:"fade_out"`
	Volume  float64 `json:"volume" yaml:"volume"`
	Gap     float64 `json:"gap" yaml:"gap"`
}

func DefaultTrackSettings() TrackSettings {
	return TrackSettings{FadeIn: 2, FadeOut: 3, Volume: 0, Gap: 1}
}

type MergeSettings struct {
	NormalizeVolume bool    `json:"normalizeVolume" yaml:"normalize_volume"`
	Crossfade       float64 `json:"crossfade" yaml:"crossfade" validate:"gte=0"`
}

// InputFile is one caller-ordered input. Exactly one of Path or S3Key locates the bytes;
// ServerFilename names a file already present on the studio server.
type InputFile struct {
	Name           string         `json:"name,omitempty" yaml:"name" validate:"omitempty,lte=255"`
	Path           string         `json:"path,omitempty" yaml:"path" validate:"omitempty,lte=1024"`
	S3Key          string         `json:"s3_key,omitempty" yaml:"s3_key" validate:"omitempty,lte=1024"`
	ServerFilename string         `json:"server_filename,omitempty" yaml:"server_filename" validate:"omitempty,lte=255"`
	ContentType    string         `json:"content_type,omitempty" yaml:"content_type" validate:"omitempty,lte=100"`
	Settings       *TrackSettings `json:"settings,omitempty" yaml:"settings"`
}

type VideoOptions struct {
	Watermark bool `json:"watermark" yaml:"watermark"`
	FadeInOut bool `json:"fade_in_out" yaml:"fade_in_out"`
}

type RunRequest struct {
	Workflow     Workflow      `json:"workflow" yaml:"workflow" validate:"required,oneof=playlist-merge link-extract extract-edit music-video logo-composite music-analysis"`
	Files        []InputFile   `json:"files,omitempty" yaml:"files" validate:"omitempty,dive"`
	Image        *InputFile    `json:"image,omitempty" yaml:"image"`
	URL          string        `json:"url,omitempty" yaml:"url" validate:"omitempty,url"`
	Merge        MergeSettings `json:"merge" yaml:"merge"`
	Semitones    *int          `json:"semitones,omitempty" yaml:"semitones" validate:"omitempty,min=-12,max=12"`
	Trim         bool          `json:"trim,omitempty" yaml:"trim"`
	VideoQuality string        `json:"video_quality,omitempty" yaml:"video_quality" validate:"omitempty,lte=32"`
	VideoOptions VideoOptions  `json:"video_options" yaml:"video_options"`
	ApplyLogo    bool          `json:"apply_logo,omitempty" yaml:"apply_logo"`
	Archive      bool          `json:"archive,omitempty" yaml:"archive"`
}

type Artifact struct {
	Stage       string `json:"stage"`
	Filename    string `json:"filename"`
	S3Key       string `json:"s3_key"`
	SizeBytes   int64  `json:"size_bytes"`
	DownloadURL string `json:"download_url,omitempty"`
}

type Run struct {
	RunID        uuid.UUID     `json:"run_id" db:"run_id"`
	UserID       uuid.UUID     `json:"user_id" db:"user_id"`
	Workflow     Workflow      `json:"workflow" db:"workflow"`
	Status       RunStatus     `json:"status" db:"status"`
	CurrentStage string        `json:"current_stage" db:"current_stage"`
	Progress     float64       `json:"progress" db:"progress"`
	Message      string        `json:"message" db:"message"`
	Request      RunRequest    `json:"request" db:"-"`
	Results      []StageResult `json:"results" db:"-"`
	Artifacts    []Artifact    `json:"artifacts" db:"-"`
	ErrorMessage string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// RunProgress is the live view of a run kept in Redis while the worker executes it.
type RunProgress struct {
	Status       RunStatus `json:"status"`
	CurrentStage string    `json:"current_stage"`
	Progress     float64   `json:"progress"`
	Message      string    `json:"message"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *Run) Snapshot() RunProgress {
	return RunProgress{
		Status:       r.Status,
		CurrentStage: r.CurrentStage,
		Progress:     r.Progress,
		Message:      r.Message,
		ErrorMessage: r.ErrorMessage,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Apply overlays live progress on a stored run.
func (r *Run) Apply(p RunProgress) {
	r.Status = p.Status
	r.CurrentStage = p.CurrentStage
	r.Progress = p.Progress
	r.Message = p.Message
	r.ErrorMessage = p.ErrorMessage
	if p.UpdatedAt.After(r.UpdatedAt) {
		r.UpdatedAt = p.UpdatedAt
	}
}

type RunList struct {
	Runs       []*Run `json:"runs"`
	TotalCount int    `json:"total_count"`
	TotalPages int    `json:"total_pages"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	HasMore    bool   `json:"has_more"`
}
