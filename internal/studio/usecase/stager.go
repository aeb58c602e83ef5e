package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
)

const megabyte = 1 << 20

// UploadPolicy is the client-side allow-list applied before any upload leaves the process.
// A file passes when its extension or its MIME type is allowed and it fits under MaxBytes.
type UploadPolicy struct {
	Extensions map[string]bool
	MIMETypes  map[string]bool
	MaxBytes   int64
}

func NewUploadPolicy(cfg config.UploadPolicyConfig) UploadPolicy {
	p := UploadPolicy{
		Extensions: make(map[string]bool, len(cfg.Extensions)),
		MIMETypes:  make(map[string]bool, len(cfg.MIMETypes)),
		MaxBytes:   cfg.MaxSizeMB * megabyte,
	}
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		p.Extensions[ext] = true
	}
	for _, mt := range cfg.MIMETypes {
		p.MIMETypes[strings.ToLower(strings.TrimSpace(mt))] = true
	}
	return p
}

func DefaultAudioPolicy() UploadPolicy {
	return NewUploadPolicy(config.UploadPolicyConfig{
		Extensions: []string{".mp3", ".wav", ".m4a", ".flac", ".mp4", ".webm"},
		MIMETypes:  []string{"audio/mpeg", "audio/wav", "audio/mp4", "audio/x-m4a", "audio/flac", "video/mp4", "video/webm"},
		MaxSizeMB:  100,
	})
}

func DefaultImagePolicy() UploadPolicy {
	return NewUploadPolicy(config.UploadPolicyConfig{
		Extensions: []string{".jpg", ".jpeg", ".png", ".bmp", ".gif"},
		MIMETypes:  []string{"image/jpeg", "image/png", "image/bmp", "image/gif"},
		MaxSizeMB:  20,
	})
}

func (p UploadPolicy) Check(f models.NamedFile) error {
	if strings.TrimSpace(f.Name) == "" {
		return studio.Validationf("file has no name")
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	mimeType := strings.ToLower(strings.TrimSpace(strings.Split(f.ContentType, ";")[0]))
	if !p.Extensions[ext] && !p.MIMETypes[mimeType] {
		return studio.Validationf("%s: unsupported file type (extension %q, type %q)", f.Name, ext, f.ContentType)
	}
	if f.Size <= 0 {
		return studio.Validationf("%s: file is empty", f.Name)
	}
	if p.MaxBytes > 0 && f.Size > p.MaxBytes {
		return studio.Validationf("%s: %d bytes exceeds the %d MB limit", f.Name, f.Size, p.MaxBytes/megabyte)
	}
	return nil
}

type uploadStager struct {
	client studio.Client
	policy UploadPolicy
	logger logger.Logger
}

func NewUploadStager(client studio.Client, policy UploadPolicy, logger logger.Logger) studio.UploadStager {
	return &uploadStager{client: client, policy: policy, logger: logger}
}

func (s *uploadStager) StageFiles(ctx context.Context, endpoint string, files []models.NamedFile, extraFields map[string]string) ([]models.UploadedFileInfo, error) {
	if len(files) == 0 {
		return nil, studio.Validationf("no files to upload")
	}
	for _, f := range files {
		if err := s.policy.Check(f); err != nil {
			return nil, err
		}
	}

	handle, err := s.client.Submit(ctx, models.JobKindUpload, endpoint, models.MultipartPayload{Files: files, Fields: extraFields})
	if err != nil {
		var e *studio.Error
		if errors.As(err, &e) && e.Kind == studio.KindSubmission {
			rejected := *e
			rejected.Kind = studio.KindUploadRejected
			return nil, &rejected
		}
		return nil, err
	}
	if !handle.Completed() {
		return nil, &studio.Error{Kind: studio.KindProtocol, JobKind: models.JobKindUpload, JobID: handle.ID, Endpoint: endpoint, Message: "upload returned a job id instead of file metadata"}
	}

	infos, err := parseUploadResponse(handle.Inline.Raw)
	if err != nil {
		return nil, &studio.Error{Kind: studio.KindProtocol, JobKind: models.JobKindUpload, Endpoint: endpoint, Message: "cannot read upload response", Err: err}
	}
	if len(infos) != len(files) {
		return nil, &studio.Error{
			Kind:     studio.KindProtocol,
			JobKind:  models.JobKindUpload,
			Endpoint: endpoint,
			Message:  "uploaded " + strconv.Itoa(len(files)) + " files but server described " + strconv.Itoa(len(infos)),
		}
	}

	ordered := orderBySubmission(files, infos)
	s.logger.Debugf("UploadStager.StageFiles - %s stored %d files", endpoint, len(ordered))
	return ordered, nil
}

type uploadedFile struct {
	Filename     string      `json:"filename"`
	NewFilename  string      `json:"new_filename"`
	OriginalName string      `json:"original_name"`
	Format       string      `json:"format"`
	Duration     interface{} `json:"duration"`
	Size         interface{} `json:"size"`
	SizeMB       interface{} `json:"size_mb"`
}

type uploadResponse struct {
	Files    []uploadedFile `json:"files"`
	FileInfo *uploadedFile  `json:"file_info"`
}

func parseUploadResponse(raw json.RawMessage) ([]models.UploadedFileInfo, error) {
	var resp uploadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	described := resp.Files
	if len(described) == 0 && resp.FileInfo != nil {
		described = []uploadedFile{*resp.FileInfo}
	}
	infos := make([]models.UploadedFileInfo, 0, len(described))
	for _, f := range described {
		name := f.NewFilename
		if name == "" {
			name = f.Filename
		}
		if name == "" {
			return nil, errors.New("file entry without filename")
		}
		size := int64(numberOf(f.Size))
		if size == 0 {
			size = int64(numberOf(f.SizeMB) * megabyte)
		}
		infos = append(infos, models.UploadedFileInfo{
			Filename:        name,
			OriginalName:    f.OriginalName,
			Format:          f.Format,
			DurationSeconds: numberOf(f.Duration),
			SizeBytes:       size,
		})
	}
	return infos, nil
}

// orderBySubmission lines server metadata up with the submitted files by original name.
// When names are missing or ambiguous the server order is kept.
func orderBySubmission(files []models.NamedFile, infos []models.UploadedFileInfo) []models.UploadedFileInfo {
	byName := make(map[string]int, len(infos))
	for i, info := range infos {
		if info.OriginalName == "" {
			return infos
		}
		if _, dup := byName[info.OriginalName]; dup {
			return infos
		}
		byName[info.OriginalName] = i
	}
	ordered := make([]models.UploadedFileInfo, 0, len(files))
	for _, f := range files {
		i, ok := byName[f.Name]
		if !ok {
			return infos
		}
		ordered = append(ordered, infos[i])
	}
	return ordered
}

func numberOf(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
