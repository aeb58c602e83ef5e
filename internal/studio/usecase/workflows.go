package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
)

const (
	endpointUpload        = "/upload"
	endpointUploadExtract = "/upload_extract_file"
	endpointMerge         = "/process"
	endpointExtract       = "/extract"
	endpointAdjustPitch   = "/adjust-pitch"
	endpointTrim          = "/trim-audio"
	endpointVideoAudio    = "/api/music-video/upload-audio"
	endpointVideoImage    = "/api/music-video/upload-image"
	endpointProcessImage  = "/api/music-video/process-image"
	endpointVideoCreate   = "/api/music-video/create"
	endpointAnalyze       = "/api/music-analysis/analyze"

	defaultVideoQuality = "youtube_hd"
)

// runState carries values between the stages of one build. Stages run sequentially,
// so it needs no locking; it is never shared between builds.
type runState struct {
	mergeFilenames []string
	audioFilename  string
	imageFilename  string
}

type workflows struct {
	client      studio.Client
	audio       studio.UploadStager
	image       studio.UploadStager
	imagePolicy UploadPolicy
	logger      logger.Logger
}

func NewWorkflows(client studio.Client, audio, image studio.UploadStager, imagePolicy UploadPolicy, logger logger.Logger) studio.Workflows {
	return &workflows{
		client:      client,
		audio:       audio,
		image:       image,
		imagePolicy: imagePolicy,
		logger:      logger,
	}
}

func (w *workflows) Build(ctx context.Context, req *models.RunRequest) ([]models.PipelineStage, error) {
	if req == nil {
		return nil, studio.Validationf("empty run request")
	}
	switch req.Workflow {
	case models.WorkflowPlaylistMerge:
		return w.playlistMerge(req)
	case models.WorkflowLinkExtract:
		return w.linkExtract(req)
	case models.WorkflowExtractEdit:
		return w.extractEdit(req)
	case models.WorkflowMusicVideo:
		return w.musicVideo(req)
	case models.WorkflowLogoComposite:
		return w.logoComposite(req)
	case models.WorkflowMusicAnalysis:
		return w.musicAnalysis(req)
	default:
		return nil, studio.Validationf("unknown workflow %q", req.Workflow)
	}
}

func (w *workflows) playlistMerge(req *models.RunRequest) ([]models.PipelineStage, error) {
	if len(req.Files) < 2 {
		return nil, studio.Validationf("playlist merge needs at least two files, got %d", len(req.Files))
	}
	for i := range req.Files {
		if err := checkInput(&req.Files[i]); err != nil {
			return nil, err
		}
	}

	state := &runState{mergeFilenames: make([]string, len(req.Files))}
	var pending []int
	for i, f := range req.Files {
		if f.ServerFilename != "" {
			state.mergeFilenames[i] = f.ServerFilename
			continue
		}
		pending = append(pending, i)
	}

	var stages []models.PipelineStage
	if len(pending) > 0 {
		stages = append(stages, models.PipelineStage{
			Name:     "upload",
			Kind:     models.JobKindUpload,
			Required: true,
			Submit: func(ctx context.Context, _ *models.JobResult) (*models.JobHandle, error) {
				inputs := make([]models.InputFile, 0, len(pending))
				for _, i := range pending {
					inputs = append(inputs, req.Files[i])
				}
				infos, err := w.stage(ctx, w.audio, endpointUpload, "files", inputs, nil)
				if err != nil {
					return nil, err
				}
				for n, i := range pending {
					state.mergeFilenames[i] = infos[n].Filename
				}
				return uploadHandle(infos), nil
			},
		})
	}

	stages = append(stages, models.PipelineStage{
		Name:     "merge",
		Kind:     models.JobKindMerge,
		Required: true,
		Submit: func(ctx context.Context, _ *models.JobResult) (*models.JobHandle, error) {
			type mergeFile struct {
				Filename string               `json:"filename"`
				Settings models.TrackSettings `json:"settings"`
			}
			files := make([]mergeFile, len(req.Files))
			for i, f := range req.Files {
				settings := models.DefaultTrackSettings()
				if f.Settings != nil {
					settings = *f.Settings
				}
				files[i] = mergeFile{Filename: state.mergeFilenames[i], Settings: settings}
			}
			body := map[string]interface{}{
				"files":          files,
				"globalSettings": req.Merge,
			}
			return w.client.Submit(ctx, models.JobKindMerge, endpointMerge, models.JSONPayload{Body: body})
		},
	})
	return stages, nil
}

func (w *workflows) linkExtract(req *models.RunRequest) ([]models.PipelineStage, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, studio.Validationf("link extraction needs a url")
	}
	return []models.PipelineStage{w.extractStage(req.URL)}, nil
}

func (w *workflows) extractEdit(req *models.RunRequest) ([]models.PipelineStage, error) {
	var stages []models.PipelineStage
	var source string

	switch {
	case strings.TrimSpace(req.URL) != "" && len(req.Files) == 0:
		stages = append(stages, w.extractStage(req.URL))
	case req.URL == "" && len(req.Files) == 1:
		if err := checkInput(&req.Files[0]); err != nil {
			return nil, err
		}
		if req.Files[0].ServerFilename != "" {
			source = req.Files[0].ServerFilename
			break
		}
		stages = append(stages, w.uploadStage("upload", w.audio, endpointUploadExtract, "file", req.Files[0], nil, nil))
	default:
		return nil, studio.Validationf("extract-edit needs either a url or exactly one file")
	}

	// Callers decide whether a pitch shift is worth submitting; 0 semitones is a no-op.
	if req.Semitones != nil && *req.Semitones != 0 {
		semitones := *req.Semitones
		if semitones < -12 || semitones > 12 {
			return nil, studio.Validationf("semitones must be within -12..12, got %d", semitones)
		}
		stages = append(stages, models.PipelineStage{
			Name:     "pitch-shift",
			Kind:     models.JobKindPitchShift,
			Required: false,
			Submit: func(ctx context.Context, prior *models.JobResult) (*models.JobHandle, error) {
				filename, err := chainFilename(prior, source, models.JobKindPitchShift)
				if err != nil {
					return nil, err
				}
				body := map[string]interface{}{"filename": filename, "semitones": semitones}
				return w.client.Submit(ctx, models.JobKindPitchShift, endpointAdjustPitch, models.JSONPayload{Body: body})
			},
		})
	}

	if req.Trim {
		stages = append(stages, models.PipelineStage{
			Name:     "trim",
			Kind:     models.JobKindTrim,
			Required: false,
			Submit: func(ctx context.Context, prior *models.JobResult) (*models.JobHandle, error) {
				filename, err := chainFilename(prior, source, models.JobKindTrim)
				if err != nil {
					return nil, err
				}
				body := map[string]interface{}{"filename": filename}
				return w.client.Submit(ctx, models.JobKindTrim, endpointTrim, models.JSONPayload{Body: body})
			},
		})
	}

	if len(stages) == 0 {
		return nil, studio.Validationf("nothing to do: %s is already on the server and no edit was requested", source)
	}
	return stages, nil
}

func (w *workflows) musicVideo(req *models.RunRequest) ([]models.PipelineStage, error) {
	if len(req.Files) != 1 {
		return nil, studio.Validationf("music video needs exactly one audio file, got %d", len(req.Files))
	}
	if req.Image == nil {
		return nil, studio.Validationf("music video needs an image")
	}
	if err := checkInput(&req.Files[0]); err != nil {
		return nil, err
	}
	if err := checkInput(req.Image); err != nil {
		return nil, err
	}

	state := &runState{
		audioFilename: req.Files[0].ServerFilename,
		imageFilename: req.Image.ServerFilename,
	}

	var stages []models.PipelineStage
	if state.audioFilename == "" {
		stages = append(stages, w.uploadStage("upload-audio", w.audio, endpointVideoAudio, "audio", req.Files[0], nil, &state.audioFilename))
	}
	if state.imageFilename == "" {
		if req.ApplyLogo {
			stages = append(stages, w.processImageStage("process-image", *req.Image, &state.imageFilename))
		} else {
			stages = append(stages, w.uploadStage("upload-image", w.image, endpointVideoImage, "image", *req.Image, nil, &state.imageFilename))
		}
	}

	quality := req.VideoQuality
	if quality == "" {
		quality = defaultVideoQuality
	}
	stages = append(stages, models.PipelineStage{
		Name:     "create-video",
		Kind:     models.JobKindVideoCreate,
		Required: true,
		Submit: func(ctx context.Context, prior *models.JobResult) (*models.JobHandle, error) {
			image := state.imageFilename
			if image == "" {
				var err error
				if image, err = chainFilename(prior, "", models.JobKindVideoCreate); err != nil {
					return nil, err
				}
			}
			body := map[string]interface{}{
				"audio_filename": state.audioFilename,
				"image_filename": image,
				"video_quality":  quality,
				"options":        req.VideoOptions,
			}
			return w.client.Submit(ctx, models.JobKindVideoCreate, endpointVideoCreate, models.JSONPayload{Body: body})
		},
	})
	return stages, nil
}

func (w *workflows) logoComposite(req *models.RunRequest) ([]models.PipelineStage, error) {
	if req.Image == nil {
		return nil, studio.Validationf("logo compositing needs an image")
	}
	if err := checkInput(req.Image); err != nil {
		return nil, err
	}
	if req.Image.Path == "" {
		return nil, studio.Validationf("logo compositing needs a local image")
	}
	return []models.PipelineStage{w.processImageStage("process-image", *req.Image, nil)}, nil
}

func (w *workflows) musicAnalysis(req *models.RunRequest) ([]models.PipelineStage, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, studio.Validationf("music analysis needs a url")
	}
	url := req.URL
	return []models.PipelineStage{{
		Name:     "analyze",
		Kind:     models.JobKindAnalyze,
		Required: true,
		Submit: func(ctx context.Context, _ *models.JobResult) (*models.JobHandle, error) {
			body := map[string]interface{}{"url": url}
			return w.client.Submit(ctx, models.JobKindAnalyze, endpointAnalyze, models.JSONPayload{Body: body})
		},
	}}, nil
}

func (w *workflows) extractStage(url string) models.PipelineStage {
	return models.PipelineStage{
		Name:     "extract",
		Kind:     models.JobKindExtract,
		Required: true,
		Submit: func(ctx context.Context, _ *models.JobResult) (*models.JobHandle, error) {
			body := map[string]interface{}{"url": url}
			return w.client.Submit(ctx, models.JobKindExtract, endpointExtract, models.JSONPayload{Body: body})
		},
	}
}

// uploadStage stages one file synchronously. When into is set it receives the stored filename.
func (w *workflows) uploadStage(name string, stager studio.UploadStager, endpoint, field string, input models.InputFile, extra map[string]string, into *string) models.PipelineStage {
	return models.PipelineStage{
		Name:     name,
		Kind:     models.JobKindUpload,
		Required: true,
		Submit: func(ctx context.Context, _ *models.JobResult) (*models.JobHandle, error) {
			infos, err := w.stage(ctx, stager, endpoint, field, []models.InputFile{input}, extra)
			if err != nil {
				return nil, err
			}
			if into != nil {
				*into = infos[0].Filename
			}
			return uploadHandle(infos), nil
		},
	}
}

// processImageStage submits an image for logo compositing. The server normally answers
// inline; a job id is polled like any other image-process job.
func (w *workflows) processImageStage(name string, input models.InputFile, into *string) models.PipelineStage {
	return models.PipelineStage{
		Name:     name,
		Kind:     models.JobKindImageProcess,
		Required: true,
		Submit: func(ctx context.Context, _ *models.JobResult) (*models.JobHandle, error) {
			files, closeAll, err := openInputs([]models.InputFile{input}, "image")
			if err != nil {
				return nil, err
			}
			defer closeAll()
			if err := w.imagePolicy.Check(files[0]); err != nil {
				return nil, err
			}
			handle, err := w.client.Submit(ctx, models.JobKindImageProcess, endpointProcessImage, models.MultipartPayload{
				Files:  files,
				Fields: map[string]string{"apply_logo": "true"},
			})
			if err != nil {
				return nil, err
			}
			if into != nil && handle.Completed() {
				*into = handle.Inline.Filename
			}
			return handle, nil
		},
	}
}

func (w *workflows) stage(ctx context.Context, stager studio.UploadStager, endpoint, field string, inputs []models.InputFile, extra map[string]string) ([]models.UploadedFileInfo, error) {
	files, closeAll, err := openInputs(inputs, field)
	if err != nil {
		return nil, err
	}
	defer closeAll()
	return stager.StageFiles(ctx, endpoint, files, extra)
}

func uploadHandle(infos []models.UploadedFileInfo) *models.JobHandle {
	raw, _ := json.Marshal(map[string]interface{}{"files": infos})
	res := &models.JobResult{Raw: raw}
	if len(infos) == 1 {
		res.Filename = infos[0].Filename
		res.DurationSeconds = infos[0].DurationSeconds
		res.FileSizeBytes = infos[0].SizeBytes
	}
	return &models.JobHandle{Kind: models.JobKindUpload, Inline: res}
}

func chainFilename(prior *models.JobResult, fallback string, kind models.JobKind) (string, error) {
	if prior != nil && prior.Filename != "" {
		return prior.Filename, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", &studio.Error{Kind: studio.KindProtocol, JobKind: kind, Message: "previous stage produced no filename"}
}

func checkInput(f *models.InputFile) error {
	if f.S3Key != "" && f.Path == "" {
		return studio.Validationf("input %s has not been fetched from storage", f.S3Key)
	}
	if (f.Path == "") == (f.ServerFilename == "") {
		return studio.Validationf("input %q needs exactly one of path or server_filename", f.Name)
	}
	return nil
}

func openInputs(inputs []models.InputFile, field string) ([]models.NamedFile, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	files := make([]models.NamedFile, 0, len(inputs))
	for _, in := range inputs {
		fh, err := os.Open(in.Path)
		if err != nil {
			closeAll()
			return nil, nil, studio.Validationf("cannot open %s: %v", in.Path, err)
		}
		opened = append(opened, fh)
		info, err := fh.Stat()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("stat %s: %w", in.Path, err)
		}
		name := in.Name
		if name == "" {
			name = filepath.Base(in.Path)
		}
		contentType := in.ContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
		}
		files = append(files, models.NamedFile{
			Field:       field,
			Name:        name,
			ContentType: contentType,
			Size:        info.Size(),
			Content:     fh,
		})
	}
	return files, closeAll, nil
}
