package studio

import (
	"context"
	"io"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
)

type Client interface {
	Submit(ctx context.Context, kind models.JobKind, endpoint string, payload models.Payload) (*models.JobHandle, error)
	FetchStatus(ctx context.Context, handle *models.JobHandle, statusEndpoint string) (*models.JobStatus, error)
	Download(ctx context.Context, filename string, mp3 *bool) (*Download, error)
}

type Download struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}
