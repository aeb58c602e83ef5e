package models

import "io"

// NamedFile is one multipart part. Size must be known up front for pre-flight checks.
type NamedFile struct {
	Field       string
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

type UploadedFileInfo struct {
	Filename        string  `json:"filename"`
	OriginalName    string  `json:"original_name"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
}

// Payload is a submission body. It is either a JSONPayload or a MultipartPayload.
type Payload interface {
	isPayload()
}

type JSONPayload struct {
	Body interface{}
}

type MultipartPayload struct {
	Files  []NamedFile
	Fields map[string]string
}

func (JSONPayload) isPayload()      {}
func (MultipartPayload) isPayload() {}
