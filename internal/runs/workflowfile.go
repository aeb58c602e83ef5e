package runs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"gopkg.in/yaml.v3"
)

// ParseWorkflowFile decodes a YAML run request. Unknown keys are rejected so typos
// do not silently drop options.
func ParseWorkflowFile(r io.Reader) (*models.RunRequest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	req := &models.RunRequest{}
	if err := dec.Decode(req); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("workflow file is empty")
		}
		return nil, fmt.Errorf("parse workflow file: %w", err)
	}
	return req, nil
}

// LoadWorkflowFile reads a workflow file from disk. Relative input paths are resolved
// against the directory holding the file.
func LoadWorkflowFile(path string) (*models.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	req, err := ParseWorkflowFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range req.Files {
		req.Files[i].Path = resolvePath(base, req.Files[i].Path)
	}
	if req.Image != nil {
		req.Image.Path = resolvePath(base, req.Image.Path)
	}
	return req, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
