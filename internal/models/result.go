package models

import (
	"bytes"
	"encoding/json"
)

// JobResult is the stage payload of a completed job. Only Filename is needed to
// chain stages; the other fields are surfaced for display when the server sends them.
type JobResult struct {
	Filename        string          `json:"filename,omitempty"`
	DownloadURL     string          `json:"download_url,omitempty"`
	DurationSeconds float64         `json:"duration_seconds,omitempty"`
	FileSizeBytes   int64           `json:"file_size_bytes,omitempty"`
	Resolution      string          `json:"resolution,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

var filenamePaths = [][]string{
	{"new_filename"},
	{"filename"},
	{"output_file"},
	{"file_info", "new_filename"},
	{"file_info", "filename"},
	{"video_info", "filename"},
	{"video_info", "output_file"},
}

var durationPaths = [][]string{
	{"duration"},
	{"file_info", "duration"},
	{"video_info", "duration"},
}

var sizePaths = [][]string{
	{"file_size"},
	{"size"},
	{"file_info", "size"},
	{"video_info", "file_size"},
	{"video_info", "size"},
}

// ParseJobResult reads a result object in any of the shapes the studio server
// returns. A missing or null payload yields a nil result.
func ParseJobResult(raw json.RawMessage) *JobResult {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	res := &JobResult{Raw: append(json.RawMessage(nil), trimmed...)}

	var fields map[string]interface{}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return res
	}
	for _, path := range filenamePaths {
		if s, ok := lookup(fields, path).(string); ok && s != "" {
			res.Filename = s
			break
		}
	}
	for _, path := range durationPaths {
		if f, ok := lookup(fields, path).(float64); ok {
			res.DurationSeconds = f
			break
		}
	}
	for _, path := range sizePaths {
		if f, ok := lookup(fields, path).(float64); ok {
			res.FileSizeBytes = int64(f)
			break
		}
	}
	if s, ok := lookup(fields, []string{"download_url"}).(string); ok {
		res.DownloadURL = s
	}
	if s, ok := lookup(fields, []string{"video_info", "resolution"}).(string); ok {
		res.Resolution = s
	} else if s, ok := lookup(fields, []string{"resolution"}).(string); ok {
		res.Resolution = s
	}
	return res
}

func lookup(fields map[string]interface{}, path []string) interface{} {
	var cur interface{} = fields
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}
