package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxResponseBytes      = 8 << 20
	maxErrorBodyChars     = 200
)

type studioClient struct {
	baseURL    string
	reqTimeout time.Duration
	httpClient *http.Client
	logger     logger.Logger
}

func NewStudioClient(cfg *config.Config, logger logger.Logger) studio.Client {
	return NewStudioClientWithHTTP(cfg.Studio.BaseURL, cfg.Studio.Timeout(), &http.Client{}, logger)
}

// NewStudioClientWithHTTP builds a client around a caller-supplied http.Client.
// reqTimeout bounds submissions and status requests; downloads are bounded by ctx only.
func NewStudioClientWithHTTP(baseURL string, reqTimeout time.Duration, httpClient *http.Client, logger logger.Logger) studio.Client {
	if reqTimeout <= 0 {
		reqTimeout = defaultRequestTimeout
	}
	return &studioClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		reqTimeout: reqTimeout,
		httpClient: httpClient,
		logger:     logger,
	}
}

type submitResponse struct {
	Success *bool  `json:"success"`
	JobID   string `json:"job_id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (r *submitResponse) reason() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}

type statusResponse struct {
	Status   string          `json:"status"`
	Progress interface{}     `json:"progress"`
	Message  string          `json:"message"`
	Result   json.RawMessage `json:"result"`
	Error    *string         `json:"error"`
}

func (c *studioClient) Submit(ctx context.Context, kind models.JobKind, endpoint string, payload models.Payload) (*models.JobHandle, error) {
	body, contentType, uploadErr, err := encodePayload(payload)
	if err != nil {
		return nil, &studio.Error{Kind: studio.KindValidation, JobKind: kind, Endpoint: endpoint, Message: "cannot encode payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(endpoint), body)
	if err != nil {
		if rc, ok := body.(io.Closer); ok {
			rc.Close()
		}
		return nil, &studio.Error{Kind: studio.KindValidation, JobKind: kind, Endpoint: endpoint, Message: "cannot build request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	_, streamed := payload.(models.MultipartPayload)
	statusCode, raw, err := c.do(req, !streamed)
	if err != nil {
		if fileErr := uploadErr(); fileErr != nil {
			return nil, &studio.Error{Kind: studio.KindValidation, JobKind: kind, Endpoint: endpoint, Message: "cannot read upload", Err: fileErr}
		}
		return nil, c.transportError(ctx, kind, "", endpoint, err)
	}

	var sr submitResponse
	decodeErr := json.Unmarshal(raw, &sr)

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		msg := sr.reason()
		if decodeErr != nil || msg == "" {
			msg = truncate(string(raw))
		}
		return nil, &studio.Error{Kind: studio.KindSubmission, JobKind: kind, Endpoint: endpoint, StatusCode: statusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &studio.Error{Kind: studio.KindSubmission, JobKind: kind, Endpoint: endpoint, StatusCode: statusCode, Message: "response is not valid JSON", Err: decodeErr}
	}
	if sr.Success != nil && !*sr.Success {
		return nil, &studio.Error{Kind: studio.KindSubmission, JobKind: kind, Endpoint: endpoint, StatusCode: statusCode, Message: sr.reason()}
	}
	if sr.JobID != "" {
		c.logger.Debugf("studioClient.Submit - %s accepted as job %s", endpoint, sr.JobID)
		return &models.JobHandle{ID: sr.JobID, Kind: kind}, nil
	}
	if sr.Success == nil {
		return nil, &studio.Error{Kind: studio.KindSubmission, JobKind: kind, Endpoint: endpoint, StatusCode: statusCode, Message: "response carries neither success nor job_id"}
	}

	inline := models.ParseJobResult(raw)
	c.logger.Debugf("studioClient.Submit - %s completed inline (filename=%q)", endpoint, inline.Filename)
	return &models.JobHandle{Kind: kind, Inline: inline}, nil
}

func (c *studioClient) FetchStatus(ctx context.Context, handle *models.JobHandle, statusEndpoint string) (*models.JobStatus, error) {
	endpoint := statusURL(statusEndpoint, handle.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(endpoint), nil)
	if err != nil {
		return nil, &studio.Error{Kind: studio.KindValidation, JobKind: handle.Kind, JobID: handle.ID, Endpoint: endpoint, Message: "cannot build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	statusCode, raw, err := c.do(req, true)
	if err != nil {
		return nil, c.transportError(ctx, handle.Kind, handle.ID, endpoint, err)
	}
	if statusCode == http.StatusNotFound {
		return nil, &studio.Error{Kind: studio.KindJobNotFound, JobKind: handle.Kind, JobID: handle.ID, Endpoint: endpoint, StatusCode: statusCode, Message: "the job was lost by the server"}
	}
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &studio.Error{Kind: studio.KindNetwork, JobKind: handle.Kind, JobID: handle.ID, Endpoint: endpoint, StatusCode: statusCode, Message: truncate(string(raw)), Transient: true}
	}

	var sr statusResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, &studio.Error{Kind: studio.KindProtocol, JobKind: handle.Kind, JobID: handle.ID, Endpoint: endpoint, StatusCode: statusCode, Message: "status response is not valid JSON", Err: err, Transient: true}
	}
	return sr.toStatus(), nil
}

func (c *studioClient) Download(ctx context.Context, filename string, mp3 *bool) (*studio.Download, error) {
	endpoint := "/download/" + url.PathEscape(filename)
	if mp3 != nil {
		endpoint += "?mp3=" + strconv.FormatBool(*mp3)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(endpoint), nil)
	if err != nil {
		return nil, &studio.Error{Kind: studio.KindValidation, Endpoint: endpoint, Message: "cannot build request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, "", "", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyChars))
		resp.Body.Close()
		return nil, &studio.Error{Kind: studio.KindSubmission, Endpoint: endpoint, StatusCode: resp.StatusCode, Message: truncate(string(raw))}
	}
	return &studio.Download{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// do runs a request and reads the whole body. Bounded requests also get the client's request
// timeout; uploads are bounded by the caller's ctx only, since the server answers after storing
// and probing the files.
func (c *studioClient) do(req *http.Request, bounded bool) (int, []byte, error) {
	if bounded {
		ctx, cancel := context.WithTimeout(req.Context(), c.reqTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (c *studioClient) transportError(ctx context.Context, kind models.JobKind, jobID, endpoint string, err error) error {
	if ctx.Err() != nil {
		return &studio.Error{Kind: studio.KindAborted, JobKind: kind, JobID: jobID, Endpoint: endpoint, Err: ctx.Err()}
	}
	return &studio.Error{Kind: studio.KindNetwork, JobKind: kind, JobID: jobID, Endpoint: endpoint, Err: err, Transient: true}
}

func (c *studioClient) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

func (sr *statusResponse) toStatus() *models.JobStatus {
	st := &models.JobStatus{
		State:           models.ParseJobState(sr.Status),
		ProgressPercent: models.ClampProgress(toFloat(sr.Progress)),
		Message:         sr.Message,
	}
	switch st.State {
	case models.JobStateCompleted:
		st.Result = models.ParseJobResult(sr.Result)
		st.ProgressPercent = 100
	case models.JobStateFailed:
		msg := ""
		if sr.Error != nil {
			msg = strings.TrimSpace(*sr.Error)
		}
		if msg == "" {
			msg = strings.TrimSpace(sr.Message)
		}
		if msg != "" {
			st.ErrorMessage = &msg
		}
	}
	return st
}

func statusURL(template, jobID string) string {
	escaped := url.PathEscape(jobID)
	if strings.Contains(template, "{job_id}") {
		return strings.ReplaceAll(template, "{job_id}", escaped)
	}
	return strings.TrimRight(template, "/") + "/" + escaped
}

// encodePayload returns the request body. Multipart bodies are streamed from the files while
// the request is written; uploadErr reports a failed file read once the request has ended.
func encodePayload(payload models.Payload) (body io.Reader, contentType string, uploadErr func() error, err error) {
	noErr := func() error { return nil }
	switch p := payload.(type) {
	case models.JSONPayload:
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(p.Body); err != nil {
			return nil, "", noErr, fmt.Errorf("encode json payload: %w", err)
		}
		return buf, "application/json", noErr, nil
	case models.MultipartPayload:
		body, contentType, uploadErr := streamMultipart(p)
		return body, contentType, uploadErr, nil
	case nil:
		return nil, "", noErr, fmt.Errorf("payload is nil")
	default:
		return nil, "", noErr, fmt.Errorf("unsupported payload type %T", payload)
	}
}

func streamMultipart(p models.MultipartPayload) (io.Reader, string, func() error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	contentType := writer.FormDataContentType()

	var (
		mu      sync.Mutex
		readErr error
	)
	go func() {
		err := writeMultipart(writer, p)
		var src *sourceError
		if errors.As(err, &src) {
			mu.Lock()
			readErr = err
			mu.Unlock()
		}
		pw.CloseWithError(err)
	}()
	return pr, contentType, func() error {
		mu.Lock()
		defer mu.Unlock()
		return readErr
	}
}

// sourceError marks a failure reading a file, as opposed to the request side going away.
type sourceError struct {
	name string
	err  error
}

func (e *sourceError) Error() string { return fmt.Sprintf("read %s: %v", e.name, e.err) }

func (e *sourceError) Unwrap() error { return e.err }

type trackedReader struct {
	r   io.Reader
	err error
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

func writeMultipart(writer *multipart.Writer, p models.MultipartPayload) error {
	for _, f := range p.Files {
		field := f.Field
		if field == "" {
			field = "file"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Name))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("create multipart file: %w", err)
		}
		if f.Content == nil {
			continue
		}
		src := &trackedReader{r: f.Content}
		if _, err := io.Copy(part, src); err != nil {
			if src.err != nil {
				return &sourceError{name: f.Name, err: src.err}
			}
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}
	for name, value := range p.Fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("write %s field: %w", name, err)
		}
	}
	return writer.Close()
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// truncate shortens server error text to at most maxErrorBodyChars bytes without splitting a rune.
func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorBodyChars {
		return s
	}
	cut := maxErrorBodyChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
