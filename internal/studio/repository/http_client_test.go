package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
	"github.com/amankumarsingh77/studio-orchestrator/internal/studio"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (studio.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStudioClientWithHTTP(srv.URL, 5*time.Second, srv.Client(), logger.NewNopLogger()), srv
}

// TestSubmitJSONReturnsAsyncHandle checks the JSON content type and job id handling.
func TestSubmitJSONReturnsAsyncHandle(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Fatalf("path = %q, want /extract", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q, want application/json", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["url"] != "https://youtu.be/x" {
			t.Fatalf("url = %q", body["url"])
		}
		w.Write([]byte(`{"success":true,"job_id":"j1"}`))
	})

	handle, err := client.Submit(context.Background(), models.JobKindExtract, "/extract", models.JSONPayload{Body: map[string]string{"url": "https://youtu.be/x"}})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if handle.ID != "j1" || handle.Kind != models.JobKindExtract || handle.Completed() {
		t.Fatalf("handle = %+v", handle)
	}
}

// TestSubmitMultipartSendsFilesAndFields checks the multipart encoding path.
func TestSubmitMultipartSendsFilesAndFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Fatalf("content type = %q, want multipart/form-data", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("apply_logo"); got != "true" {
			t.Fatalf("apply_logo = %q, want true", got)
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("FormFile(image): %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "cover.png" || string(data) != "png-bytes" {
			t.Fatalf("file = %q %q", hdr.Filename, data)
		}
		w.Write([]byte(`{"success":true,"file_info":{"filename":"20240101_cover.png"}}`))
	})

	payload := models.MultipartPayload{
		Files:  []models.NamedFile{{Field: "image", Name: "cover.png", ContentType: "image/png", Size: 9, Content: strings.NewReader("png-bytes")}},
		Fields: map[string]string{"apply_logo": "true"},
	}
	handle, err := client.Submit(context.Background(), models.JobKindImageProcess, "/api/music-video/process-image", payload)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !handle.Completed() {
		t.Fatalf("handle should be completed inline: %+v", handle)
	}
	if handle.Inline.Filename != "20240101_cover.png" {
		t.Fatalf("inline filename = %q", handle.Inline.Filename)
	}
}

func TestSubmitErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   studio.ErrorKind
		msg    string
	}{
		{"success false", http.StatusOK, `{"success":false,"error":"no files"}`, studio.KindSubmission, "no files"},
		{"bad status", http.StatusBadRequest, `{"error":"semitones out of range"}`, studio.KindSubmission, "semitones out of range"},
		{"bad status html", http.StatusInternalServerError, `<html>oops</html>`, studio.KindSubmission, "oops"},
		{"invalid json", http.StatusOK, `not json`, studio.KindSubmission, "not valid JSON"},
		{"no success no job", http.StatusOK, `{"message":"hello"}`, studio.KindSubmission, "neither"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, err := client.Submit(context.Background(), models.JobKindTrim, "/trim-audio", models.JSONPayload{Body: map[string]string{"filename": "x.mp3"}})
			if studio.KindOf(err) != tc.kind {
				t.Fatalf("kind = %q, want %q (err=%v)", studio.KindOf(err), tc.kind, err)
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("error %q does not contain %q", err, tc.msg)
			}
			if studio.IsTransient(err) {
				t.Fatalf("submission errors must not be transient")
			}
		})
	}
}

// TestSubmitNetworkError checks that a dead server is a NetworkError, not a SubmissionError.
func TestSubmitNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewStudioClientWithHTTP(url, time.Second, &http.Client{}, logger.NewNopLogger())
	_, err := client.Submit(context.Background(), models.JobKindExtract, "/extract", models.JSONPayload{Body: map[string]string{}})
	if !errors.Is(err, studio.ErrNetwork) {
		t.Fatalf("err = %v, want network error", err)
	}
}

func TestSubmitCancelledContextIsAborted(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"job_id":"j"}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Submit(ctx, models.JobKindExtract, "/extract", models.JSONPayload{Body: map[string]string{}})
	if !errors.Is(err, studio.ErrAborted) {
		t.Fatalf("err = %v, want aborted", err)
	}
}

func TestFetchStatus(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		state    models.JobState
		progress float64
		errMsg   string
		filename string
	}{
		{"processing", 200, `{"status":"processing","progress":40,"message":"working"}`, models.JobStateRunning, 40, "", ""},
		{"progress clamped", 200, `{"status":"running","progress":140}`, models.JobStateRunning, 100, "", ""},
		{"completed", 200, `{"status":"completed","progress":100,"result":{"filename":"x.mp3"}}`, models.JobStateCompleted, 100, "", "x.mp3"},
		{"error spelling", 200, `{"status":"error","message":"ffmpeg crashed"}`, models.JobStateFailed, 0, "ffmpeg crashed", ""},
		{"failed with error field", 200, `{"status":"failed","error":"bad input","message":"stopped"}`, models.JobStateFailed, 0, "bad input", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/process/status/job-1" {
					t.Fatalf("path = %q", r.URL.Path)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			st, err := client.FetchStatus(context.Background(), &models.JobHandle{ID: "job-1", Kind: models.JobKindMerge}, "/process/status")
			if err != nil {
				t.Fatalf("FetchStatus() error = %v", err)
			}
			if st.State != tc.state || st.ProgressPercent != tc.progress {
				t.Fatalf("status = %+v", st)
			}
			if tc.errMsg != "" && (st.ErrorMessage == nil || *st.ErrorMessage != tc.errMsg) {
				t.Fatalf("error message = %v, want %q", st.ErrorMessage, tc.errMsg)
			}
			if tc.filename != "" && (st.Result == nil || st.Result.Filename != tc.filename) {
				t.Fatalf("result = %+v, want filename %q", st.Result, tc.filename)
			}
		})
	}
}

func TestFetchStatusTemplateAndErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs/gone/state":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"작업을 찾을 수 없습니다"}`))
		case "/jobs/flaky/state":
			w.WriteHeader(http.StatusBadGateway)
		case "/jobs/garbled/state":
			w.Write([]byte(`{{{`))
		default:
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
	})

	_, err := client.FetchStatus(context.Background(), &models.JobHandle{ID: "gone", Kind: models.JobKindExtract}, "/jobs/{job_id}/state")
	if !errors.Is(err, studio.ErrJobNotFound) || studio.IsTransient(err) {
		t.Fatalf("404 err = %v, want non-transient job not found", err)
	}
	_, err = client.FetchStatus(context.Background(), &models.JobHandle{ID: "flaky", Kind: models.JobKindExtract}, "/jobs/{job_id}/state")
	if !studio.IsTransient(err) {
		t.Fatalf("502 err = %v, want transient", err)
	}
	_, err = client.FetchStatus(context.Background(), &models.JobHandle{ID: "garbled", Kind: models.JobKindExtract}, "/jobs/{job_id}/state")
	if !studio.IsTransient(err) {
		t.Fatalf("garbled err = %v, want transient", err)
	}
}

func TestDownload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/download/merged file.mp3" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("mp3") != "true" {
			t.Fatalf("mp3 = %q, want true", r.URL.Query().Get("mp3"))
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3"))
	})

	mp3 := true
	dl, err := client.Download(context.Background(), "merged file.mp3", &mp3)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer dl.Body.Close()
	data, _ := io.ReadAll(dl.Body)
	if string(data) != "ID3" || dl.ContentType != "audio/mpeg" {
		t.Fatalf("download = %q %q", data, dl.ContentType)
	}
}

// TestSubmitUploadOutlivesRequestTimeout checks uploads are bounded by ctx, not the request timeout.
func TestSubmitUploadOutlivesRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		time.Sleep(200 * time.Millisecond)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			w.Write([]byte(`{"success":true,"file_info":{"filename":"a.mp3"}}`))
			return
		}
		w.Write([]byte(`{"success":true,"job_id":"j1"}`))
	}))
	defer srv.Close()
	client := NewStudioClientWithHTTP(srv.URL, 50*time.Millisecond, srv.Client(), logger.NewNopLogger())

	payload := models.MultipartPayload{Files: []models.NamedFile{{Field: "file", Name: "a.mp3", Content: strings.NewReader("ID3")}}}
	handle, err := client.Submit(context.Background(), models.JobKindUpload, "/upload_extract_file", payload)
	if err != nil {
		t.Fatalf("upload error = %v", err)
	}
	if !handle.Completed() || handle.Inline.Filename != "a.mp3" {
		t.Fatalf("handle = %+v", handle)
	}

	_, err = client.Submit(context.Background(), models.JobKindExtract, "/extract", models.JSONPayload{Body: map[string]string{}})
	if !errors.Is(err, studio.ErrNetwork) {
		t.Fatalf("json submit err = %v, want network timeout", err)
	}
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("disk gone") }

func TestSubmitUploadReadFailureIsValidation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"success":true,"files":[]}`))
	})

	payload := models.MultipartPayload{Files: []models.NamedFile{{Field: "files", Name: "a.mp3", Content: failingReader{}}}}
	_, err := client.Submit(context.Background(), models.JobKindUpload, "/upload", payload)
	if !errors.Is(err, studio.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("err = %v, want the read error", err)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("처리 실패 ", 40)
	got := truncate(msg)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") || len(got) > maxErrorBodyChars+3 {
		t.Fatalf("len = %d, got %q", len(got), got)
	}
	if short := truncate("  없음  "); short != "없음" {
		t.Fatalf("short = %q", short)
	}
}
