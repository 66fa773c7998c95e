package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func validUploaderConfig() Config {
	return Config{
		FormFieldName:  "audio",
		RequestTimeout: 30 * time.Second,
	}
}

type receivedUpload struct {
	contentType     string
	contentLength   int
	fileNames       []string
	partContentType string
	content         []byte
	otherFields     int
}

type recordingServer struct {
	requests atomic.Int32

	mu         sync.Mutex
	uploads    []receivedUpload
	handlerErr error
}

func (s *recordingServer) fail(ctx *fasthttp.RequestCtx, err error) {
	s.mu.Lock()
	s.handlerErr = err
	s.mu.Unlock()
	ctx.SetStatusCode(fasthttp.StatusBadRequest)
}

func (s *recordingServer) handler(ctx *fasthttp.RequestCtx) {
	s.requests.Add(1)

	upload := receivedUpload{
		contentType:   string(ctx.Request.Header.ContentType()),
		contentLength: ctx.Request.Header.ContentLength(),
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		s.fail(ctx, fmt.Errorf("multipart form: %w", err))
		return
	}

	files := form.File["audio"]
	if len(files) != 1 {
		s.fail(ctx, fmt.Errorf("expected one audio part, got %d", len(files)))
		return
	}
	for name, headers := range form.File {
		if name != "audio" {
			upload.otherFields += len(headers)
		}
	}
	upload.otherFields += len(form.Value)

	file, err := files[0].Open()
	if err != nil {
		s.fail(ctx, fmt.Errorf("open uploaded file: %w", err))
		return
	}
	content, err := io.ReadAll(file)
	closeErr := file.Close()
	if err != nil {
		s.fail(ctx, fmt.Errorf("read uploaded file: %w", err))
		return
	}
	if closeErr != nil {
		s.fail(ctx, fmt.Errorf("close uploaded file: %w", closeErr))
		return
	}

	upload.fileNames = append(upload.fileNames, files[0].Filename)
	upload.partContentType = files[0].Header.Get("Content-Type")
	upload.content = content

	s.mu.Lock()
	s.uploads = append(s.uploads, upload)
	s.mu.Unlock()

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"text":"hello"}`)
}

func startRecordingServer(t *testing.T) (*recordingServer, *fasthttp.Client) {
	t.Helper()

	rec := &recordingServer{}
	server := &fasthttp.Server{Handler: rec.handler}

	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = server.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = server.Shutdown()
		_ = ln.Close()
	})

	httpClient := &fasthttp.Client{
		Dial: func(_ string) (net.Conn, error) {
			return ln.Dial()
		},
	}

	return rec, httpClient
}

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}

func TestUploadFile(t *testing.T) {
	expectedContent := bytes.Repeat([]byte("OggS\x00\x02fake-vorbis-page"), 4096)
	tempFilePath := writeTempFile(t, "Teste.ogg", expectedContent)

	rec, httpClient := startRecordingServer(t)

	client, err := New(httpClient, validUploaderConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.UploadFileContext(context.Background(), UploadRequest{
		URL:      "http://inmemory/transcrever",
		FilePath: tempFilePath,
	})
	if err != nil {
		t.Fatalf("upload file: %v", err)
	}

	if resp.StatusCode != fasthttp.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", resp.StatusCode, fasthttp.StatusOK)
	}
	if string(resp.Body) != `{"text":"hello"}` {
		t.Fatalf("unexpected body: %q", resp.Body)
	}
	if resp.ContentType != "application/json" {
		t.Fatalf("unexpected response content type: %q", resp.ContentType)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.handlerErr != nil {
		t.Fatalf("handler error: %v", rec.handlerErr)
	}
	if got := rec.requests.Load(); got != 1 {
		t.Fatalf("unexpected request count: got %d want 1", got)
	}

	upload := rec.uploads[0]
	if !bytes.Equal(upload.content, expectedContent) {
		t.Fatalf("uploaded file content mismatch")
	}
	if upload.otherFields != 0 {
		t.Fatalf("expected no other form fields, got %d", upload.otherFields)
	}
	if upload.fileNames[0] != "Teste.ogg" {
		t.Fatalf("unexpected file name: %q", upload.fileNames[0])
	}
	if upload.partContentType != "audio/ogg" {
		t.Fatalf("unexpected part content type: %q", upload.partContentType)
	}
	if !strings.HasPrefix(upload.contentType, "multipart/form-data; boundary=") {
		t.Fatalf("unexpected content type: %q", upload.contentType)
	}
	if upload.contentLength <= len(expectedContent) {
		t.Fatalf("expected content length above %d, got %d", len(expectedContent), upload.contentLength)
	}
}

func TestUploadFileCustomFileName(t *testing.T) {
	tempFilePath := writeTempFile(t, "payload.bin", []byte("raw"))

	rec, httpClient := startRecordingServer(t)

	client, err := New(httpClient, validUploaderConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.UploadFileContext(context.Background(), UploadRequest{
		URL:      "http://inmemory/transcrever",
		FilePath: tempFilePath,
		FileName: "voice.mp3",
	}); err != nil {
		t.Fatalf("upload file: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.handlerErr != nil {
		t.Fatalf("handler error: %v", rec.handlerErr)
	}
	upload := rec.uploads[0]
	if upload.fileNames[0] != "voice.mp3" {
		t.Fatalf("unexpected file name: %q", upload.fileNames[0])
	}
	if upload.partContentType != "audio/mpeg" {
		t.Fatalf("unexpected part content type: %q", upload.partContentType)
	}
}

func TestUploadFileBoundaryDiffersPerRequest(t *testing.T) {
	tempFilePath := writeTempFile(t, "Teste.ogg", []byte("audio"))

	rec, httpClient := startRecordingServer(t)

	client, err := New(httpClient, validUploaderConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := client.UploadFileContext(context.Background(), UploadRequest{
			URL:      "http://inmemory/transcrever",
			FilePath: tempFilePath,
		}); err != nil {
			t.Fatalf("upload file: %v", err)
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.uploads) != 2 {
		t.Fatalf("unexpected upload count: got %d want 2", len(rec.uploads))
	}
	if rec.uploads[0].contentType == rec.uploads[1].contentType {
		t.Fatalf("boundary reused across requests: %q", rec.uploads[0].contentType)
	}
}

func TestUploadFileMissingFile(t *testing.T) {
	rec, httpClient := startRecordingServer(t)

	client, err := New(httpClient, validUploaderConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.UploadFileContext(context.Background(), UploadRequest{
		URL:      "http://inmemory/transcrever",
		FilePath: filepath.Join(t.TempDir(), "missing.ogg"),
	})
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.uploads) != 0 {
		t.Fatalf("expected no completed uploads, got %d", len(rec.uploads))
	}
}

func TestUploadFileConnectionRefused(t *testing.T) {
	tempFilePath := writeTempFile(t, "Teste.ogg", []byte("audio"))

	var dials atomic.Int32
	httpClient := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) {
			dials.Add(1)
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		},
	}

	client, err := New(httpClient, validUploaderConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.UploadFileContext(context.Background(), UploadRequest{
		URL:      "http://127.0.0.1:5000/transcrever",
		FilePath: tempFilePath,
	})
	if err == nil {
		t.Fatalf("expected dial error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := dials.Load(); got != 1 {
		t.Fatalf("expected exactly one dial attempt, got %d", got)
	}
}

func TestUploadFileCanceledContext(t *testing.T) {
	tempFilePath := writeTempFile(t, "Teste.ogg", []byte("audio"))

	rec, httpClient := startRecordingServer(t)

	client, err := New(httpClient, validUploaderConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.UploadFileContext(ctx, UploadRequest{
		URL:      "http://inmemory/transcrever",
		FilePath: tempFilePath,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got: %v", err)
	}
	if got := rec.requests.Load(); got != 0 {
		t.Fatalf("expected no requests, got %d", got)
	}
}

func TestUploadFileInvalidRequest(t *testing.T) {
	client, err := New(nil, validUploaderConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{name: "missing-url", req: UploadRequest{FilePath: "a.ogg"}},
		{name: "missing-file-path", req: UploadRequest{URL: "http://inmemory/transcrever"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := client.UploadFileContext(context.Background(), tc.req); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: validUploaderConfig()},
		{name: "no-timeout", cfg: Config{FormFieldName: "audio"}},
		{name: "missing-field", cfg: Config{RequestTimeout: time.Second}, wantErr: true},
		{name: "negative-timeout", cfg: Config{FormFieldName: "audio", RequestTimeout: -time.Second}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(nil, tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestBodyStreamSize(t *testing.T) {
	maxInt := int64(math.MaxInt)

	tests := []struct {
		name string
		in   int64
		want int
	}{
		{name: "empty", in: 0, want: 0},
		{name: "small", in: 1024, want: 1024},
		{name: "unknown", in: -1, want: -1},
		{name: "max-int", in: maxInt, want: math.MaxInt},
	}
	if maxInt < math.MaxInt64 {
		tests = append(tests, struct {
			name string
			in   int64
			want int
		}{name: "overflows-int", in: maxInt + 1, want: -1})
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := bodyStreamSize(tc.in); got != tc.want {
				t.Fatalf("unexpected size: got %d want %d", got, tc.want)
			}
		})
	}
}
