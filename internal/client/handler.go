package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"transcribe-upload/internal/client/config"
	"transcribe-upload/internal/client/uploader"

	"github.com/valyala/fasthttp"
)

type uploadHandler struct {
	client *uploader.Client
	cfg    config.AppConfig
}

func newUploadHandler(httpClient *fasthttp.Client, cfg config.AppConfig) (*uploadHandler, error) {
	client, err := uploader.New(httpClient, uploader.Config{
		FormFieldName:  cfg.FieldName,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &uploadHandler{
		client: client,
		cfg:    cfg,
	}, nil
}

// Handle performs the upload and prints its outcome to out. Upload failures
// are printed, not returned; the only error is a failed write to out.
func (h *uploadHandler) Handle(ctx context.Context, out io.Writer) error {
	start := time.Now()

	resp, err := h.client.UploadFileContext(ctx, uploader.UploadRequest{
		URL:      h.cfg.URL,
		FilePath: h.cfg.FilePath,
	})
	result := newResponseResult(resp, err)

	switch r := result.(type) {
	case Success:
		slog.Info("upload result",
			"file", h.cfg.FilePath,
			"url", h.cfg.URL,
			"http_status", r.StatusCode,
			"response_bytes", len(resp.Body),
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
		if _, err := fmt.Fprintln(out, string(r.Payload)); err != nil {
			return fmt.Errorf("print response: %w", err)
		}
	case Failure:
		slog.Warn("upload failed",
			"file", h.cfg.FilePath,
			"url", h.cfg.URL,
			"error", r.Err.Error(),
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
		if _, err := fmt.Fprintln(out, r.Err); err != nil {
			return fmt.Errorf("print error: %w", err)
		}
	}

	return nil
}
