package uploader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/valyala/fasthttp"
)

type Config struct {
	FormFieldName  string
	RequestTimeout time.Duration
}

type Client struct {
	httpClient *fasthttp.Client
	cfg        Config
}

type UploadRequest struct {
	URL      string
	FilePath string
	FileName string
}

type UploadResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func New(httpClient *fasthttp.Client, cfg Config) (*Client, error) {
	if cfg.FormFieldName == "" {
		return nil, errors.New("form field name is required")
	}
	if cfg.RequestTimeout < 0 {
		return nil, errors.New("request timeout must not be negative")
	}

	if httpClient == nil {
		// Zero MaxResponseBodySize: no limit on what the endpoint sends back.
		httpClient = &fasthttp.Client{}
	}

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
	}, nil
}

// UploadFileContext sends the file as the single part of a multipart/form-data
// POST. The file is not checked up front: a missing or unreadable file fails
// while the request body is being written.
func (c *Client) UploadFileContext(ctx context.Context, uploadReq UploadRequest) (*UploadResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if uploadReq.URL == "" {
		return nil, errors.New("url is required")
	}
	if uploadReq.FilePath == "" {
		return nil, errors.New("file path is required")
	}

	body, err := newMultipartBody(c.cfg.FormFieldName, uploadReq.FilePath, uploadReq.FileName)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	defer body.Close()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(uploadReq.URL)
	req.Header.SetContentType(body.ContentType())
	req.SetBodyStream(body, bodyStreamSize(body.Size()))

	doErr := c.doRequest(ctx, req, resp)
	streamErr := body.Err()
	if doErr != nil {
		if streamErr != nil {
			return nil, fmt.Errorf("send request: %v (stream error: %w)", doErr, streamErr)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("send request: %w", ctxErr)
		}
		return nil, fmt.Errorf("send request: %w", doErr)
	}
	if streamErr != nil {
		return nil, fmt.Errorf("stream multipart body: %w", streamErr)
	}

	return &UploadResponse{
		StatusCode:  resp.StatusCode(),
		ContentType: string(resp.Header.ContentType()),
		Body:        append([]byte(nil), resp.Body()...),
	}, nil
}

func (c *Client) doRequest(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		return c.httpClient.DoDeadline(req, resp, deadline)
	}

	if c.cfg.RequestTimeout > 0 {
		return c.httpClient.DoTimeout(req, resp, c.cfg.RequestTimeout)
	}

	return c.httpClient.Do(req, resp)
}

// bodyStreamSize converts a body length for SetBodyStream. Sizes that are
// unknown or do not fit in an int become -1, which switches fasthttp to
// chunked transfer encoding.
func bodyStreamSize(size int64) int {
	if size < 0 || size > math.MaxInt {
		return -1
	}

	return int(size)
}
