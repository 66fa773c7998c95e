package server

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
)

// whisperRecognizer forwards audio to an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
type whisperRecognizer struct {
	httpClient *fasthttp.Client
	url        string
	model      string
	apiKey     string
	timeout    time.Duration
}

type whisperResponse struct {
	Text string `json:"text"`
}

func newWhisperRecognizer(httpClient *fasthttp.Client, url, model, apiKey string, timeout time.Duration) *whisperRecognizer {
	if httpClient == nil {
		httpClient = &fasthttp.Client{}
	}

	return &whisperRecognizer{
		httpClient: httpClient,
		url:        url,
		model:      model,
		apiKey:     apiKey,
		timeout:    timeout,
	}
}

func (r *whisperRecognizer) Recognize(ctx context.Context, audio Audio, language string) (string, error) {
	body, contentType, err := r.buildBody(audio, language)
	if err != nil {
		return "", fmt.Errorf("build whisper request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(r.url)
	req.Header.SetContentType(contentType)
	if r.apiKey != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+r.apiKey)
	}
	req.SetBody(body)

	if err := r.do(ctx, req, resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognizerUnavailable, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrRecognizerUnavailable, resp.StatusCode(), resp.Body())
	}

	var result whisperResponse
	if err := sonic.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRecognizerUnavailable, err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", ErrUnrecognized
	}

	return text, nil
}

func (r *whisperRecognizer) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		return r.httpClient.DoDeadline(req, resp, deadline)
	}
	if r.timeout > 0 {
		return r.httpClient.DoTimeout(req, resp, r.timeout)
	}

	return r.httpClient.Do(req, resp)
}

func (r *whisperRecognizer) buildBody(audio Audio, language string) ([]byte, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", r.model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if lang := whisperLanguage(language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`,
		strings.ReplaceAll(audio.FileName, `"`, `\"`)))
	header.Set("Content-Type", audio.ContentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body.Bytes(), mw.FormDataContentType(), nil
}

// whisperLanguage reduces a locale such as pt-BR to the ISO-639-1 code the
// transcription API expects.
func whisperLanguage(language string) string {
	lang, _, _ := strings.Cut(strings.TrimSpace(language), "-")

	return strings.ToLower(lang)
}
