package server

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"transcribe-upload/internal/server/format"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/valyala/fasthttp"
)

const (
	transcribePath = "/transcrever"
	usageBanner    = `<center><h1>[POST] /transcrever with "audio" form file (wav, ogg, mp3)</h1></center>`

	msgUnauthorized     = "Acesso não autorizado"
	msgNoAudio          = "Nenhum arquivo de áudio enviado"
	msgUnsupportedType  = "Apenas arquivos WAV, OGG e MP3 são permitidos"
	msgUnrecognized     = "Não foi possível reconhecer o áudio"
	msgRecognizerFailed = "Erro ao se comunicar com o serviço de reconhecimento de fala"
	msgInternal         = "Erro interno no servidor"
	msgTooManyUploads   = "Muitos envios simultâneos"
	msgNotFound         = "Recurso não encontrado"
)

// sniffLimit bounds how much of the upload is inspected for content sniffing.
const sniffLimit = 3072

var supportedContentTypes = map[string]struct{}{
	"audio/wav": {},
	"audio/ogg": {},
	"audio/mp3": {},
}

type handlerConfig struct {
	fileFieldName string
	language      string
	allowedHosts  map[string]struct{}
	uploadSlots   chan struct{}
	recognizer    Recognizer
}

type transcriptionResponse struct {
	Transcricao string `json:"transcricao"`
}

type errorResponse struct {
	Erro string `json:"erro"`
}

func newHandlerConfig(fileFieldName, language string, allowedHosts []string, maxConcurrentUploads int, recognizer Recognizer) *handlerConfig {
	h := &handlerConfig{
		fileFieldName: fileFieldName,
		language:      language,
		recognizer:    recognizer,
	}
	if len(allowedHosts) > 0 {
		h.allowedHosts = make(map[string]struct{}, len(allowedHosts))
		for _, host := range allowedHosts {
			h.allowedHosts[strings.ToLower(host)] = struct{}{}
		}
	}
	if maxConcurrentUploads > 0 {
		h.uploadSlots = make(chan struct{}, maxConcurrentUploads)
	}

	return h
}

func (h *handlerConfig) tryAcquireUploadSlot() (func(), bool) {
	if h.uploadSlots == nil {
		return func() {}, true
	}

	select {
	case h.uploadSlots <- struct{}{}:
		return func() { <-h.uploadSlots }, true
	default:
		return nil, false
	}
}

// hostAllowed reports whether the request's Host is on the allowlist. An
// empty allowlist admits every host.
func (h *handlerConfig) hostAllowed(ctx *fasthttp.RequestCtx) bool {
	if h.allowedHosts == nil {
		return true
	}

	_, ok := h.allowedHosts[strings.ToLower(string(ctx.Host()))]
	return ok
}

func requestIP(ctx *fasthttp.RequestCtx) string {
	if forwarded := ctx.Request.Header.Peek("X-Forwarded-For"); len(forwarded) > 0 {
		return string(forwarded)
	}

	return ctx.RemoteIP().String()
}

func writeJSON(ctx *fasthttp.RequestCtx, statusCode int, payload any) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json; charset=utf-8")
		ctx.SetBodyString(`{"erro":"Erro interno no servidor"}`)
		return
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}

func writeJSONError(ctx *fasthttp.RequestCtx, statusCode int, msg string) {
	writeJSON(ctx, statusCode, errorResponse{Erro: msg})
}

func (h *handlerConfig) handler(ctx *fasthttp.RequestCtx) {
	log.Printf("request: ip=%s method=%s path=%s host=%s", requestIP(ctx), ctx.Method(), ctx.Path(), ctx.Host())

	path := string(ctx.Path())
	switch {
	case ctx.IsGet() && path == "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case ctx.IsGet() && path == "/":
		if !h.checkHost(ctx) {
			return
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType("text/html; charset=utf-8")
		ctx.SetBodyString(usageBanner)
	case ctx.IsPost() && path == transcribePath:
		if !h.checkHost(ctx) {
			return
		}
		h.handleTranscribe(ctx)
	default:
		writeJSONError(ctx, fasthttp.StatusNotFound, msgNotFound)
	}
}

func (h *handlerConfig) checkHost(ctx *fasthttp.RequestCtx) bool {
	if h.hostAllowed(ctx) {
		return true
	}

	log.Printf("unauthorized access attempt: ip=%s host=%s", requestIP(ctx), ctx.Host())
	ctx.SetStatusCode(fasthttp.StatusForbidden)
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString(msgUnauthorized)

	return false
}

func (h *handlerConfig) handleTranscribe(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	ip := requestIP(ctx)

	releaseUploadSlot, ok := h.tryAcquireUploadSlot()
	if !ok {
		writeJSONError(ctx, fasthttp.StatusServiceUnavailable, msgTooManyUploads)
		return
	}
	defer releaseUploadSlot()

	form, err := ctx.MultipartForm()
	if err != nil {
		log.Printf("read multipart form: ip=%s err=%v", ip, err)
		writeJSONError(ctx, fasthttp.StatusBadRequest, msgNoAudio)
		return
	}

	files := form.File[h.fileFieldName]
	if len(files) == 0 {
		log.Printf("no audio part %q: ip=%s", h.fileFieldName, ip)
		writeJSONError(ctx, fasthttp.StatusBadRequest, msgNoAudio)
		return
	}

	// Parts without a file name are parsed as plain values and never land here.
	fileHeader := files[0]

	f, err := fileHeader.Open()
	if err != nil {
		log.Printf("open uploaded file %q: ip=%s err=%v", fileHeader.Filename, ip, err)
		writeJSONError(ctx, fasthttp.StatusInternalServerError, msgInternal)
		return
	}
	data, readErr := io.ReadAll(f)
	closeErr := f.Close()
	if readErr != nil || closeErr != nil {
		log.Printf("read uploaded file %q: ip=%s err=%v", fileHeader.Filename, ip, errors.Join(readErr, closeErr))
		writeJSONError(ctx, fasthttp.StatusInternalServerError, msgInternal)
		return
	}

	declared := fileHeader.Header.Get("Content-Type")
	contentType := resolveContentType(fileHeader.Filename, declared, data)
	log.Printf("upload received: ip=%s filename=%s content_type=%s declared=%s size=%s",
		ip, fileHeader.Filename, contentType, declared, format.Bytes(int64(len(data))))

	if _, ok := supportedContentTypes[contentType]; !ok {
		log.Printf("unsupported content type %q: ip=%s", contentType, ip)
		writeJSONError(ctx, fasthttp.StatusBadRequest, msgUnsupportedType)
		return
	}

	text, err := h.recognizer.Recognize(ctx, Audio{
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		Data:        data,
	}, h.language)
	if err != nil {
		statusCode, msg := recognitionFailure(err)
		log.Printf("transcription failed: ip=%s status=%d err=%v", ip, statusCode, err)
		writeJSONError(ctx, statusCode, msg)
		return
	}

	elapsed := time.Since(start)
	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(len(data)) / elapsed.Seconds()
	}

	log.Printf("transcription complete: ip=%s size=%s duration=%s speed=%s text=%q",
		ip,
		format.Bytes(int64(len(data))),
		elapsed.Round(time.Millisecond),
		format.BytesPerSecond(throughput),
		text,
	)

	writeJSON(ctx, fasthttp.StatusOK, transcriptionResponse{Transcricao: text})
}

func recognitionFailure(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnrecognized):
		return fasthttp.StatusBadRequest, msgUnrecognized
	case errors.Is(err, ErrRecognizerUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return fasthttp.StatusInternalServerError, msgRecognizerFailed
	default:
		return fasthttp.StatusInternalServerError, msgInternal
	}
}

// resolveContentType picks the audio type for an upload. A known extension
// wins over the declared part type; content sniffing is the last resort.
func resolveContentType(fileName, declared string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".ogg", ".mp3", ".wav":
		return "audio/" + ext[1:]
	}

	declared = strings.ToLower(strings.TrimSpace(declared))
	if _, ok := supportedContentTypes[declared]; ok {
		return declared
	}

	head := data
	if len(head) > sniffLimit {
		head = head[:sniffLimit]
	}

	detected := mimetype.Detect(head)
	switch {
	case detected.Is("audio/ogg"), detected.Is("application/ogg"):
		return "audio/ogg"
	case detected.Is("audio/wav"):
		return "audio/wav"
	case detected.Is("audio/mpeg"):
		return "audio/mp3"
	}

	return declared
}
