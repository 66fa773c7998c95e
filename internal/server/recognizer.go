package server

import (
	"context"
	"errors"
	"fmt"

	serverconfig "transcribe-upload/internal/server/config"
	"transcribe-upload/internal/server/format"
)

var (
	// ErrUnrecognized means the audio was processed but no speech was found.
	ErrUnrecognized = errors.New("speech not recognized")
	// ErrRecognizerUnavailable means the speech service could not be reached
	// or answered with an error.
	ErrRecognizerUnavailable = errors.New("speech recognizer unavailable")
)

type Audio struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Recognizer turns an uploaded audio file into text. Implementations must be
// safe for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, audio Audio, language string) (string, error)
}

func newRecognizer(cfg serverconfig.AppConfig) (Recognizer, error) {
	switch cfg.Recognizer {
	case serverconfig.RecognizerMock:
		return mockRecognizer{}, nil
	case serverconfig.RecognizerWhisper:
		return newWhisperRecognizer(nil, cfg.WhisperURL, cfg.WhisperModel, cfg.WhisperAPIKey, cfg.RecognizerTimeout), nil
	default:
		return nil, fmt.Errorf("unknown recognizer: %q", cfg.Recognizer)
	}
}

// mockRecognizer answers with canned text so the endpoint works without a
// speech service.
type mockRecognizer struct{}

func (mockRecognizer) Recognize(ctx context.Context, audio Audio, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(audio.Data) == 0 {
		return "", ErrUnrecognized
	}

	return fmt.Sprintf("[transcrição simulada (%s) de %s em %s]",
		language, format.Bytes(int64(len(audio.Data))), audio.ContentType), nil
}
