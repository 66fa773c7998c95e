package client

import (
	"context"
	"os"

	clientconfig "transcribe-upload/internal/client/config"
)

func Serve() error {
	cfg := clientconfig.Cfg

	handler, err := newUploadHandler(nil, cfg)
	if err != nil {
		return err
	}

	return handler.Handle(context.Background(), os.Stdout)
}
