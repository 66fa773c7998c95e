package server

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	serverconfig "transcribe-upload/internal/server/config"

	"github.com/valyala/fasthttp"
)

func Serve() error {
	cfg := serverconfig.Cfg

	recognizer, err := newRecognizer(cfg)
	if err != nil {
		return fmt.Errorf("create recognizer: %w", err)
	}

	transcribeHandler := newHandlerConfig(cfg.FileField, cfg.Language, cfg.AllowedHosts, cfg.MaxConcurrentUploads, recognizer)

	if cfg.PprofEnabled {
		go runPprofServer(cfg.PprofAddr)
	}

	server := &fasthttp.Server{
		Name:               cfg.Name,
		Handler:            transcribeHandler.handler,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		ReadTimeout:        cfg.ReadTimeout,
		WriteTimeout:       cfg.WriteTimeout,
		IdleTimeout:        cfg.IdleTimeout,
	}

	log.Printf("server is listening on %s (recognizer=%s language=%s allowed_hosts=%v)",
		cfg.Addr, cfg.Recognizer, cfg.Language, cfg.AllowedHosts)
	if err := server.ListenAndServe(cfg.Addr); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

func runPprofServer(addr string) {
	log.Printf("pprof is listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("pprof listen and serve: %v", err)
	}
}
