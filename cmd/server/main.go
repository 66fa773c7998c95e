package main

import (
	"log"

	"transcribe-upload/internal/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := server.Serve(); err != nil {
		log.Fatal(err)
	}
}
