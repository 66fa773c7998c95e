package main

import (
	"log"

	"transcribe-upload/internal/client"
)

// Upload outcomes are printed by the client itself; only a failure to write
// the result ends up here.
func main() {
	if err := client.Serve(); err != nil {
		log.Fatal(err)
	}
}
