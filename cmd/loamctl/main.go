// Command loamctl validates soil records and submits captures to the
// prediction service without running the server.
package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("env file load failed:", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
