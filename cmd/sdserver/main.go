package main

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	loadEnvFiles()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnvFiles loads SDSERVER_* overrides from the first env files found.
// Variables already set in the environment win.
func loadEnvFiles() {
	files := []string{".env", "sdserver.env"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".config", "sdserver.env"))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}
