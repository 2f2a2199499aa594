package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/reelforge/reelforge/cmd/reelforge/cmd"
)

// Version information - set by goreleaser at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Collaborator API keys commonly live in a local .env file.
	_ = godotenv.Load()

	cmd.SetVersion(version, commit, date)

	code := cmd.Execute()
	os.Exit(code)
}
