package main

// Overridden at build time via -ldflags, e.g.:
//   go build -ldflags "-X main.Version=1.2.3 -X main.GitInfo=$(git describe)"
var (
	Version = "dev"
	GitInfo = "unknown"
)
