// Package main is the entrypoint for adpfd, the adaptive performance hint
// session daemon.
package main

import "github.com/yaap/hardware-google-pixel/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
