// Package version carries build metadata. Release builds override these
// through -ldflags; a plain `go build` reports a dev binary.
package version

import (
	"runtime"
	"time"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = time.Now().Format(time.RFC3339)
	GoVersion = runtime.Version()
)
