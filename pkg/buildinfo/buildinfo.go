// Package buildinfo wires prometheus/common/version into each binary's
// init(), matching the pattern of every teacher main.go.
package buildinfo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
)

// Register sets the build-time version fields and registers the version
// collector under appName. Call once from an init() in each cmd/ main.
func Register(appName, ver, branch, revision string) {
	version.Version = ver
	version.Branch = branch
	version.Revision = revision
	prometheus.MustRegister(version.NewCollector(appName))
}
