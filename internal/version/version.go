package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Version values are set at build time using -ldflags.
var Version = "dev"
var Major = "0"
var Minor = "0"
var Patch = "0"
var Built = ""
var GitCommit = ""

type VersionInfo struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version"`
}

func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Major:     parseInt(Major),
		Minor:     parseInt(Minor),
		Patch:     parseInt(Patch),
		Built:     Built,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
}

// String renders the version the way vigild --version prints it.
func (info VersionInfo) String() string {
	out := fmt.Sprintf("vigild %s", info.Version)
	var details []string
	if info.Built != "" {
		details = append(details, "built "+info.Built)
	}
	if info.GitCommit != "" {
		details = append(details, "commit "+info.GitCommit)
	}
	details = append(details, info.GoVersion)
	return fmt.Sprintf("%s (%s)", out, strings.Join(details, ", "))
}

func parseInt(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
