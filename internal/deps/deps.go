// Package deps reports whether the external programs QuickView shells out to
// are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"quickview/internal/config"
)

// Requirement defines an external binary QuickView relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries the acquisition stage runs.
func Requirements(cfg *config.Config) []Requirement {
	ytdlp, ffmpeg := "yt-dlp", "ffmpeg"
	if cfg != nil {
		ytdlp = cfg.Acquisition.YtDlpBinary
		ffmpeg = cfg.Acquisition.FFmpegBinary
	}
	return []Requirement{
		{
			Name:        "yt-dlp",
			Command:     ytdlp,
			Description: "Required to download video audio",
		},
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Required to transcode audio for speech recognition",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing returns the required (non-optional) dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
