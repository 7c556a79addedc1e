package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFprobe reports the ffprobe binary production will execute.
//
// An explicitly configured ffprobe wins. Otherwise an ffprobe that sits next
// to the resolved ffmpeg is preferred, since static ffmpeg builds ship both
// tools in one directory that is often not on PATH; "ffprobe" from PATH is
// the last resort.
func CheckFFprobe(ffmpegCommand, ffprobeCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Measures narration and segment durations",
	}

	if explicit := strings.TrimSpace(ffprobeCommand); explicit != "" {
		return lookup(result, explicit)
	}

	if ffmpeg := strings.TrimSpace(ffmpegCommand); ffmpeg != "" {
		if resolved, err := exec.LookPath(ffmpeg); err == nil {
			candidate := siblingBinary(resolved, "ffprobe")
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				return result
			}
		}
	}
	return lookup(result, "ffprobe")
}

func lookup(result Status, command string) Status {
	if resolved, err := exec.LookPath(command); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}
	result.Command = command
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", command)
	return result
}

func siblingBinary(path, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(path), name)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
