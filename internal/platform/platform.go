// Package platform detects the host environment where it changes how
// recall talks to the clipboard or watches files.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform is the detected host.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform. The result is cached.
func Detect() Platform {
	detectOnce.Do(func() {
		detected = detectPlatform(runtime.GOOS, os.Getenv("WSL_DISTRO_NAME"), readProcVersion())
	})
	return detected
}

func readProcVersion() string {
	b, err := os.ReadFile("/proc/version")
	if err != nil {
		return ""
	}
	return string(b)
}

func detectPlatform(goos, wslDistro, procVersion string) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		if wslDistro == "" && !strings.Contains(strings.ToLower(procVersion), "microsoft") {
			return PlatformLinux
		}
		return detectWSLVersion(procVersion)
	default:
		return PlatformUnknown
	}
}

// detectWSLVersion tells WSL2 ("microsoft-standard" kernels) from WSL1.
func detectWSLVersion(procVersion string) Platform {
	if strings.Contains(procVersion, "microsoft-standard") {
		return PlatformWSL2
	}
	if strings.Contains(procVersion, "Microsoft") {
		return PlatformWSL1
	}
	if _, err := os.Stat("/run/WSL"); err == nil {
		return PlatformWSL2
	}
	return PlatformWSL1
}

// IsWSL reports whether recall runs under either WSL version.
func IsWSL() bool {
	p := Detect()
	return p == PlatformWSL1 || p == PlatformWSL2
}

func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// CheckFsnotifySupport returns a warning when path lives on a filesystem
// where change notifications are missing or unreliable (9p, NFS, CIFS,
// SSHFS), or "" when watching should work.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	return fsnotifyWarning(fsTypeFor(string(mounts), abs))
}

// fsTypeFor finds the filesystem type of the longest mount point containing
// path in /proc/mounts content.
func fsTypeFor(mounts, path string) string {
	var mountPoint, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mp := fields[1]
		if !within(path, mp) || len(mp) <= len(mountPoint) {
			continue
		}
		mountPoint, fsType = mp, fields[2]
	}
	return fsType
}

func within(path, dir string) bool {
	if dir == "/" || path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+"/")
}

func fsnotifyWarning(fsType string) string {
	const polling = "; polling for new sessions instead of watching"
	switch {
	case fsType == "9p":
		return "sessions are on a 9p mount (WSL2 Windows filesystem)" + polling
	case fsType == "nfs" || fsType == "nfs4":
		return "sessions are on an NFS mount" + polling
	case fsType == "cifs" || fsType == "smbfs":
		return "sessions are on a CIFS/SMB mount" + polling
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "sessions are on an SSHFS mount" + polling
	}
	return ""
}
