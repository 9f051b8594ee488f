package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		name        string
		goos        string
		distro      string
		procVersion string
		want        Platform
	}{
		{"macos", "darwin", "", "", PlatformMacOS},
		{"windows", "windows", "", "", PlatformWindows},
		{"native linux", "linux", "", "Linux version 6.8.0-45-generic", PlatformLinux},
		{"wsl2 kernel", "linux", "", "Linux version 5.15.153.1-microsoft-standard-WSL2", PlatformWSL2},
		{"wsl1 kernel", "linux", "Ubuntu", "Linux version 4.4.0-19041-Microsoft", PlatformWSL1},
		{"freebsd", "freebsd", "", "", PlatformUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectPlatform(tt.goos, tt.distro, tt.procVersion))
		})
	}
}

func TestDetectIsStable(t *testing.T) {
	assert.Equal(t, Detect(), Detect())
	assert.NotEmpty(t, Detect().String())
}

func TestPlatformString(t *testing.T) {
	assert.Equal(t, "macOS", PlatformMacOS.String())
	assert.Equal(t, "WSL2", PlatformWSL2.String())
	assert.Equal(t, "Unknown", Platform("plan9").String())
}

const sampleMounts = `/dev/sdc / ext4 rw,relatime 0 0
drvfs /mnt/c 9p rw,noatime 0 0
server:/export /home/me/nfs nfs4 rw 0 0
me@box:/srv /home/me/remote fuse.sshfs rw 0 0
/dev/sdd /home/me/nfsish ext4 rw 0 0
`

func TestFsTypeForUsesLongestMount(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/me/.claude/projects", "ext4"},
		{"/mnt/c/Users/me/.claude", "9p"},
		{"/home/me/nfs/.codex/sessions", "nfs4"},
		{"/home/me/nfsish/x", "ext4"},
		{"/home/me/remote", "fuse.sshfs"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, fsTypeFor(sampleMounts, tt.path))
		})
	}
	assert.Equal(t, "", fsTypeFor("", "/x"))
}

func TestFsnotifyWarning(t *testing.T) {
	assert.Empty(t, fsnotifyWarning("ext4"))
	assert.Empty(t, fsnotifyWarning(""))
	assert.Contains(t, fsnotifyWarning("9p"), "WSL2")
	assert.Contains(t, fsnotifyWarning("nfs"), "NFS")
	assert.Contains(t, fsnotifyWarning("smbfs"), "CIFS")
	assert.Contains(t, fsnotifyWarning("fuse.sshfs"), "SSHFS")
}
