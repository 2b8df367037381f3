package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinDir(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "safe")
	unsafe := filepath.Join(tmp, "unsafe")
	require.NoError(t, os.MkdirAll(safe, 0o755))
	require.NoError(t, os.MkdirAll(unsafe, 0o755))
	link := filepath.Join(safe, "captures")
	require.NoError(t, os.Symlink(unsafe, link))

	tests := []struct {
		name    string
		path    string
		dir     string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safe, "radar.png"), safe, false},
		{"nested new file", filepath.Join(safe, "a", "b", "radar.png"), safe, false},
		{"dir itself", safe, safe, false},
		{"dot dot", filepath.Join(safe, "..", "radar.png"), safe, true},
		{"absolute elsewhere", "/etc/passwd", safe, true},
		{"through symlink, new file", filepath.Join(link, "radar.png"), safe, true},
		{"symlink itself", link, safe, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDir(tt.path, tt.dir)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPathEscape)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithinAnyDir(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()

	assert.NoError(t, WithinAnyDir(filepath.Join(b, "x.pcap"), []string{a, b}))
	assert.ErrorIs(t, WithinAnyDir("/etc/passwd", []string{a, b}), ErrPathEscape)
	assert.ErrorContains(t, WithinAnyDir(filepath.Join(a, "x"), nil), "no allowed directories")
}

func TestValidateOutputPath(t *testing.T) {
	assert.NoError(t, ValidateOutputPath(filepath.Join(os.TempDir(), "radar.png")))
	assert.NoError(t, ValidateOutputPath("radar.png"))
	assert.ErrorIs(t, ValidateOutputPath("/etc/radar.png"), ErrPathEscape)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"canpilot.db", "canpilot.db"},
		{"drive 2026/03/01", "drive_2026_03_01"},
		{"../../etc/passwd", "etc_passwd"},
		{"a\x00\x01b", "a_b"},
		{"", "unknown"},
		{"...", "unknown"},
		{strings.Repeat("x", 300), strings.Repeat("x", 128)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}
