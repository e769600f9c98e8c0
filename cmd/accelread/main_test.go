package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeHead(t *testing.T, name string, head []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, head, 0o644))
	return path
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		file string
		head []byte
		want string
	}{
		{"cwa signature", "x.dat", []byte("MD\x00\x00"), "cwa"},
		{"zip signature", "x.dat", []byte("PK\x03\x04rest"), "gt3x"},
		{"fit signature", "x.dat", []byte{14, 0x20, 0, 0, 0, 0, 0, 0, '.', 'F', 'I', 'T', 0, 0}, "fit"},
		{"bin preamble", "x.dat", []byte("Device Identity\n"), "bin"},
		{"cwa extension", "x.cwa", []byte("????"), "cwa"},
		{"gt3x extension", "x.gt3x", []byte("????"), "gt3x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := detectFormat(writeHead(t, tc.file, tc.head))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := detectFormat(writeHead(t, "x.dat", []byte("????")))
	require.Error(t, err)
}

func TestLoadWindowConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windows.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_days = 10

[[window]]
base_hour = 0
period_hours = 24

[[window]]
base_hour = 12
period_hours = 12
`), 0o644))

	cfg, err := loadWindowConfig(path, 0, 24, 25, 200)
	require.NoError(t, err)
	require.Len(t, cfg.Windows, 2)
	require.Equal(t, 12, cfg.Windows[1].BaseHour)
	require.Equal(t, 10, cfg.MaxDays)
	require.Equal(t, 200, cfg.MaxOccurrences)
}

func TestLoadWindowConfigFromFlags(t *testing.T) {
	cfg, err := loadWindowConfig("", 8, 24, 25, 200)
	require.NoError(t, err)
	require.Len(t, cfg.Windows, 1)
	require.Equal(t, 8, cfg.Windows[0].BaseHour)

	_, err = loadWindowConfig("", 25, 24, 25, 200)
	require.Error(t, err)
}
