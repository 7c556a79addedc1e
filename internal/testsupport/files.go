package testsupport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Placeholder media sizes used by the fake providers.
const (
	NarrationFixtureBytes = 4 * 1024
	ClipFixtureBytes      = 16 * 1024
)

var mediaSignatures = map[string][]byte{
	".mp3": []byte("ID3\x04\x00\x00\x00\x00\x00\x00"),
	".mp4": []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"),
	".m4a": []byte("\x00\x00\x00\x18ftypM4A \x00\x00\x00\x00M4A isom"),
	".wav": []byte("RIFF\x00\x00\x00\x00WAVEfmt "),
}

// WriteMediaFile writes a placeholder media file of size bytes at path,
// creating parent directories. Known extensions start with their container
// signature; the rest is padding. It returns an error rather than failing a
// test so provider fakes can return it directly.
func WriteMediaFile(path string, size int64) error {
	header := mediaSignatures[strings.ToLower(filepath.Ext(path))]
	if size < int64(len(header)) {
		size = int64(len(header))
	}
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	data := make([]byte, size)
	copy(data, header)
	copy(data[len(header):], bytes.Repeat([]byte{0x42}, int(size)-len(header)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
