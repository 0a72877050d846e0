package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
)

var videoExt = map[string]bool{".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".webm": true, ".m4v": true, ".mpg": true, ".mpeg": true}

// FileExists check if file exists
func FileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// SupportVideoExt checks if video ext is supported
func SupportVideoExt(ext string) bool {
	return videoExt[ext]
}

// MakeValidateFileName drops dirs from fileName, replaces spaces, lowercases ext
// and prefixes the name with ID dir
func MakeValidateFileName(ID, fileName string) (string, error) {
	base := filepath.Base(filepath.Clean(strings.ReplaceAll(fileName, "\\", "/")))
	if base == "." || base == "/" || base == ".." || base == "" {
		return "", fmt.Errorf("wrong file name '%s'", fileName)
	}
	ext := filepath.Ext(base)
	base = strings.ReplaceAll(strings.TrimSuffix(base, ext), " ", "_") + strings.ToLower(ext)
	if ID == "" {
		return base, nil
	}
	return ID + "/" + base, nil
}

// CopyToTemp saves reader content into a new temp file, returns the file name
func CopyToTemp(dir, pattern string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("can't create temp file: %w", err)
	}
	defer f.Close()
	n, err := io.Copy(f, r)
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("can't write temp file: %w", err)
	}
	goapp.Log.Debug().Str("file", f.Name()).Int64("bytes", n).Msg("saved temp")
	return f.Name(), nil
}

// RemoveFile deletes file, logs on failure
func RemoveFile(name string) {
	if name == "" {
		return
	}
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		goapp.Log.Warn().Err(err).Str("file", name).Msg("can't remove")
		return
	}
	goapp.Log.Debug().Str("file", name).Msg("removed")
}
