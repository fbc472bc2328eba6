package assignment

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxFileSize caps uploaded submission files at 50MB.
const MaxFileSize = 50 << 20

var filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

var allowedExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".txt": {}, ".rtf": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {},
	".zip": {}, ".rar": {}, ".7z": {},
	".py": {}, ".js": {}, ".html": {}, ".css": {}, ".java": {}, ".cpp": {}, ".c": {},
	".xlsx": {}, ".xls": {}, ".csv": {},
	".ppt": {}, ".pptx": {},
	".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {},
	".mp3": {}, ".wav": {}, ".ogg": {},
}

// ValidateFile checks a submission upload before it is stored. An empty
// filename means no file was attached, which is always fine.
func ValidateFile(name string, size int64) error {
	if name == "" {
		return nil
	}
	if size > MaxFileSize {
		return fmt.Errorf("file size exceeds %dMB limit", MaxFileSize/(1<<20))
	}
	if !filenamePattern.MatchString(name) {
		return fmt.Errorf("filename contains invalid characters")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		return fmt.Errorf("file type %q not allowed", ext)
	}
	return nil
}
