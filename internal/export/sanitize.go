package export

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// SanitizeName keeps names safe for file systems and NLE project panels.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
		case isAllowedNameRune(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	return strings.ContainsRune(" -_.,()", r)
}

// Stem is the sanitized base name of path without its extension; artifacts
// derived from a recording are named after it.
func Stem(path string) string {
	base := filepath.Base(strings.ReplaceAll(path, `\`, "/"))
	stem := SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)), 120)
	if stem == "" || stem == "." {
		return "recording"
	}
	return stem
}

// ArtifactPath joins dir with the recording stem and suffix, e.g.
// "<dir>/<stem>_AI_Cuts.xml".
func ArtifactPath(dir, source, suffix string) string {
	return filepath.Join(dir, Stem(source)+suffix)
}

// FileURL converts a local or Windows path into a file:// URL.
func FileURL(path string) string {
	p := strings.ReplaceAll(path, `\`, "/")
	switch {
	case strings.HasPrefix(p, "/"):
	case len(p) >= 2 && p[1] == ':':
		p = "/" + p
	default:
		if abs, err := filepath.Abs(path); err == nil {
			p = filepath.ToSlash(abs)
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output_dir is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("output_dir cannot contain path traversal")
		}
	}

	if filepath.Clean(dir) != dir {
		return fmt.Errorf("output_dir must be clean path")
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("output_dir does not exist")
	case err != nil:
		return fmt.Errorf("invalid output_dir: %w", err)
	case !info.IsDir():
		return fmt.Errorf("output_dir is not a directory")
	}
	return nil
}
