package paths

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go-docfetch/internal/models"
)

// maxFilenameLength leaves headroom for the containing path on common
// filesystems.
const maxFilenameLength = 240

var invalidChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", "\"", "_",
	"/", "_", "\\", "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeFilename replaces characters that are invalid in filenames and
// truncates overlong names while preserving the extension.
func SanitizeFilename(name string) string {
	cleaned := strings.TrimSpace(invalidChars.Replace(name))
	if len(cleaned) <= maxFilenameLength {
		return cleaned
	}
	ext := filepath.Ext(cleaned)
	stem := strings.TrimSuffix(cleaned, ext)
	limit := maxFilenameLength - len(ext)
	// Cut on a rune boundary so a multi-byte title never truncates into
	// invalid UTF-8.
	for limit > 0 && !utf8.RuneStart(stem[limit]) {
		limit--
	}
	return stem[:limit] + ext
}

// ResolveFilename returns the final filename for a task: the sanitized base
// name carrying the extension implied by the format kind. A base name that
// already ends in a document extension is kept as-is.
func ResolveFilename(base, format string) string {
	base = SanitizeFilename(base)
	switch strings.ToLower(filepath.Ext(base)) {
	case ".doc", ".docx", ".pdf":
		return base
	}
	if format == models.FormatPDF {
		return base + ".pdf"
	}
	return base + ".docx"
}

// Destination resolves the full destination path for a task.
func Destination(t models.DownloadTask) string {
	return filepath.Join(t.Folder, ResolveFilename(t.Filename, t.Format))
}
