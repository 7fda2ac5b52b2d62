package reconcile

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// trailingID matches the six-digit suffix appended to disambiguate
// filenames, with or without its underscore separator.
var trailingID = regexp.MustCompile(`_?\d{6}$`)

// docExts are the formats that supersede a pdf of the same document.
var docExts = map[string]bool{
	".doc":  true,
	".docx": true,
}

// BaseKey reduces a filename to its duplicate-grouping key: the extension
// and any trailing six-digit counter are stripped, so "ruling_000123.docx"
// and "ruling.pdf" group together.
func BaseKey(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	return trailingID.ReplaceAllString(stem, "")
}

// Report summarizes a reconciliation pass.
type Report struct {
	Removed    int
	BytesFreed int64
}

type variant struct {
	path string
	size int64
	doc  bool
}

// Reconcile walks root and removes every pdf whose document also exists in
// doc or docx form under the same base name. Each removal is logged with
// its full path. Per-file errors are logged and skipped so one bad entry
// does not abort the pass.
func Reconcile(root string) (Report, error) {
	groups := make(map[string][]variant)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".pdf" && !docExts[ext] {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			log.WithError(statErr).Warnf("Skipping unreadable file %s", path)
			return nil
		}
		key := BaseKey(d.Name())
		groups[key] = append(groups[key], variant{path: path, size: info.Size(), doc: docExts[ext]})
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, variants := range groups {
		hasDoc := false
		for _, v := range variants {
			if v.doc {
				hasDoc = true
				break
			}
		}
		if !hasDoc {
			continue
		}
		for _, v := range variants {
			if v.doc {
				continue
			}
			log.Infof("Removing duplicate pdf %s", v.path)
			if removeErr := os.Remove(v.path); removeErr != nil {
				log.WithError(removeErr).Warnf("Failed to remove duplicate %s", v.path)
				continue
			}
			report.Removed++
			report.BytesFreed += v.size
		}
	}

	if report.Removed > 0 {
		log.Infof("Removed %d duplicate pdfs, freed %d bytes", report.Removed, report.BytesFreed)
	}
	return report, nil
}
