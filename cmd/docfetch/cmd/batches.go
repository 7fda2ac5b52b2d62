package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go-docfetch/internal/ledger"
	"go-docfetch/internal/models"
)

// loadBatchTasks reads one batch task file: a JSON array of download
// tasks. Relative folders are resolved under savePath so batch files can
// stay portable.
func loadBatchTasks(path, savePath string) ([]models.DownloadTask, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading batch file %s: %w", path, err)
	}
	var tasks []models.DownloadTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parsing batch file %s: %w", path, err)
	}
	for i := range tasks {
		if tasks[i].URL == "" {
			return nil, fmt.Errorf("batch file %s: task %d has no url", path, i)
		}
		if !filepath.IsAbs(tasks[i].Folder) {
			tasks[i].Folder = filepath.Join(savePath, tasks[i].Folder)
		}
	}
	return tasks, nil
}

// resolveBatchFiles returns the batch files to process: explicit args as
// given, otherwise every .json in batchDir that is not a progress ledger.
func resolveBatchFiles(args []string, batchDir string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	entries, err := os.ReadDir(batchDir)
	if err != nil {
		return nil, fmt.Errorf("reading batch directory %s: %w", batchDir, err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if strings.HasSuffix(name, ledger.FileSuffix) {
			continue
		}
		files = append(files, filepath.Join(batchDir, name))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no batch files found in %s", batchDir)
	}
	return files, nil
}
