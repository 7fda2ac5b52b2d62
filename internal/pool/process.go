package pool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go-docfetch/internal/models"

	log "github.com/sirupsen/logrus"
)

// ProcessExecutor hands each chunk to a re-executed copy of this binary
// running the hidden worker command. The chunk travels as a JSON task
// file; the child streams one TaskResult JSON line per task on stdout.
// Keeping chunk state in a file rather than argv avoids command-line
// length limits on large chunks.
type ProcessExecutor struct {
	Binary   string   // path to this executable
	BaseArgs []string // worker subcommand plus shared flags
	ChunkDir string   // where chunk task files are written
}

// Run writes the chunk file, launches the worker, and forwards every
// result line to report. Tasks the child never reported (a crash mid
// chunk) are reported as failures so the ledger still covers the whole
// chunk.
func (e *ProcessExecutor) Run(ctx context.Context, chunk []models.DownloadTask, report ReportFunc) error {
	chunkFile, err := e.writeChunkFile(chunk)
	if err != nil {
		return err
	}
	defer func() {
		if removeErr := os.Remove(chunkFile); removeErr != nil && !os.IsNotExist(removeErr) {
			log.WithError(removeErr).Warnf("Failed to remove chunk file %s", chunkFile)
		}
	}()

	args := append(append([]string{}, e.BaseArgs...), "--tasks", chunkFile)
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe for worker: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting worker process: %w", err)
	}
	log.Debugf("Worker pid %d handling %d tasks from %s", cmd.Process.Pid, len(chunk), chunkFile)

	reported := make(map[string]bool, len(chunk))
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var result models.TaskResult
		if err := json.Unmarshal(line, &result); err != nil {
			log.WithError(err).Warnf("Discarding malformed worker output line: %s", string(line))
			continue
		}
		reported[result.URL] = true
		report(result)
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	if waitErr != nil {
		log.WithError(waitErr).Errorf("Worker pid %d exited abnormally", cmd.Process.Pid)
	}
	if scanErr != nil {
		log.WithError(scanErr).Errorf("Error reading worker pid %d output", cmd.Process.Pid)
	}

	// Cover tasks lost to a worker crash.
	for _, task := range chunk {
		if reported[task.URL] {
			continue
		}
		reason := "worker process exited before reporting"
		if waitErr != nil {
			reason = fmt.Sprintf("worker process failed: %v", waitErr)
		}
		report(models.TaskResult{URL: task.URL, Error: reason})
	}
	return nil
}

func (e *ProcessExecutor) writeChunkFile(chunk []models.DownloadTask) (string, error) {
	if err := os.MkdirAll(e.ChunkDir, 0o750); err != nil {
		return "", fmt.Errorf("creating chunk directory %s: %w", e.ChunkDir, err)
	}
	f, err := os.CreateTemp(e.ChunkDir, "chunk-*.json")
	if err != nil {
		return "", fmt.Errorf("creating chunk file: %w", err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(chunk); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing chunk file %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing chunk file %s: %w", f.Name(), err)
	}
	return f.Name(), nil
}

// ReadChunkFile loads the task list a worker was handed. Used by the
// worker command.
func ReadChunkFile(path string) ([]models.DownloadTask, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading chunk file %s: %w", path, err)
	}
	var tasks []models.DownloadTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parsing chunk file %s: %w", path, err)
	}
	return tasks, nil
}
