package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// ensureModel returns the local path to the ggml artifact for size,
// downloading it into the cache directory on first use. Downloads go through
// a temp file and rename so an interrupted fetch never leaves a partial
// artifact behind. Caller holds e.mu.
func (e *Engine) ensureModel(ctx context.Context, size ModelSize, onProgress ProgressFunc) (string, error) {
	name := fmt.Sprintf("ggml-%s.bin", size)
	path := filepath.Join(e.cfg.CacheDir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(e.cfg.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create model cache: %w", err)
	}

	url := e.cfg.ModelBaseURL + "/" + name
	progress(onProgress, fmt.Sprintf("Downloading model %q (%s)...", size, modelDiskSpace[size]))
	e.log.Info("downloading model", slog.String("size", string(size)), slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build model request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch model: unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(e.cfg.CacheDir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp model file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("finalize model file: %w", err)
	}
	return path, nil
}
