package transcribe

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
)

const defaultModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// KnownModels lists the recognized whisper model identifiers.
func KnownModels() []string {
	return []string{"tiny", "base", "small", "medium", "large-v3"}
}

// IsKnownModel reports whether id names a recognized model.
func IsKnownModel(id string) bool {
	for _, known := range KnownModels() {
		if known == id {
			return true
		}
	}
	return false
}

// ModelStore resolves model identifiers to local ggml artifacts, downloading
// each at most once into the cache directory.
type ModelStore struct {
	dir     string
	baseURL string
	client  *http.Client
}

func NewModelStore(dir, baseURL string) *ModelStore {
	if dir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			cache = os.TempDir()
		}
		dir = filepath.Join(cache, "voicesnap", "models")
	}
	if baseURL == "" {
		baseURL = defaultModelBaseURL
	}
	return &ModelStore{dir: dir, baseURL: baseURL, client: http.DefaultClient}
}

// Fetch returns the local path for a model, downloading it on first use.
func (s *ModelStore) Fetch(ctx context.Context, modelID string) (string, error) {
	path := filepath.Join(s.dir, modelFileName(modelID))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create model cache dir: %w", err)
	}

	url := s.baseURL + "/" + modelFileName(modelID)
	log.Printf("transcribe: downloading model %q from %s", modelID, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download model %q: %w", modelID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download model %q: unexpected status %s", modelID, resp.Status)
	}

	// Download to a temp name, then rename, so a partial fetch never looks
	// like a valid artifact.
	tmp, err := os.CreateTemp(s.dir, modelFileName(modelID)+".partial-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download model %q: %w", modelID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	log.Printf("transcribe: model %q cached at %s", modelID, path)
	return path, nil
}

func modelFileName(modelID string) string {
	return "ggml-" + modelID + ".bin"
}
