package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// sanitizeFilename strips path separators and other hostile characters from
// a client-supplied file name, keeping only the base name.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.TrimLeft(b.String(), ".")
	if cleaned == "" {
		cleaned = "upload"
	}
	return cleaned
}

// UploadedPath returns where an upload named name for user resides.
func (b *Backend) UploadedPath(user, name string) string {
	return filepath.Join(b.cfg.UploadDir(user), sanitizeFilename(name))
}

// UploadDocument copies the file at path into the user's upload directory
// and returns the stored path.
func (b *Backend) UploadDocument(ctx context.Context, path, user, session string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read upload source %s: %w", path, err)
	}
	return b.UploadData(ctx, data, filepath.Base(path), user, session)
}

// UploadData stores raw bytes under name in the user's upload directory and
// returns the stored path.
func (b *Backend) UploadData(ctx context.Context, data []byte, name, user, session string) (string, error) {
	if err := b.store.TouchSession(user, session); err != nil {
		return "", err
	}
	dir := b.cfg.UploadDir(user)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	dest := filepath.Join(dir, sanitizeFilename(name))
	if err := os.WriteFile(dest, data, 0640); err != nil {
		return "", fmt.Errorf("store upload %s: %w", dest, err)
	}
	if _, err := b.store.AddDocument(user, sanitizeFilename(name), dest, int64(len(data))); err != nil {
		return "", err
	}
	return dest, nil
}

// Transcribe runs the configured transcriber on localPath, stores the
// produced transcript as a document, and returns its stored location. The
// transcriber prints the transcript file path on stdout; empty output means
// nothing was produced.
func (b *Backend) Transcribe(ctx context.Context, localPath, user, session string) (string, error) {
	if len(b.cfg.Transcriber) == 0 {
		return "", fmt.Errorf("no transcriber configured")
	}

	args := make([]string, 0, len(b.cfg.Transcriber))
	args = append(args, b.cfg.Transcriber[1:]...)
	args = append(args, localPath)
	cmd := exec.CommandContext(ctx, b.cfg.Transcriber[0], args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("transcriber %s: %w", b.cfg.Transcriber[0], err)
	}

	transcriptPath := strings.TrimSpace(string(out))
	if transcriptPath == "" {
		return "", nil
	}
	return b.UploadDocument(ctx, transcriptPath, user, session)
}
