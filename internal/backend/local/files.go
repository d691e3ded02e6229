package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ferryd/ferry/internal/backend"
)

func (b *Backend) ListDir(ctx context.Context, path, user string) ([]backend.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	listing := make([]backend.DirEntry, 0, len(entries))
	for _, e := range entries {
		listing = append(listing, backend.DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return listing, nil
}

func (b *Backend) ReadFile(ctx context.Context, path, user string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (b *Backend) WriteFile(ctx context.Context, path, content, user string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func (b *Backend) DeletePath(ctx context.Context, path, user, session string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("delete %s: %w", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return "", fmt.Errorf("delete %s: %w", path, err)
	}
	return "deleted " + path, nil
}

// DownloadFile copies path into dest (the configured download directory when
// empty) and returns the destination path.
func (b *Backend) DownloadFile(ctx context.Context, path, dest, user, session string) (string, error) {
	if dest == "" {
		dest = filepath.Join(b.cfg.DownloadDir(), filepath.Base(path))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	if err := copyFile(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
