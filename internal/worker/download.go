package worker

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

const (
	modeExecutable = 0o755
	modeRegular    = 0o644
)

// download issues GET url and unpacks the gzip+tar worktree stream it
// returns into destDir. The HTTP body reader and the blocking tar/gzip
// unpacker run as two goroutines joined by an errgroup.Group; the
// io.Pipe between them bounds the producer to one buffer's worth ahead
// of the consumer, since a pipe write blocks until the unpacker has
// consumed the previous one.
func download(ctx context.Context, client *http.Client, url, destDir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: server returned %s", url, resp.Status)
	}

	pr, pw := io.Pipe()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		_, copyErr := io.Copy(pw, resp.Body)
		if copyErr != nil {
			_ = pw.CloseWithError(copyErr)

			return fmt.Errorf("read download body: %w", copyErr)
		}

		return pw.Close()
	})

	group.Go(func() error {
		if err := unpackTarGz(gctx, pr, destDir); err != nil {
			// Unblock the body copier, which would otherwise wait forever
			// on a pipe nobody reads.
			_ = pr.CloseWithError(err)

			return err
		}

		// Drain anything left after the tar end marker so the copier's
		// last write completes.
		_, _ = io.Copy(io.Discard, pr)

		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	return nil
}

// unpackTarGz extracts a gzip+tar stream into destDir, mirroring the mode
// rules StreamWorktree uses to produce it: executable blobs at 0o755,
// everything else at 0o644, symlinks restored by target.
func unpackTarGz(ctx context.Context, r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("read tar header: %w", err)
		}

		target := filepath.Join(destDir, hdr.Name)

		if err := extractEntry(tr, hdr, target); err != nil {
			return err
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, target string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, os.FileMode(modeExecutable))

	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), os.FileMode(modeExecutable)); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", hdr.Name, err)
		}

		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fmt.Errorf("create symlink %s: %w", hdr.Name, err)
		}

		return nil

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), os.FileMode(modeExecutable)); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", hdr.Name, err)
		}

		mode := os.FileMode(modeRegular)
		if hdr.Mode&0o111 != 0 {
			mode = os.FileMode(modeExecutable)
		}

		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
		if err != nil {
			return fmt.Errorf("create file %s: %w", hdr.Name, err)
		}
		defer f.Close()

		if _, err := io.Copy(f, tr); err != nil {
			return fmt.Errorf("write file %s: %w", hdr.Name, err)
		}

		return nil

	default:
		return nil
	}
}
