package gitlib

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
)

// File permission modes used for tar entries, per the tar/gzip stream
// format: executable blobs get 0o755, other blobs and symlinks get
// 0o644, and directories get 0o755.
const (
	modeExecutable = 0o755
	modeRegular    = 0o644
	modeDir        = 0o755
)

// StreamWorktree writes the full worktree of commit as a GNU tar archive
// wrapped in a fast gzip stream. Symlink entries carry their target as
// read from the blob contents;
// directories and submodule gitlinks become zero-size tar directory
// entries.
func (r *Repository) StreamWorktree(w io.Writer, commit *Commit) error {
	tree, err := commit.Tree()
	if err != nil {
		return err
	}
	defer tree.Free()

	entries, err := tree.WalkEntries()
	if err != nil {
		return err
	}

	gz, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return fmt.Errorf("create gzip writer: %w", err)
	}

	tw := tar.NewWriter(gz)

	for _, entry := range entries {
		if writeErr := r.writeTarEntry(tw, entry); writeErr != nil {
			_ = tw.Close()
			_ = gz.Close()

			return writeErr
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}

	return nil
}

func (r *Repository) writeTarEntry(tw *tar.Writer, entry Entry) error {
	switch entry.Kind {
	case EntryDir, EntrySubmodule:
		hdr := &tar.Header{
			Name:     entry.Path + "/",
			Typeflag: tar.TypeDir,
			Mode:     modeDir,
		}

		return writeHeader(tw, hdr)

	case EntrySymlink:
		target, err := r.LookupBlobBytes(entry.Hash)
		if err != nil {
			return err
		}

		hdr := &tar.Header{
			Name:     entry.Path,
			Typeflag: tar.TypeSymlink,
			Linkname: string(target),
			Mode:     modeRegular,
		}

		return writeHeader(tw, hdr)

	default:
		contents, err := r.LookupBlobBytes(entry.Hash)
		if err != nil {
			return err
		}

		mode := int64(modeRegular)
		if entry.Kind == EntryExecutable {
			mode = modeExecutable
		}

		hdr := &tar.Header{
			Name:     entry.Path,
			Typeflag: tar.TypeReg,
			Mode:     mode,
			Size:     int64(len(contents)),
		}

		if err := writeHeader(tw, hdr); err != nil {
			return err
		}

		if _, err := tw.Write(contents); err != nil {
			return fmt.Errorf("write tar body for %s: %w", entry.Path, err)
		}

		return nil
	}
}

func writeHeader(tw *tar.Writer, hdr *tar.Header) error {
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header for %s: %w", hdr.Name, err)
	}

	return nil
}
