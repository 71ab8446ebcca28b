// Package copier mirrors build output to the backup location a target
// process can safely execute from. Every invocation performs a full walk
// and full overwrite; there is no incremental diffing.
package copier

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/binwatch/binwatch/internal/plan"
)

// Copier copies a file or a directory tree per a backup plan.
type Copier struct {
	logger *slog.Logger
}

// New creates a Copier.
func New(logger *slog.Logger) *Copier {
	return &Copier{logger: logger}
}

// Copy mirrors p.Source to p.Dest according to p.Kind.
// Cancellation is checked between directory entries; an aborted copy
// returns the context error, not a copy failure.
func (c *Copier) Copy(ctx context.Context, p *plan.Plan) error {
	if p.Kind == plan.KindDirectory {
		return c.copyTree(ctx, p.Source, p.Dest)
	}
	return c.copyFile(p.Source, p.Dest)
}

// copyFile copies a single file byte-for-byte, overwriting the destination.
// A missing source is success: there is nothing to back up yet.
func (c *Copier) copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Debug("copy source missing, nothing to back up", "path", src)
			return nil
		}
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// copyTree recursively mirrors a directory. Regular files are overwritten,
// symbolic links are recreated pointing at the resolved target of the
// source link, and any other entry kind is skipped with a warning.
func (c *Copier) copyTree(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Debug("copy source missing, nothing to back up", "path", src)
			return nil
		}
		return err
	}

	for _, entry := range entries {
		// Cancellation checkpoint between entries.
		if err := ctx.Err(); err != nil {
			return err
		}

		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		switch {
		case entry.IsDir():
			if err := c.copyTree(ctx, srcPath, dstPath); err != nil {
				return err
			}

		case entry.Type()&os.ModeSymlink != 0:
			if err := c.copyLink(srcPath, dstPath); err != nil {
				return err
			}

		case entry.Type().IsRegular():
			if err := c.copyFile(srcPath, dstPath); err != nil {
				return err
			}

		default:
			// Sockets, devices, fifos and friends have no place in build output.
			c.logger.Warn("skipping unsupported entry",
				"path", srcPath,
				"mode", entry.Type().String())
		}
	}

	return nil
}

// copyLink recreates a symlink at dst pointing at the resolved target of
// src, not the verbatim (possibly relative) link text.
func (c *Copier) copyLink(src, dst string) error {
	target, err := filepath.EvalSymlinks(src)
	if err != nil {
		c.logger.Warn("skipping unresolvable symlink", "path", src, "error", err)
		return nil
	}

	// Replace any previous link so repeated copies stay idempotent.
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return err
		}
	}

	return os.Symlink(target, dst)
}
