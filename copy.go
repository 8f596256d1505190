package scratchdir

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/scratchdir/internal/logfields"
	"git.home.luguber.info/inful/scratchdir/metrics"
)

var errTargetClosed = errors.New("target handle is closed")

var errNotADirectory = errors.New("source is not a directory")

// copyPair is one unit of traversal work: a source directory and the
// destination directory mirroring it.
type copyPair struct {
	src string
	dst string
}

// Copy replicates the non-symlink contents of source into the directory.
// The handle must still be active; copying into a closed handle is a
// programming error reported as a KindCopy error.
//
// Traversal uses an explicit work list instead of native recursion, so tree
// depth is bounded by memory rather than stack. Per entry (typed by the
// non-following stat os.ReadDir performs):
//
//   - symbolic links are skipped entirely, neither copied nor followed,
//     which also makes cyclic links harmless;
//   - directories are created under the destination at the mirrored
//     relative path and queued;
//   - regular files are copied byte for byte, with no attempt to preserve
//     mode or timestamps;
//   - anything else (device, socket, fifo) is skipped.
//
// Copy may be repeated on the same handle, including with overlapping
// sources: destination directories that already exist are reused and
// existing files are overwritten.
//
// The first I/O error aborts the operation and names the offending path.
// The copy is not transactional: entries written before the failure remain.
// Callers needing all-or-nothing semantics should copy into a fresh Dir and
// commit by rename only on success.
func (d *Dir) Copy(ctx context.Context, source string, opts ...CopyOption) error {
	co := copyOptions{concurrency: 1}
	for _, opt := range opts {
		opt(&co)
	}

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return copyError(d.path, errTargetClosed)
	}

	start := time.Now()
	files, bytes, err := d.copyTree(ctx, source, co)
	d.recorder.AddCopyFiles(files)
	d.recorder.AddCopyBytes(bytes)
	if err != nil {
		d.recorder.ObserveCopyDuration(time.Since(start), metrics.ResultFailed)
		return err
	}
	d.recorder.ObserveCopyDuration(time.Since(start), metrics.ResultSuccess)
	slog.Debug("Copied tree into scratch directory",
		logfields.Source(source),
		logfields.Path(d.path),
		logfields.Files(files),
		logfields.Bytes(bytes),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000.0))
	return nil
}

func (d *Dir) copyTree(ctx context.Context, source string, co copyOptions) (files, bytes int64, err error) {
	info, err := os.Lstat(source)
	if err != nil {
		return 0, 0, copyError(source, err)
	}
	// Lstat keeps a symlink-to-directory root from sneaking past the
	// no-follow rule.
	if !info.IsDir() {
		return 0, 0, copyError(source, errNotADirectory)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(co.concurrency)
	var copiedFiles, copiedBytes atomic.Int64

	var walkErr error
	work := []copyPair{{src: source, dst: d.path}}
walk:
	for len(work) > 0 {
		select {
		case <-gctx.Done():
			break walk
		default:
		}

		pair := work[len(work)-1]
		work = work[:len(work)-1]

		entries, err := os.ReadDir(pair.src)
		if err != nil {
			walkErr = copyError(pair.src, err)
			break walk
		}
		for _, entry := range entries {
			srcPath := filepath.Join(pair.src, entry.Name())
			dstPath := filepath.Join(pair.dst, entry.Name())
			t := entry.Type()
			switch {
			case t&fs.ModeSymlink != 0:
				// Never followed, never replicated.
			case t.IsDir():
				if err := os.Mkdir(dstPath, dirMode); err != nil {
					// A repeated or overlapping copy finds its directories
					// already mirrored; anything else occupying the path is
					// a genuine conflict.
					info, statErr := os.Lstat(dstPath)
					if !errors.Is(err, fs.ErrExist) || statErr != nil || !info.IsDir() {
						walkErr = copyError(srcPath, err)
						break walk
					}
				}
				work = append(work, copyPair{src: srcPath, dst: dstPath})
			case t.IsRegular():
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}
					n, err := copyFileContents(srcPath, dstPath)
					if err != nil {
						return copyError(srcPath, err)
					}
					copiedFiles.Add(1)
					copiedBytes.Add(n)
					return nil
				})
			default:
				// Devices, sockets and fifos are skipped, not errors.
			}
		}
	}

	err = g.Wait()
	if walkErr != nil {
		err = walkErr
	}
	if err == nil && ctx.Err() != nil {
		err = copyError(source, ctx.Err())
	}
	return copiedFiles.Load(), copiedBytes.Load(), err
}

// copyFileContents copies one regular file verbatim. Permissions and
// timestamps are deliberately not preserved.
func copyFileContents(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
