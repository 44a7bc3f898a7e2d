package installer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/crypto/blake2b"

	"cookia/internal/fsutil"
	"cookia/internal/logging"
)

const (
	// ModelsRoot is the asset directory holding one subtree per model id
	ModelsRoot = "models"

	weightsDir  = "mlc-llm/weights"
	receiptsDir = "mlc-llm/receipts"

	copyBufferSize = 128 * 1024
)

// Installer mirrors models/<id> from a read-only asset tree into the
// application files root.
type Installer struct {
	assets    fs.FS
	filesRoot string
	logger    *logging.Logger
}

// New creates an installer reading from assets and writing below filesRoot.
func New(assets fs.FS, filesRoot string, logger *logging.Logger) *Installer {
	return &Installer{
		assets:    assets,
		filesRoot: filesRoot,
		logger:    logger,
	}
}

// Destination returns where modelID is installed. The mapping is pure and
// does not check modelID; every operation that touches the path does.
func (i *Installer) Destination(modelID string) string {
	return filepath.Join(i.filesRoot, filepath.FromSlash(weightsDir), modelID)
}

func (i *Installer) receiptPath(modelID string) string {
	return filepath.Join(i.filesRoot, filepath.FromSlash(receiptsDir), modelID+".json")
}

// InstallIfNeeded copies the model's asset tree to its destination unless the
// destination already has content, in which case it returns immediately
// without reporting progress. onProgress is called on the calling goroutine
// after every copied file.
//
// A non-empty destination left by an interrupted run counts as installed;
// use Verify or Remove to recover from that.
func (i *Installer) InstallIfNeeded(ctx context.Context, modelID string, onProgress func(Progress)) (string, error) {
	dst := i.Destination(modelID)
	if err := ValidateModelID(modelID); err != nil {
		return "", &IOError{Op: "install", Path: dst, Err: err}
	}

	populated, err := fsutil.DirHasEntries(dst)
	if err != nil {
		return "", &IOError{Op: "stat", Path: dst, Err: err}
	}
	if populated {
		i.logger.Info("install.skipped", "Model already installed", map[string]interface{}{
			"model": modelID,
			"path":  dst,
		})
		return dst, nil
	}

	srcRoot := path.Join(ModelsRoot, modelID)
	leaves, err := i.scan(srcRoot)
	if err != nil {
		return "", err
	}
	total := len(leaves)

	i.logger.Info("install.started", "Copying model assets", map[string]interface{}{
		"model": modelID,
		"files": total,
		"path":  dst,
	})

	if err := fsutil.EnsureDirectory(dst); err != nil {
		return "", &IOError{Op: "mkdir", Path: dst, Err: err}
	}

	receipt := Receipt{
		ModelID: modelID,
		Files:   make(map[string]string, total),
	}
	buf := make([]byte, copyBufferSize)
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create hasher: %w", err)
	}

	for n, rel := range leaves {
		if err := ctx.Err(); err != nil {
			return "", &IOError{Op: "copy", Path: rel, Err: err}
		}

		written, err := i.copyLeaf(path.Join(srcRoot, rel), filepath.Join(dst, filepath.FromSlash(rel)), buf, hasher)
		if err != nil {
			i.logger.Error("install.copy.failed", "Failed to copy asset", map[string]interface{}{
				"model":  modelID,
				"file":   rel,
				"copied": n,
				"error":  err.Error(),
			})
			return "", err
		}

		receipt.Files[rel] = hex.EncodeToString(hasher.Sum(nil))
		receipt.TotalBytes += written

		if onProgress != nil {
			onProgress(Progress{TotalFiles: total, CopiedFiles: n + 1})
		}
	}

	receipt.InstalledAt = time.Now().UTC()
	if err := i.saveReceipt(&receipt); err != nil {
		i.logger.Warn("install.receipt.failed", "Failed to write install receipt", map[string]interface{}{
			"model": modelID,
			"error": err.Error(),
		})
	}

	i.logger.Info("install.completed", "Model installed", map[string]interface{}{
		"model": modelID,
		"files": total,
		"bytes": receipt.TotalBytes,
		"path":  dst,
	})

	return dst, nil
}

// scan lists every leaf below root as a path relative to root, in
// lexicographic order at each level. The same list drives counting and
// copying so both phases see one traversal order.
func (i *Installer) scan(root string) ([]string, error) {
	info, err := fs.Stat(i.assets, root)
	if err != nil {
		return nil, &IOError{Op: "read", Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &IOError{Op: "read", Path: root, Err: fmt.Errorf("not a directory")}
	}

	var leaves []string
	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		entries, err := fs.ReadDir(i.assets, dir)
		if err != nil {
			return &IOError{Op: "read", Path: dir, Err: err}
		}
		for _, entry := range entries {
			child := path.Join(dir, entry.Name())
			childRel := path.Join(rel, entry.Name())

			isDir, err := i.isDir(child, entry)
			if err != nil {
				return &IOError{Op: "read", Path: child, Err: err}
			}
			if isDir {
				if err := walk(child, childRel); err != nil {
					return err
				}
				continue
			}
			leaves = append(leaves, childRel)
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return leaves, nil
}

func (i *Installer) isDir(name string, entry fs.DirEntry) (bool, error) {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir(), nil
	}
	info, err := fs.Stat(i.assets, name)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (i *Installer) copyLeaf(src, dst string, buf []byte, hasher hash.Hash) (int64, error) {
	in, err := i.assets.Open(src)
	if err != nil {
		return 0, &IOError{Op: "open", Path: src, Err: err}
	}
	defer fsutil.CloseWithError(in.Close, i.logger, src)

	if err := fsutil.EnsureDirectory(filepath.Dir(dst)); err != nil {
		return 0, &IOError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}

	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fsutil.DefaultFilePermissions)
	if err != nil {
		return 0, &IOError{Op: "create", Path: dst, Err: err}
	}

	hasher.Reset()
	written, err := io.CopyBuffer(io.MultiWriter(out, hasher), onlyReader{in}, buf)
	if err != nil {
		_ = out.Close()
		return written, &IOError{Op: "write", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return written, &IOError{Op: "write", Path: dst, Err: err}
	}

	return written, nil
}

// onlyReader hides WriterTo/ReaderFrom so io.CopyBuffer actually uses the
// fixed buffer.
type onlyReader struct {
	io.Reader
}

func (i *Installer) saveReceipt(r *Receipt) error {
	dir := filepath.Join(i.filesRoot, filepath.FromSlash(receiptsDir))
	if err := fsutil.EnsureDirectory(dir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	return fsutil.AtomicWriteFile(i.receiptPath(r.ModelID), data, fsutil.DefaultFilePermissions, i.logger)
}

// LoadReceipt reads the receipt written by the last successful install.
func (i *Installer) LoadReceipt(modelID string) (*Receipt, error) {
	if err := ValidateModelID(modelID); err != nil {
		return nil, &IOError{Op: "read", Path: i.receiptPath(modelID), Err: err}
	}
	data, err := os.ReadFile(i.receiptPath(modelID))
	if err != nil {
		return nil, err
	}

	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return &r, nil
}

// Verify re-hashes the installed files and compares them with the receipt.
func (i *Installer) Verify(modelID string) (VerifyReport, error) {
	report := VerifyReport{ModelID: modelID}

	receipt, err := i.LoadReceipt(modelID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, fmt.Errorf("no install receipt for %s", modelID)
		}
		return report, err
	}

	dst := i.Destination(modelID)
	seen := make(map[string]bool, len(receipt.Files))

	err = filepath.WalkDir(dst, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dst, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		want, ok := receipt.Files[rel]
		if !ok {
			report.Extra = append(report.Extra, rel)
			return nil
		}
		seen[rel] = true
		report.Checked++

		got, err := hashFile(p)
		if err != nil {
			return err
		}
		if got != want {
			report.Mismatched = append(report.Mismatched, rel)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return report, &IOError{Op: "verify", Path: dst, Err: err}
	}

	for rel := range receipt.Files {
		if !seen[rel] {
			report.Missing = append(report.Missing, rel)
		}
	}
	slices.Sort(report.Missing)

	i.logger.Info("install.verify.completed", "Verified installed model", map[string]interface{}{
		"model":      modelID,
		"checked":    report.Checked,
		"missing":    len(report.Missing),
		"mismatched": len(report.Mismatched),
		"extra":      len(report.Extra),
	})

	return report, nil
}

// Remove deletes the installed model and its receipt so it can be installed
// again from scratch.
func (i *Installer) Remove(modelID string) error {
	dst := i.Destination(modelID)
	if err := ValidateModelID(modelID); err != nil {
		return &IOError{Op: "remove", Path: dst, Err: err}
	}
	if err := os.RemoveAll(dst); err != nil {
		return &IOError{Op: "remove", Path: dst, Err: err}
	}
	if err := os.Remove(i.receiptPath(modelID)); err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "remove", Path: i.receiptPath(modelID), Err: err}
	}

	i.logger.Info("install.removed", "Installed model removed", map[string]interface{}{
		"model": modelID,
		"path":  dst,
	})
	return nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
