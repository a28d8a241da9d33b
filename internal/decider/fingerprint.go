package decider

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/docgen/internal/paths"
)

// FileStat captures the cheap-to-read identity of a file at record time.
// Matching stats let a later decision skip re-reading content; any mismatch
// falls back to hashing.
type FileStat struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	MTimeNS int64  `json:"mtime_ns"`
}

// statOf reads the current FileStat for an absolute path.
func statOf(abs string) (FileStat, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return FileStat{}, err
	}
	return FileStat{
		Path:    normPath(abs),
		Size:    info.Size(),
		MTimeNS: info.ModTime().UnixNano(),
	}, nil
}

// hashInputs computes the input fingerprint: sha256 over the ordered
// concatenation of every input's content bytes followed by the resolved
// action string. Input order is the builder's declared order, so reordering
// inputs changes the fingerprint.
func (d *Decider) hashInputs(inputs []paths.Path, action string) (string, error) {
	h := sha256.New()
	for _, in := range inputs {
		data, err := os.ReadFile(in.Abs())
		if err != nil {
			return "", fmt.Errorf("read input %s: %w", in.Abs(), err)
		}
		d.observeHash(in.Abs())
		h.Write(data)
	}
	h.Write([]byte(norm.NFC.String(action)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashFile computes the content fingerprint of a single file.
func (d *Decider) hashFile(abs string) (string, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", abs, err)
	}
	d.observeHash(abs)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the hex sha256 of raw content. Callers use it to stamp
// cache filenames for inline content.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normPath normalizes a path string to NFC so fingerprint records agree
// across filesystems that decompose file names.
func normPath(p string) string {
	return norm.NFC.String(p)
}
