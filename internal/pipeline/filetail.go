package pipeline

import (
	"bufio"
	"io"
	"os"
	"strings"
	"syscall"
)

// FileTail returns only lines appended to a file since the last read,
// surviving log rotation (new inode) and copytruncate (same inode, smaller
// size) by resetting its offset to zero when either is detected.
//
// Grounded on FileTail in pipelines/file.py (itself adapted from pygtail).
type FileTail struct {
	Path  string
	Cache *OffsetCache

	file   *os.File
	offset int64
	inode  uint64
}

// NewFileTail opens path for tailing. If Cache has no recorded offset for
// path, the tail starts at end-of-file (only lines written after this call
// are ever returned); otherwise it resumes from the cached offset.
func NewFileTail(path string, cache *OffsetCache) (*FileTail, error) {
	inode, err := fileInode(path)
	if err != nil {
		return nil, err
	}

	t := &FileTail{Path: path, Cache: cache, inode: inode}

	if off, ok := cache.Get(path); ok {
		t.offset = off
		return t, nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	t.offset = fi.Size()
	cache.Set(path, t.offset)
	return t, nil
}

// Close releases the underlying file handle, if open.
func (t *FileTail) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// ReadLines returns every complete (and any final, newline-less) line
// appended to the file since the last call, updating the cached offset as
// it goes. A trailing line with no terminating "\n" is still returned —
// matching the Python readline() behavior this is ported from — so a line
// written concurrently with a read may occasionally be split across two
// calls.
func (t *FileTail) ReadLines() ([]string, error) {
	rotated, err := t.wasRotated()
	if err != nil {
		return nil, err
	}
	if rotated {
		_ = t.Close()
		if inode, ierr := fileInode(t.Path); ierr == nil {
			t.inode = inode
		}
		t.offset = 0
		t.Cache.Set(t.Path, 0)
	}

	if t.file == nil {
		f, err := os.Open(t.Path)
		if err != nil {
			return nil, err
		}
		if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		t.file = f
	}

	reader := bufio.NewReader(t.file)
	var lines []string
	for {
		b, err := reader.ReadBytes('\n')
		if len(b) == 0 {
			break
		}
		t.offset += int64(len(b))
		lines = append(lines, strings.TrimRight(string(b), "\r\n"))
		if err != nil {
			break
		}
	}
	t.Cache.Set(t.Path, t.offset)
	return lines, nil
}

// wasRotated reports whether the file on disk is no longer the one this
// tail has open: either its inode changed (classic rotate+recreate), or it
// kept the same inode but shrank below the cached offset (copytruncate).
func (t *FileTail) wasRotated() (bool, error) {
	newInode, err := fileInode(t.Path)
	if err != nil {
		return false, err
	}
	if newInode != t.inode {
		return true, nil
	}

	fi, err := os.Stat(t.Path)
	if err != nil {
		return false, err
	}
	if cached, ok := t.Cache.Get(t.Path); ok && fi.Size() < cached {
		return true, nil
	}
	return false, nil
}

func fileInode(path string) (uint64, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Ino), nil
}
