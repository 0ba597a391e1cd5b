// File: protocol/files.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Static file resolution backed by read-only private mappings.

package protocol

import (
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/api"
)

// StaticFile is a resolved file ready to be copied into a response.
type StaticFile interface {
	Size() int64
	Bytes() []byte
	Close() error
}

// FileResolver maps a request target to a file.
type FileResolver interface {
	// Resolve returns api.ErrNotFound when nothing servable exists.
	Resolve(target string) (StaticFile, error)
}

// DirResolver serves regular files below a root directory.
type DirResolver struct {
	root string
}

// NewDirResolver creates a resolver rooted at dir.
func NewDirResolver(dir string) *DirResolver {
	if dir == "" {
		dir = "."
	}
	return &DirResolver{root: dir}
}

// Root returns the directory files are served from.
func (d *DirResolver) Root() string { return d.root }

// Resolve cleans target, confines it to the root and maps the file.
func (d *DirResolver) Resolve(target string) (StaticFile, error) {
	rel := path.Clean("/" + target)
	if rel == "/" {
		return nil, api.ErrNotFound
	}
	name := filepath.Join(d.root, filepath.FromSlash(rel))

	fd, err := unix.Open(name, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(api.ErrNotFound, rel)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, errors.Wrapf(err, "fstat %s", rel)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return nil, errors.Wrap(api.ErrNotFound, rel)
	}
	f := &mappedFile{size: st.Size}
	if st.Size == 0 {
		return f, nil
	}
	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %s", rel)
	}
	f.data = data
	return f, nil
}

type mappedFile struct {
	size int64
	data []byte
}

func (f *mappedFile) Size() int64 { return f.size }
func (f *mappedFile) Bytes() []byte { return f.data }

func (f *mappedFile) Close() error {
	if f.data == nil {
		return nil
	}
	data := f.data
	f.data = nil
	return unix.Munmap(data)
}
