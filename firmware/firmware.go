// SPDX-License-Identifier: GPL-2.0-only

// Package firmware requests firmware blobs on behalf of a device and
// scopes the loaded data to a handle that is released exactly once.
package firmware

import (
	"io/fs"
	"path"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mlilabs/devbind/device"
)

// LoadOptions selects the loader behaviour for one request.
type LoadOptions struct {
	// NoWarn suppresses the loader's warning when the blob is missing.
	NoWarn bool
	// Direct restricts the search to the primary location, skipping any
	// fallback locations.
	Direct bool
}

// Loader is the host's blocking firmware-load boundary. Load returns the
// complete blob or an error without any partial allocation; it must only
// be called from contexts where blocking is permitted.
type Loader interface {
	Load(name string, opts LoadOptions) ([]byte, error)
}

type fsLoader struct {
	fsys   fs.FS
	dirs   []string
	logger log.Logger
}

// NewFSLoader returns a Loader reading blobs from fsys. dirs are searched
// in order; the first is the primary location used exclusively by direct
// requests. With no dirs, names are resolved against the root of fsys.
func NewFSLoader(fsys fs.FS, logger log.Logger, dirs ...string) Loader {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	return &fsLoader{fsys: fsys, dirs: dirs, logger: logger}
}

func (l *fsLoader) Load(name string, opts LoadOptions) ([]byte, error) {
	dirs := l.dirs
	if opts.Direct {
		dirs = dirs[:1]
	}
	var firstErr error
	for _, dir := range dirs {
		data, err := fs.ReadFile(l.fsys, path.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if !opts.NoWarn {
		_ = level.Warn(l.logger).Log("msg", "firmware not found", "firmware", name, "err", firstErr)
	}
	return nil, errors.Wrapf(firstErr, "failed to load firmware %s", name)
}

// Firmware owns one loaded blob.
type Firmware struct {
	data     []byte
	released bool
}

// Request sends a firmware request for name on behalf of dev and waits
// for it. On failure the error is returned and no handle is produced.
//
// name should be distinctive enough not to be confused with any other
// firmware image for this or any other device.
func Request(l Loader, name string, dev *device.Device) (*Firmware, error) {
	return request(l, name, dev, LoadOptions{})
}

// RequestNowarn behaves like Request except the loader produces no
// warning when the blob is not found. Meant for optional firmware.
func RequestNowarn(l Loader, name string, dev *device.Device) (*Firmware, error) {
	return request(l, name, dev, LoadOptions{NoWarn: true})
}

// RequestDirect behaves like Request but loads only from the primary
// location, without falling back to secondary ones.
func RequestDirect(l Loader, name string, dev *device.Device) (*Firmware, error) {
	return request(l, name, dev, LoadOptions{Direct: true})
}

func request(l Loader, name string, dev *device.Device, opts LoadOptions) (*Firmware, error) {
	if dev == nil {
		return nil, errors.New("firmware request without a device")
	}
	data, err := l.Load(name, opts)
	if err != nil {
		return nil, err
	}
	return &Firmware{data: data}, nil
}

// Data returns a read-only view sized exactly to the loaded blob. The
// view is invalid after Release.
func (f *Firmware) Data() []byte {
	if f.released {
		return nil
	}
	return f.data
}

// Release gives the blob back. The first call releases; any further call
// is a no-op.
func (f *Firmware) Release() {
	if f.released {
		return
	}
	f.released = true
	f.data = nil
}
