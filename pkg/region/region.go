/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package region maps the shared file that carries the two rings of a
// channel and describes where each ring lives inside it.
//
// The file starts with a 64 byte header followed by the inbound ring storage
// and then the outbound ring storage:
//
//	0   version          int64, 0 until the creator is done
//	8   inbound length   int64, bytes of inbound ring storage
//	16  outbound length  int64, bytes of outbound ring storage
//	24  reserved
//	64  inbound ring | outbound ring
//
// Readiness is polled: the creator stores both lengths and then the version,
// and an attacher reads the version first.
package region

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"github.com/srediag/shmring/internal/logging"
	"github.com/srediag/shmring/internal/shm"
	"github.com/srediag/shmring/pkg/ringbuf"
)

const (
	// HeaderLength is the size of the header, one cache line.
	HeaderLength = ringbuf.CacheLineLength

	versionOffset        = 0
	inboundLengthOffset  = 8
	outboundLengthOffset = 16

	// ReadyVersion is the only layout version this package reads and writes.
	ReadyVersion int64 = 1

	// DefaultFileName is the name of the shared file inside DefaultDir.
	DefaultFileName = "srv.dat"
	// DefaultCapacity is the data capacity of each ring made by DefaultConfig.
	DefaultCapacity = 64 * 1024
)

var (
	// ErrRegionUnavailable is returned when the file does not exist or cannot
	// be mapped. Retryable.
	ErrRegionUnavailable = errors.New("region: unavailable")
	// ErrRegionNotReady is returned while the creator has not published the
	// header yet. Retryable.
	ErrRegionNotReady = errors.New("region: not ready")
	// ErrVersionMismatch is returned for a header written by an incompatible peer.
	ErrVersionMismatch = errors.New("region: version mismatch")
	// ErrRegionCorrupt is returned when the header lengths do not describe
	// two rings inside the file.
	ErrRegionCorrupt = errors.New("region: corrupt header")
	// ErrRegionExists is returned by Create when the file is already there.
	ErrRegionExists = errors.New("region: already exists")
	// ErrInsufficientSpace is returned by Create when the target filesystem
	// cannot hold the file.
	ErrInsufficientSpace = errors.New("region: insufficient space")
)

var logger = logging.New("region", nil)

// DefaultPath returns the conventional location of the shared file.
func DefaultPath() string {
	return filepath.Join(shm.DefaultDir(), DefaultFileName)
}

// Config holds the data capacities of the two rings. Both must be powers of two.
type Config struct {
	InboundCapacity  int
	OutboundCapacity int
}

// DefaultConfig returns DefaultCapacity for both directions.
func DefaultConfig() Config {
	return Config{InboundCapacity: DefaultCapacity, OutboundCapacity: DefaultCapacity}
}

// Validate checks both capacities.
func (c Config) Validate() error {
	if err := ringbuf.ValidateCapacity(c.InboundCapacity); err != nil {
		return fmt.Errorf("inbound capacity %d: %w", c.InboundCapacity, err)
	}
	if err := ringbuf.ValidateCapacity(c.OutboundCapacity); err != nil {
		return fmt.Errorf("outbound capacity %d: %w", c.OutboundCapacity, err)
	}
	return nil
}

// InboundOffset returns the file offset of the inbound ring storage.
func InboundOffset() int64 {
	return HeaderLength
}

// OutboundOffset returns the file offset of the outbound ring storage.
func OutboundOffset(inboundLength int64) int64 {
	return HeaderLength + inboundLength
}

// FileLength returns the file size for the given ring storage lengths.
func FileLength(inboundLength, outboundLength int64) int64 {
	return HeaderLength + inboundLength + outboundLength
}

// Header is a view of the header at the start of a mapping. Every field is
// read with an atomic load.
type Header struct {
	buf []byte
}

// Version returns the layout version, 0 while the region is being created.
func (h Header) Version() int64 {
	return shm.LoadInt64(h.buf, versionOffset)
}

// Ready reports whether the creator has published the header.
func (h Header) Ready() bool {
	return h.Version() == ReadyVersion
}

// Capacities returns the byte lengths of the inbound and outbound ring storage,
// trailer included.
func (h Header) Capacities() (inbound, outbound int64) {
	return shm.LoadInt64(h.buf, inboundLengthOffset), shm.LoadInt64(h.buf, outboundLengthOffset)
}

// Region is a mapped shared file with a published header.
type Region struct {
	mapping  *shm.MappedRegion
	header   Header
	inbound  []byte
	outbound []byte
}

func newRegion(m *shm.MappedRegion, inLen, outLen int64) *Region {
	in := InboundOffset()
	out := OutboundOffset(inLen)
	end := out + outLen
	return &Region{
		mapping:  m,
		header:   Header{buf: m.Addr[:HeaderLength:HeaderLength]},
		inbound:  m.Addr[in:out:out],
		outbound: m.Addr[out:end:end],
	}
}

// Create makes the shared file at path, sizes it for cfg, maps it with every
// page pre-faulted and publishes the header. It fails with ErrRegionExists
// when the file is already there.
func Create(ctx context.Context, path string, cfg Config, opts ...Option) (r *Region, err error) {
	o := newOptions(opts)
	ctx, span := o.tracer.start(ctx, "region.Create", path,
		attribute.Int("region.inbound_capacity", cfg.InboundCapacity),
		attribute.Int("region.outbound_capacity", cfg.OutboundCapacity))
	defer func() { endSpan(span, err) }()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	inLen := int64(ringbuf.BufferLength(cfg.InboundCapacity))
	outLen := int64(ringbuf.BufferLength(cfg.OutboundCapacity))
	size := FileLength(inLen, outLen)
	if !shm.CanCreate(uint64(size), path) {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrInsufficientSpace, size, path)
	}

	m, err := shm.MapRegion(ctx, shm.MapOptions{Path: path, Size: int(size), Create: true, Populate: true})
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %w", ErrRegionExists, err)
		}
		return nil, err
	}
	shm.StoreInt64(m.Addr, inboundLengthOffset, inLen)
	shm.StoreInt64(m.Addr, outboundLengthOffset, outLen)
	shm.StoreInt64(m.Addr, versionOffset, ReadyVersion)
	logger.Infof("created %s, %d bytes, rings %d/%d", path, size, cfg.InboundCapacity, cfg.OutboundCapacity)
	return newRegion(m, inLen, outLen), nil
}

// Attach maps the shared file at path and validates its header. A file that
// is missing or unmappable yields ErrRegionUnavailable and one whose header
// is not yet published yields ErrRegionNotReady. Both are worth retrying, see
// AttachWithRetry.
func Attach(ctx context.Context, path string, opts ...Option) (r *Region, err error) {
	o := newOptions(opts)
	ctx, span := o.tracer.start(ctx, "region.Attach", path)
	defer func() { endSpan(span, err) }()

	m, err := shm.MapRegion(ctx, shm.MapOptions{Path: path})
	if err != nil {
		switch {
		case errors.Is(err, shm.ErrEmptyRegion):
			return nil, fmt.Errorf("%w: %w", ErrRegionNotReady, err)
		case ctx.Err() != nil:
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRegionUnavailable, err)
	}
	inLen, outLen, err := validate(m)
	if err != nil {
		if uerr := shm.UnmapRegion(ctx, m); uerr != nil {
			logger.Warnf("unmap %s: %v", path, uerr)
		}
		return nil, err
	}
	logger.Debugf("attached %s, ring storage %d/%d", path, inLen, outLen)
	return newRegion(m, inLen, outLen), nil
}

func validate(m *shm.MappedRegion) (inLen, outLen int64, err error) {
	size := int64(m.Size())
	if size < HeaderLength {
		return 0, 0, fmt.Errorf("%w: %s is %d bytes", ErrRegionNotReady, m.Path, size)
	}
	h := Header{buf: m.Addr[:HeaderLength]}
	switch v := h.Version(); v {
	case ReadyVersion:
	case 0:
		return 0, 0, fmt.Errorf("%w: %s", ErrRegionNotReady, m.Path)
	default:
		return 0, 0, fmt.Errorf("%w: %s has version %d, want %d", ErrVersionMismatch, m.Path, v, ReadyVersion)
	}
	inLen, outLen = h.Capacities()
	if inLen <= 0 || outLen <= 0 || inLen > size || outLen > size || FileLength(inLen, outLen) > size {
		return 0, 0, fmt.Errorf("%w: %s lengths %d/%d in %d bytes", ErrRegionCorrupt, m.Path, inLen, outLen, size)
	}
	for _, l := range []int64{inLen, outLen} {
		if err := ringbuf.ValidateCapacity(int(l) - ringbuf.TrailerLength); err != nil {
			return 0, 0, fmt.Errorf("%w: %s ring length %d: %w", ErrRegionCorrupt, m.Path, l, err)
		}
	}
	return inLen, outLen, nil
}

// Header returns the header view.
func (r *Region) Header() Header {
	return r.header
}

// Inbound returns the inbound ring storage: requests, written by the client
// and read by the service.
func (r *Region) Inbound() []byte {
	return r.inbound
}

// Outbound returns the outbound ring storage: responses, written by the
// service and read by the client.
func (r *Region) Outbound() []byte {
	return r.outbound
}

// Path returns the file path the region was mapped from.
func (r *Region) Path() string {
	return r.mapping.Path
}

// Close unmaps the region. The file stays. Slices returned by Inbound and
// Outbound must not be used afterwards.
func (r *Region) Close() error {
	r.inbound, r.outbound = nil, nil
	return shm.UnmapRegion(context.Background(), r.mapping)
}

// Destroy unmaps the region and removes the file. It is meant for the
// creator on shutdown; attached peers keep their mapping.
func (r *Region) Destroy() error {
	err := r.Close()
	if rerr := os.Remove(r.mapping.Path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
		err = errors.Join(err, rerr)
	}
	return err
}
