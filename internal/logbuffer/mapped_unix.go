//go:build unix

package logbuffer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	protoerr "github.com/alxayo/mediadriver/internal/errors"
)

// NewMapped creates (or truncates-to-size, if it already exists) the
// backing file at path and mmaps it, returning a LogBuffer whose term
// partitions and metadata region are slices into the mapping. This is the
// production path for publications/<id>.logbuffer and
// images/<id>.logbuffer, a scoped-resource release pattern generalized to
// an mmap/munmap pair.
func NewMapped(path string, termLength, initialTermID, mtuLength int32) (*LogBuffer, error) {
	if err := ValidateTermLength(termLength); err != nil {
		return nil, err
	}
	total := TotalLength(termLength)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, protoerr.NewUnrecoverableIOError("logbuffer.open", err)
	}
	if err := f.Truncate(total); err != nil {
		f.Close()
		return nil, protoerr.NewUnrecoverableIOError("logbuffer.truncate", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, protoerr.NewUnrecoverableIOError("logbuffer.mmap", err)
	}

	var terms [PartitionCount][]byte
	for i := 0; i < PartitionCount; i++ {
		start := int64(i) * int64(termLength)
		terms[i] = data[start : start+int64(termLength) : start+int64(termLength)]
	}
	metaStart := int64(PartitionCount) * int64(termLength)
	metadata := data[metaStart : metaStart+MetadataLength]

	closer := func() error {
		if err := unix.Msync(data, unix.MS_SYNC); err != nil {
			return protoerr.NewTransientIOError("logbuffer.msync", err)
		}
		if err := unix.Munmap(data); err != nil {
			return protoerr.NewUnrecoverableIOError("logbuffer.munmap", err)
		}
		return f.Close()
	}

	lb, err := New(terms, metadata, termLength, initialTermID, mtuLength, closer)
	if err != nil {
		closer()
		return nil, fmt.Errorf("logbuffer.new_mapped: %w", err)
	}
	return lb, nil
}
