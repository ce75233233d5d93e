package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// SpillBuffer accumulates newline-delimited records in memory up to a byte
// budget, then transparently overflows to a temporary file. It is owned by
// the pipeline coordinator and is not safe for concurrent use.
type SpillBuffer struct {
	limit int64
	dir   string

	mem   bytes.Buffer
	file  *os.File
	fw    *bufio.Writer
	size  int64
	count int
}

// NewSpillBuffer creates a buffer with the given in-memory byte budget.
// Overflow files are created in dir (the OS temp dir when empty).
func NewSpillBuffer(limitBytes int64, dir string) *SpillBuffer {
	return &SpillBuffer{limit: limitBytes, dir: dir}
}

// Append adds one record. The record must not contain a newline.
func (b *SpillBuffer) Append(record []byte) error {
	needed := int64(len(record)) + 1
	if b.file == nil && b.limit > 0 && b.size+needed > b.limit {
		if err := b.spill(); err != nil {
			return err
		}
	}

	var w io.Writer = &b.mem
	if b.fw != nil {
		w = b.fw
	}
	if _, err := w.Write(record); err != nil {
		return fmt.Errorf("pipeline: buffer write: %w", err)
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("pipeline: buffer write: %w", err)
	}
	b.size += needed
	b.count++
	return nil
}

// Len returns the number of appended records.
func (b *SpillBuffer) Len() int { return b.count }

// spill moves the in-memory content to a temporary file and redirects
// subsequent writes there.
func (b *SpillBuffer) spill() error {
	f, err := os.CreateTemp(b.dir, ".raido-spill-*")
	if err != nil {
		return fmt.Errorf("pipeline: create spill file: %w", err)
	}
	b.file = f
	b.fw = bufio.NewWriter(f)
	if _, err := b.fw.Write(b.mem.Bytes()); err != nil {
		return fmt.Errorf("pipeline: spill to disk: %w", err)
	}
	b.mem.Reset()
	return nil
}

// WriteJSONArray renders the buffered records as one well-formed JSON array.
// Each record must already be a complete JSON value.
func (b *SpillBuffer) WriteJSONArray(w io.Writer) error {
	var src io.Reader
	if b.file != nil {
		if err := b.fw.Flush(); err != nil {
			return fmt.Errorf("pipeline: flush spill: %w", err)
		}
		if _, err := b.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("pipeline: rewind spill: %w", err)
		}
		src = b.file
	} else {
		src = bytes.NewReader(b.mem.Bytes())
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("["); err != nil {
		return err
	}
	r := bufio.NewReader(src)
	first := true
	for {
		line, err := r.ReadBytes('\n')
		line = bytes.TrimSuffix(line, []byte{'\n'})
		if len(line) > 0 {
			if !first {
				if _, werr := bw.WriteString(",\n"); werr != nil {
					return werr
				}
			}
			first = false
			if _, werr := bw.Write(line); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("pipeline: read buffered record: %w", err)
		}
	}
	if _, err := bw.WriteString("]"); err != nil {
		return err
	}
	return bw.Flush()
}

// Close releases the overflow file, if any.
func (b *SpillBuffer) Close() error {
	if b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	_ = os.Remove(name)
	b.file = nil
	b.fw = nil
	return err
}
