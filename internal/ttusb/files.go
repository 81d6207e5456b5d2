package ttusb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/lowaak/ttwatch/internal/fileid"
)

// ReadWholeFile opens id, reads it completely and closes it again.
func (c *Channel) ReadWholeFile(ctx context.Context, id fileid.ID) (data []byte, err error) {
	if err := c.OpenFile(ctx, id, ModeRead); err != nil {
		return nil, err
	}
	defer func() {
		if cerr := c.CloseFile(ctx); err == nil && cerr != nil {
			data, err = nil, cerr
		}
	}()

	size, err := c.FileSize(ctx)
	if err != nil {
		return nil, err
	}

	data = make([]byte, 0, size)
	for len(data) < size {
		n := min(size-len(data), ReadChunkSize)
		chunk, err := c.ReadChunk(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("read %s at %d: %w", id, len(data), err)
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("read %s at %d: %w: empty chunk", id, len(data), ErrWrongLength)
		}
		data = append(data, chunk...)
	}
	return data, nil
}

// WriteWholeFile replaces id with data. An existing file is deleted first.
func (c *Channel) WriteWholeFile(ctx context.Context, id fileid.ID, data []byte) (err error) {
	if err := c.removeExisting(ctx, id); err != nil {
		return err
	}

	if err := c.OpenFile(ctx, id, ModeWrite); err != nil {
		return err
	}
	defer func() {
		if cerr := c.CloseFile(ctx); err == nil {
			err = cerr
		}
	}()

	for off := 0; off < len(data); off += WriteChunkSize {
		end := min(off+WriteChunkSize, len(data))
		if err := c.WriteChunk(ctx, data[off:end]); err != nil {
			return fmt.Errorf("write %s at %d: %w", id, off, err)
		}
	}
	return nil
}

// removeExisting probes for id with an open-for-read and deletes it when
// the probe succeeds. A device status on the probe means the file does not
// exist.
func (c *Channel) removeExisting(ctx context.Context, id fileid.ID) error {
	err := c.OpenFile(ctx, id, ModeRead)
	var devErr *DeviceError
	switch {
	case errors.As(err, &devErr):
		return nil
	case err != nil:
		return err
	}
	if err := c.CloseFile(ctx); err != nil {
		return err
	}
	return c.DeleteFile(ctx, id)
}

// WriteVerifyWholeFile writes data to id, reads it back and compares.
func (c *Channel) WriteVerifyWholeFile(ctx context.Context, id fileid.ID, data []byte) error {
	if err := c.WriteWholeFile(ctx, id, data); err != nil {
		return err
	}
	back, err := c.ReadWholeFile(ctx, id)
	if err != nil {
		return fmt.Errorf("verify %s: %w", id, err)
	}
	if bytes.Equal(back, data) {
		return nil
	}

	off := min(len(back), len(data))
	for i := range off {
		if back[i] != data[i] {
			off = i
			break
		}
	}
	return &VerifyError{ID: id, Offset: off, Written: len(data), ReadBack: len(back)}
}

// Files enumerates the watch's file table. Only entries whose type matches
// typ are yielded; fileid.AnyType yields every file.
//
// The enumeration is always closed, including when the consumer stops early
// or an error is yielded. Each range over the sequence starts a new
// enumeration.
func (c *Channel) Files(ctx context.Context, typ fileid.ID) iter.Seq2[FileEntry, error] {
	return func(yield func(FileEntry, error) bool) {
		entry, end, err := c.FindFirst(ctx)
		if err != nil {
			// ErrFileOpen is refused before anything reaches the watch.
			if !errors.Is(err, ErrFileOpen) {
				c.closeFind(ctx)
			}
			yield(FileEntry{}, err)
			return
		}
		defer c.closeFind(ctx)

		for !end {
			if entry.ID.Is(typ) {
				if !yield(entry, nil) {
					return
				}
			}
			entry, end, err = c.FindNext(ctx)
			if err != nil {
				yield(FileEntry{}, err)
				return
			}
		}
	}
}

func (c *Channel) closeFind(ctx context.Context) {
	if err := c.FindClose(ctx); err != nil {
		c.logger.Printf("USBChannel: find close: %v", err)
	}
}

// ListFiles collects Files into a slice.
func (c *Channel) ListFiles(ctx context.Context, typ fileid.ID) ([]FileEntry, error) {
	var entries []FileEntry
	for entry, err := range c.Files(ctx, typ) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
