package ttble

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/lowaak/ttwatch/internal/crc16"
	"github.com/lowaak/ttwatch/internal/fileid"
)

// expect reads the next notification and checks that it arrived on handle.
func (s *Session) expect(ctx context.Context, handle uint16) ([]byte, error) {
	n, err := s.client.ReadNotification(ctx)
	if err != nil {
		return nil, err
	}
	if n.Handle != handle {
		return nil, &HandleError{Expected: handle, Actual: n.Handle}
	}
	return n.Value, nil
}

// start sends a file command and waits for the watch to report ready.
func (s *Session) start(ctx context.Context, op string, cmd byte, id fileid.ID) error {
	if err := s.client.WriteRequest(ctx, s.handles.Command, command(cmd, uint32(id))); err != nil {
		return fmt.Errorf("%s %s: command: %w", op, id, err)
	}
	v, err := s.expect(ctx, s.handles.Command)
	if err != nil {
		return fmt.Errorf("%s %s: status: %w", op, id, err)
	}
	if st := beUint(v); st != statusReady {
		return &StatusError{Op: op, ID: id, Status: st}
	}
	return nil
}

// ReadFile reads a whole file from the watch.
func (s *Session) ReadFile(ctx context.Context, id fileid.ID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readStream(ctx, "read", cmdRead, id)
}

func (s *Session) readStream(ctx context.Context, op string, cmd byte, id fileid.ID) ([]byte, error) {
	if err := s.start(ctx, op, cmd, id); err != nil {
		return nil, err
	}
	v, err := s.expect(ctx, s.handles.Length)
	if err != nil {
		return nil, fmt.Errorf("%s %s: length: %w", op, id, err)
	}
	length := int(beUint(v))

	data := make([]byte, 0, length)
	var counter uint32
	for len(data) < length {
		want := min(length-len(data), CheckpointData) + crc16.Size
		window := make([]byte, 0, want)
		for len(window) < want {
			v, err := s.expect(ctx, s.handles.Transfer)
			if err != nil {
				return nil, fmt.Errorf("%s %s at %d: %w", op, id, len(data)+len(window), err)
			}
			if len(window)+len(v) > want {
				return nil, fmt.Errorf("%s %s at %d: %w", op, id, len(data)+len(window), ErrOverrun)
			}
			window = append(window, v...)
		}
		if crc16.Checksum(window) != 0 {
			return nil, &ChecksumError{Offset: len(data), Length: want}
		}
		data = append(data, window[:want-crc16.Size]...)

		counter++
		if s.Trace {
			s.logger.Printf("BLESession: %s %s checkpoint %d, %d/%d bytes", op, id, counter, len(data), length)
		}
		if err := s.client.WriteCommand(s.handles.Check, binary.BigEndian.AppendUint32(nil, counter)); err != nil {
			return nil, fmt.Errorf("%s %s: checkpoint %d: %w", op, id, counter, err)
		}
	}

	v, err = s.expect(ctx, s.handles.Command)
	if err != nil {
		return nil, fmt.Errorf("%s %s: final status: %w", op, id, err)
	}
	if st := beUint(v); st != statusDone {
		s.logger.Printf("BLESession: %s %s: unexpected final status %d", op, id, st)
	}
	return data, nil
}

// WriteFile writes data to id, pacing packets by delay.
func (s *Session) WriteFile(ctx context.Context, id fileid.ID, data []byte, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.start(ctx, "write", cmdWrite, id); err != nil {
		return err
	}
	if err := s.client.WriteRequest(ctx, s.handles.Length, binary.BigEndian.AppendUint32(nil, uint32(len(data)))); err != nil {
		return fmt.Errorf("write %s: length: %w", id, err)
	}

	var counter uint32
	for off := 0; off < len(data); {
		n := min(len(data)-off, CheckpointData)
		window := crc16.AppendChecksum(append([]byte(nil), data[off:off+n]...), crc16.Checksum(data[off:off+n]))

		for p := 0; p < len(window); p += PacketSize {
			packet := window[p:min(p+PacketSize, len(window))]
			if err := s.client.WriteCommand(s.handles.Transfer, packet); err != nil {
				return fmt.Errorf("write %s at %d: %w", id, off+p, err)
			}
			if err := pause(ctx, delay); err != nil {
				return err
			}
		}
		off += n

		counter++
		v, err := s.expect(ctx, s.handles.Check)
		if err != nil {
			return fmt.Errorf("write %s: checkpoint %d: %w", id, counter, err)
		}
		if got := beUint(v); got != counter {
			return &CounterError{Expected: counter, Actual: got}
		}
		if s.Trace {
			s.logger.Printf("BLESession: write %s checkpoint %d, %d/%d bytes", id, counter, off, len(data))
		}
	}

	v, err := s.expect(ctx, s.handles.Command)
	if err != nil {
		return fmt.Errorf("write %s: final status: %w", id, err)
	}
	if st := beUint(v); st != statusDone {
		return &StatusError{Op: "write", ID: id, Status: st}
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DeleteFile removes id from the watch. Stray transfer notifications sent
// while the watch tidies up are discarded.
func (s *Session) DeleteFile(ctx context.Context, id fileid.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.WriteRequest(ctx, s.handles.Command, command(cmdDelete, uint32(id))); err != nil {
		return fmt.Errorf("delete %s: command: %w", id, err)
	}
	for {
		n, err := s.client.ReadNotification(ctx)
		if err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		switch n.Handle {
		case s.handles.Transfer:
			continue
		case s.handles.Command:
			if st := beUint(n.Value); st != statusDone {
				return &StatusError{Op: "delete", ID: id, Status: st}
			}
			return nil
		default:
			return &HandleError{Expected: s.handles.Command, Actual: n.Handle}
		}
	}
}

// ListSubFiles returns the instances of the file type of id present on the
// watch. The list arrives as plain transfer notifications: a big-endian
// entry count followed by that many big-endian instance numbers, split
// across as many packets as needed, then a done status.
func (s *Session) ListSubFiles(ctx context.Context, id fileid.ID) ([]fileid.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.WriteRequest(ctx, s.handles.Command, command(cmdList, uint32(id))); err != nil {
		return nil, fmt.Errorf("list %s: command: %w", id, err)
	}

	var data []byte
	count := -1
	for count < 0 || len(data) < 2+2*count {
		v, err := s.expect(ctx, s.handles.Transfer)
		if err != nil {
			return nil, fmt.Errorf("list %s: entries: %w", id, err)
		}
		data = append(data, v...)
		if count < 0 && len(data) >= 2 {
			count = int(binary.BigEndian.Uint16(data))
		}
	}
	if len(data) != 2+2*count {
		return nil, fmt.Errorf("list %s: %w: %d entries in %d bytes", id, ErrMalformedList, count, len(data))
	}

	v, err := s.expect(ctx, s.handles.Command)
	if err != nil {
		return nil, fmt.Errorf("list %s: status: %w", id, err)
	}
	if st := beUint(v); st != statusDone {
		return nil, &StatusError{Op: "list", ID: id, Status: st}
	}

	ids := make([]fileid.ID, count)
	for i := range ids {
		ids[i] = fileid.New(id.Type(), binary.BigEndian.Uint16(data[2+2*i:]))
	}
	return ids, nil
}
