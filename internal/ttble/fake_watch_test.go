package ttble

import (
	"context"
	"encoding/binary"
	"slices"

	"github.com/lowaak/ttwatch/internal/att"
	"github.com/lowaak/ttwatch/internal/crc16"
	"github.com/lowaak/ttwatch/internal/fileid"
)

type write struct {
	handle  uint16
	data    []byte
	command bool
}

// fakeWatch is a BLE peripheral speaking the file protocol, driven
// synchronously by the session's writes.
type fakeWatch struct {
	h        Handles
	attrs    map[uint16][]byte
	readErrs map[uint16]error
	// writeErrs fails write requests to a handle.
	writeErrs map[uint16]error
	files    map[fileid.ID][]byte
	passcode uint32

	writes []write
	queue  []att.Notification

	// outgoing read stream
	stream  []byte
	sent    int
	counter uint32

	// incoming write stream
	writeID   fileid.ID
	writeLen  int
	received  []byte
	window    []byte
	writeDone bool

	// corruptAt flips the stream byte at this offset when >= 0.
	corruptAt int
	// badAck sends a wrong checkpoint counter.
	badAck bool
	// listTrim drops this many bytes from the end of a file list.
	listTrim int
	// strays is the number of transfer notifications sent before a
	// delete completes.
	strays int
}

var _ Client = (*fakeWatch)(nil)

func newFakeWatch(g Generation) *fakeWatch {
	h, _ := HandlesFor(g)
	return &fakeWatch{
		h:         h,
		attrs:     make(map[uint16][]byte),
		readErrs:  make(map[uint16]error),
		files:     make(map[fileid.ID][]byte),
		passcode:  123456,
		corruptAt: -1,
	}
}

func (w *fakeWatch) notify(handle uint16, value []byte) {
	w.queue = append(w.queue, att.Notification{Handle: handle, Value: value})
}

func be32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func (w *fakeWatch) Read(_ context.Context, handle uint16) ([]byte, error) {
	if err := w.readErrs[handle]; err != nil {
		return nil, err
	}
	if handle == w.h.Passcode {
		if v, ok := w.attrs[handle]; ok && binary.BigEndian.Uint32(v) == w.passcode {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}
	return w.attrs[handle], nil
}

func (w *fakeWatch) WriteRequest(_ context.Context, handle uint16, data []byte) error {
	w.writes = append(w.writes, write{handle: handle, data: slices.Clone(data)})
	if err := w.writeErrs[handle]; err != nil {
		return err
	}

	switch handle {
	case w.h.Command:
		id := fileid.ID(uint32(data[1])<<16 | uint32(data[3])<<8 | uint32(data[2]))
		w.command(data[0], id)
	case w.h.Length:
		w.writeLen = int(binary.BigEndian.Uint32(data))
		w.received, w.window, w.counter = nil, nil, 0
		if w.writeLen == 0 {
			w.finishWrite()
		}
	default:
		w.attrs[handle] = slices.Clone(data)
	}
	return nil
}

func (w *fakeWatch) command(op byte, id fileid.ID) {
	switch op {
	case cmdRead:
		data, ok := w.files[id]
		if !ok {
			w.notify(w.h.Command, []byte{0})
			return
		}
		w.startStream(data)
	case cmdList:
		var instances []uint16
		for fid := range w.files {
			if fid.Is(id.Type()) {
				instances = append(instances, fid.Instance())
			}
		}
		slices.Sort(instances)
		list := binary.BigEndian.AppendUint16(nil, uint16(len(instances)))
		for _, i := range instances {
			list = binary.BigEndian.AppendUint16(list, i)
		}
		if w.listTrim > 0 {
			list = list[:len(list)-w.listTrim]
		}
		for p := 0; p < len(list); p += PacketSize {
			w.notify(w.h.Transfer, list[p:min(p+PacketSize, len(list))])
		}
		w.notify(w.h.Command, []byte{statusDone})
	case cmdWrite:
		w.writeID = id
		w.writeDone = false
		w.notify(w.h.Command, []byte{statusReady})
	case cmdDelete:
		for range w.strays {
			w.notify(w.h.Transfer, []byte{0xaa})
		}
		if _, ok := w.files[id]; !ok {
			w.notify(w.h.Command, []byte{2})
			return
		}
		delete(w.files, id)
		w.notify(w.h.Command, []byte{statusDone})
	}
}

func (w *fakeWatch) startStream(data []byte) {
	w.stream, w.sent, w.counter = slices.Clone(data), 0, 0
	w.notify(w.h.Command, []byte{statusReady})
	w.notify(w.h.Length, be32(uint32(len(data))))
	w.sendWindow()
}

func (w *fakeWatch) sendWindow() {
	if w.sent >= len(w.stream) {
		w.notify(w.h.Command, []byte{statusDone})
		return
	}
	n := min(len(w.stream)-w.sent, CheckpointData)
	chunk := w.stream[w.sent : w.sent+n]
	window := crc16.AppendChecksum(slices.Clone(chunk), crc16.Checksum(chunk))
	if w.corruptAt >= w.sent && w.corruptAt < w.sent+n {
		window[w.corruptAt-w.sent] ^= 0x01
	}
	for p := 0; p < len(window); p += PacketSize {
		w.notify(w.h.Transfer, window[p:min(p+PacketSize, len(window))])
	}
	w.sent += n
}

func (w *fakeWatch) WriteCommand(handle uint16, data []byte) error {
	w.writes = append(w.writes, write{handle: handle, data: slices.Clone(data), command: true})

	switch handle {
	case w.h.Check:
		w.counter++
		if binary.BigEndian.Uint32(data) == w.counter {
			w.sendWindow()
		}
	case w.h.Transfer:
		w.window = append(w.window, data...)
		want := min(w.writeLen-len(w.received), CheckpointData) + crc16.Size
		if len(w.window) < want {
			return nil
		}
		if crc16.Checksum(w.window) != 0 {
			w.notify(w.h.Command, []byte{3})
			return nil
		}
		w.received = append(w.received, w.window[:len(w.window)-crc16.Size]...)
		w.window = nil
		w.counter++
		ack := w.counter
		if w.badAck {
			ack += 5
		}
		w.notify(w.h.Check, be32(ack))
		if len(w.received) == w.writeLen {
			w.finishWrite()
		}
	}
	return nil
}

func (w *fakeWatch) finishWrite() {
	w.files[w.writeID] = slices.Clone(w.received)
	w.writeDone = true
	w.notify(w.h.Command, []byte{statusDone})
}

func (w *fakeWatch) ReadNotification(context.Context) (att.Notification, error) {
	if len(w.queue) == 0 {
		return att.Notification{}, att.ErrTimeout
	}
	n := w.queue[0]
	w.queue = w.queue[1:]
	return n, nil
}
