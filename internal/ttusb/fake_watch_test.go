package ttusb

import (
	"context"
	"encoding/binary"
	"slices"
	"sync"

	"github.com/lowaak/ttwatch/internal/fileid"
)

// fakeWatch simulates the USB side of a watch with a flat in-memory file
// table. Responses are produced synchronously when a request is written.
type fakeWatch struct {
	mu sync.Mutex

	files map[fileid.ID][]byte

	openID  fileid.ID
	open    bool
	readPos int

	listing []fileid.ID
	listPos int

	pending [][]byte
	ops     []byte

	// mutate, when set, may alter each response frame before it is read.
	mutate func(frame []byte)
	// silent suppresses every response.
	silent bool
	// writeErr and readErr fail the transport itself.
	writeErr error
	readErr  error

	firmware string
	closed   bool
}

var _ Transport = (*fakeWatch)(nil)

func newFakeWatch() *fakeWatch {
	return &fakeWatch{
		files:    make(map[fileid.ID][]byte),
		firmware: "1.8.42",
	}
}

func (w *fakeWatch) opcodes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.ops)
}

func (w *fakeWatch) WritePacket(_ context.Context, p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writeErr != nil {
		return w.writeErr
	}
	counter, op, payload, err := DecodeRequest(p)
	if err != nil {
		return err
	}
	w.ops = append(w.ops, op)

	resp, reply := w.handle(op, payload)
	if !reply || w.silent {
		return nil
	}
	frame, err := EncodeResponse(counter, responseOpcode(op), resp)
	if err != nil {
		return err
	}
	if w.mutate != nil {
		w.mutate(frame)
	}
	w.pending = append(w.pending, frame)
	return nil
}

func (w *fakeWatch) ReadPacket(ctx context.Context, p []byte) (int, error) {
	w.mu.Lock()
	if w.readErr != nil {
		err := w.readErr
		w.mu.Unlock()
		return 0, err
	}
	if len(w.pending) > 0 {
		frame := w.pending[0]
		w.pending = w.pending[1:]
		w.mu.Unlock()
		return copy(p, frame), nil
	}
	w.mu.Unlock()

	<-ctx.Done()
	return 0, ctx.Err()
}

func (w *fakeWatch) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func status(id fileid.ID, code uint32) []byte {
	b := make([]byte, fileStatusSize)
	binary.BigEndian.PutUint32(b[0:], uint32(id))
	binary.BigEndian.PutUint32(b[8:], code)
	return b
}

func (w *fakeWatch) findEntry() []byte {
	b := make([]byte, findResponseSize)
	if w.listPos >= len(w.listing) {
		binary.BigEndian.PutUint32(b[12:], 1)
		return b
	}
	id := w.listing[w.listPos]
	w.listPos++
	binary.BigEndian.PutUint32(b[0:], uint32(id))
	binary.BigEndian.PutUint32(b[8:], uint32(len(w.files[id])))
	return b
}

func (w *fakeWatch) handle(op byte, payload []byte) ([]byte, bool) {
	var id fileid.ID
	if len(payload) >= 4 {
		id = fileid.ID(binary.BigEndian.Uint32(payload))
	}

	switch op {
	case OpOpenFileRead:
		if _, ok := w.files[id]; !ok {
			return status(id, 1), true
		}
		w.open, w.openID, w.readPos = true, id, 0
		return status(id, 0), true

	case OpOpenFileWrite:
		w.files[id] = nil
		w.open, w.openID = true, id
		return status(id, 0), true

	case OpCloseFile:
		w.open = false
		return status(id, 0), true

	case OpDeleteFile:
		if _, ok := w.files[id]; !ok {
			return status(id, 1), true
		}
		delete(w.files, id)
		return status(id, 0), true

	case OpGetFileSize:
		b := make([]byte, fileStatusSize)
		binary.BigEndian.PutUint32(b[0:], uint32(id))
		binary.BigEndian.PutUint32(b[8:], uint32(len(w.files[id])))
		return b, true

	case OpReadFileData:
		n := int(binary.BigEndian.Uint32(payload[4:8]))
		data := w.files[id][w.readPos:]
		n = min(n, len(data))
		w.readPos += n
		b := make([]byte, readHeaderSize, readHeaderSize+n)
		binary.BigEndian.PutUint32(b[0:], uint32(id))
		binary.BigEndian.PutUint32(b[4:], uint32(n))
		return append(b, data[:n]...), true

	case OpWriteFileData:
		w.files[id] = append(w.files[id], payload[4:]...)
		return status(id, 0), true

	case OpFindFirstFile:
		w.listing = w.listing[:0]
		for fid := range w.files {
			w.listing = append(w.listing, fid)
		}
		slices.Sort(w.listing)
		w.listPos = 0
		return w.findEntry(), true

	case OpFindNextFile:
		return w.findEntry(), true

	case OpFindClose, OpResetGPSProcessor:
		return nil, true

	case OpUnknown0D:
		return make([]byte, housekeepingSize), true

	case OpUnknown22, OpUnknown1F, OpUnknown23, OpUnknown1A:
		return make([]byte, wordSize), true

	case OpGetCurrentTime:
		return binary.BigEndian.AppendUint32(nil, 1700000000), true

	case OpGetProductID:
		return binary.BigEndian.AppendUint32(nil, 0x0000e001), true

	case OpGetBLEVersion:
		return binary.BigEndian.AppendUint32(nil, 218), true

	case OpGetFirmwareVersion:
		b := make([]byte, stringSize)
		copy(b, w.firmware)
		return b, true

	case OpResetDevice:
		return nil, false
	}
	return nil, true
}
