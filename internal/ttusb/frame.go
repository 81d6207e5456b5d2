package ttusb

import "fmt"

// EncodeRequest builds a request frame.
//
// Frame layout (PacketSize bytes, zero padded):
//
//	[MARKER][LEN][COUNTER][OPCODE][PAYLOAD...]
//
// LEN counts the bytes following it up to the end of the payload.
func EncodeRequest(counter, opcode byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidArgument, len(payload), MaxPayload)
	}
	frame := make([]byte, PacketSize)
	frame[0] = RequestMarker
	frame[1] = byte(len(payload) + 2)
	frame[2] = counter
	frame[3] = opcode
	copy(frame[headerSize:], payload)
	return frame, nil
}

// EncodeResponse builds a response frame. It is the device side of
// EncodeRequest and is used by simulators and tests.
func EncodeResponse(counter, opcode byte, payload []byte) ([]byte, error) {
	frame, err := EncodeRequest(counter, opcode, payload)
	if err != nil {
		return nil, err
	}
	frame[0] = ResponseMarker
	return frame, nil
}

// DecodeResponse validates a response frame against the request that
// produced it and returns its payload.
//
// Validation order is marker, length, counter, opcode. respLen is the
// expected payload length; it is not enforced when the resulting frame
// length reaches largeResponse.
func DecodeResponse(frame []byte, counter, opcode byte, respLen int) ([]byte, error) {
	if len(frame) < headerSize {
		return nil, &FrameError{Kind: KindLength, Opcode: opcode, Expected: respLen + 2, Actual: len(frame)}
	}
	if frame[0] != ResponseMarker {
		return nil, &FrameError{Kind: KindMarker, Opcode: opcode, Expected: ResponseMarker, Actual: int(frame[0])}
	}

	n := int(frame[1])
	want := respLen + 2
	switch {
	case n < 2 || n+2 > len(frame):
		return nil, &FrameError{Kind: KindLength, Opcode: opcode, Expected: want, Actual: n}
	case want < largeResponse && n != want:
		return nil, &FrameError{Kind: KindLength, Opcode: opcode, Expected: want, Actual: n}
	}

	if frame[2] != counter {
		return nil, &FrameError{Kind: KindCounter, Opcode: opcode, Expected: int(counter), Actual: int(frame[2])}
	}
	if op := responseOpcode(opcode); frame[3] != op {
		return nil, &FrameError{Kind: KindOpcode, Opcode: opcode, Expected: int(op), Actual: int(frame[3])}
	}

	return frame[headerSize : n+2], nil
}

// DecodeRequest splits a request frame into its counter, opcode and payload.
func DecodeRequest(frame []byte) (counter, opcode byte, payload []byte, err error) {
	if len(frame) < headerSize || frame[0] != RequestMarker {
		return 0, 0, nil, fmt.Errorf("%w: not a request frame", ErrInvalidArgument)
	}
	n := int(frame[1])
	if n < 2 || n+2 > len(frame) {
		return 0, 0, nil, fmt.Errorf("%w: request length %d", ErrInvalidArgument, n)
	}
	return frame[2], frame[3], frame[headerSize : n+2], nil
}
