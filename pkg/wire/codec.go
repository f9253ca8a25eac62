// Package wire implements the fixed-size, padded binary message format
// exchanged between peer sampling service nodes. The layout mirrors the
// original MPI-packed representation closely enough that pack-then-unpack is
// the identity on any message within the size bound that contains no
// descriptor.Null entries, while using
// encoding/binary instead of an MPI-specific packer.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/chrysalis/peer-sampling-service/pkg/descriptor"
)

// intSize is the width, in bytes, of every integer field on the wire.
const intSize = 4

var order = binary.LittleEndian

// Message is a gossip exchange message: the sender's rank plus the
// descriptors it is offering.
type Message struct {
	Sender int
	Buffer []descriptor.Descriptor
}

// Codec packs and unpacks Messages for a fixed view-size parameter c. Every
// message it produces has exactly Size() bytes, which is what lets a
// transport use a single fixed-length receive buffer.
type Codec struct {
	c int
}

// NewCodec returns a codec for view target size c. Panics if c < 2, matching
// the construction-time constraint the rest of the service enforces.
func NewCodec(c int) Codec {
	if c < 2 {
		panic(fmt.Sprintf("wire: c must be >= 2, got %d", c))
	}
	return Codec{c: c}
}

// bufferSlots is the fixed number of descriptor records in every message:
// c/2 + 1, which holds pkg/gossip.ToSend's output (at most c/2 entries).
func (codec Codec) bufferSlots() int {
	return codec.c/2 + 1
}

// Size returns the fixed on-wire size, in bytes, of any message under this
// codec: one sender int plus bufferSlots() descriptor records of two ints
// each.
func (codec Codec) Size() int {
	return intSize + codec.bufferSlots()*2*intSize
}

// Pack encodes m into a Size()-byte buffer, padding m.Buffer with
// descriptor.Null up to bufferSlots() entries.
func (codec Codec) Pack(m Message) ([]byte, error) {
	slots := codec.bufferSlots()
	if len(m.Buffer) > slots {
		return nil, fmt.Errorf("wire: buffer has %d descriptors, exceeds %d slots for c=%d", len(m.Buffer), slots, codec.c)
	}

	buf := make([]byte, 0, codec.Size())
	out := bytes.NewBuffer(buf)

	if err := binary.Write(out, order, int32(m.Sender)); err != nil {
		return nil, err
	}

	for i := 0; i < slots; i++ {
		d := descriptor.Null
		if i < len(m.Buffer) {
			d = m.Buffer[i]
		}
		if err := binary.Write(out, order, int32(d.Rank)); err != nil {
			return nil, err
		}
		if err := binary.Write(out, order, int32(d.Age)); err != nil {
			return nil, err
		}
	}

	return out.Bytes(), nil
}

// Unpack decodes data, produced by a Codec with the same c, back into a
// Message. All descriptor.Null padding entries are stripped from the
// resulting buffer, comparing both the rank and age fields (not the
// single-field comparison the original source accidentally used).
func (codec Codec) Unpack(data []byte) (Message, error) {
	if len(data) != codec.Size() {
		return Message{}, fmt.Errorf("wire: message is %d bytes, expected %d for c=%d", len(data), codec.Size(), codec.c)
	}

	r := bytes.NewReader(data)
	var sender int32
	if err := binary.Read(r, order, &sender); err != nil {
		return Message{}, err
	}

	slots := codec.bufferSlots()
	buffer := make([]descriptor.Descriptor, 0, slots)
	for i := 0; i < slots; i++ {
		var rank, age int32
		if err := binary.Read(r, order, &rank); err != nil {
			return Message{}, err
		}
		if err := binary.Read(r, order, &age); err != nil {
			return Message{}, err
		}
		d := descriptor.Descriptor{Rank: int(rank), Age: int(age)}
		if !d.IsNull() {
			buffer = append(buffer, d)
		}
	}

	return Message{Sender: int(sender), Buffer: buffer}, nil
}
