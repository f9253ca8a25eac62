package wire

import (
	"testing"

	"github.com/chrysalis/peer-sampling-service/pkg/descriptor"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	codec := NewCodec(6)
	m := Message{
		Sender: 3,
		Buffer: []descriptor.Descriptor{
			{Rank: 7, Age: 0},
			{Rank: 2, Age: 1},
		},
	}

	packed, err := codec.Pack(m)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if len(packed) != codec.Size() {
		t.Fatalf("expected packed length %d, got %d", codec.Size(), len(packed))
	}

	unpacked, err := codec.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if unpacked.Sender != m.Sender {
		t.Errorf("expected sender %d, got %d", m.Sender, unpacked.Sender)
	}
	if len(unpacked.Buffer) != len(m.Buffer) {
		t.Fatalf("expected %d descriptors, got %d", len(m.Buffer), len(unpacked.Buffer))
	}
	for i := range m.Buffer {
		if unpacked.Buffer[i] != m.Buffer[i] {
			t.Errorf("descriptor %d: expected %+v, got %+v", i, m.Buffer[i], unpacked.Buffer[i])
		}
	}
}

func TestPaddingRoundTrip(t *testing.T) {
	// Scenario 2 from the spec: c=4, buffer = [(9,3)].
	codec := NewCodec(4)
	m := Message{Sender: 0, Buffer: []descriptor.Descriptor{{Rank: 9, Age: 3}}}

	packed, err := codec.Pack(m)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	wantSize := intSize + 3*2*intSize // sizeof_int + 3*sizeof_descriptor
	if len(packed) != wantSize {
		t.Fatalf("expected packed size %d, got %d", wantSize, len(packed))
	}

	unpacked, err := codec.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if unpacked.Sender != 0 {
		t.Errorf("expected sender 0, got %d", unpacked.Sender)
	}
	if len(unpacked.Buffer) != 1 || unpacked.Buffer[0] != (descriptor.Descriptor{Rank: 9, Age: 3}) {
		t.Errorf("expected buffer [(9,3)], got %+v", unpacked.Buffer)
	}
}

func TestPackRejectsOversizedBuffer(t *testing.T) {
	codec := NewCodec(4) // bufferSlots() == 3
	m := Message{Sender: 0, Buffer: make([]descriptor.Descriptor, 4)}
	if _, err := codec.Pack(m); err == nil {
		t.Error("expected Pack to reject a buffer exceeding the slot count")
	}
}

func TestUnpackRejectsWrongSize(t *testing.T) {
	codec := NewCodec(6)
	if _, err := codec.Unpack([]byte{1, 2, 3}); err == nil {
		t.Error("expected Unpack to reject a buffer of the wrong size")
	}
}

func TestEmptyBufferRoundTrip(t *testing.T) {
	codec := NewCodec(8)
	m := Message{Sender: 5, Buffer: nil}

	packed, err := codec.Pack(m)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	unpacked, err := codec.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if len(unpacked.Buffer) != 0 {
		t.Errorf("expected an empty buffer, got %+v", unpacked.Buffer)
	}
}
