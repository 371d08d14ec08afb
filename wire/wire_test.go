// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package wire

import (
	"bytes"
	"testing"
)

func TestDescriptorRoundTrip(t *testing.T) {
	for _, id := range []uint64{0, 1, 42, 1 << 40, ^uint64(0)} {
		enc := EncodeDescriptor(id)
		got, err := DecodeDescriptor(enc)
		if err != nil {
			t.Fatalf("DecodeDescriptor(%d): %v", id, err)
		}
		if got != id {
			t.Errorf("DecodeDescriptor round trip: got %d, want %d", got, id)
		}
	}
}

func TestDecodeDescriptorRejectsGarbage(t *testing.T) {
	if _, err := DecodeDescriptor([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeDescriptor accepted a too-short input")
	}
	bad := EncodeDescriptor(5)
	bad[0] = 99
	if _, err := DecodeDescriptor(bad); err == nil {
		t.Error("DecodeDescriptor accepted an unknown version")
	}
}

func TestPacketRoundTrip(t *testing.T) {
	for _, p := range []*Packet{
		{Tag: TagRequest, OperationID: 7},
		{Tag: TagReply, OperationID: 1 << 33},
	} {
		var buf bytes.Buffer
		if _, err := p.WriteTo(&buf); err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		var got Packet
		if _, err := got.ReadFrom(&buf); err != nil {
			t.Fatalf("ReadFrom: %v", err)
		}
		if got != *p {
			t.Errorf("round trip: got %+v, want %+v", got, *p)
		}
	}
}

func TestPacketReadFromRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{'X', 'X', byte(TagRequest), 0, 0, 0, 0, 0, 0, 0, 1})
	var p Packet
	if _, err := p.ReadFrom(&buf); err == nil {
		t.Error("ReadFrom accepted bad magic")
	}
}

func TestPacketReadFromShortInput(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{'T', 'L'})
	var p Packet
	if _, err := p.ReadFrom(&buf); err == nil {
		t.Error("ReadFrom accepted truncated input")
	}
}
