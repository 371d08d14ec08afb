// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package wire implements the small self-framed binary encodings used to
// exchange descriptors and packets between tensor-exchange endpoints. Each
// encoding appends fixed-width fields to a byte slice and decodes them with
// a length check (there is no variable-length payload in a descriptor or a
// packet header, only an 8-byte operation id beside a version byte or a
// magic and tag).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// magic identifies the start of a framed Packet on the wire, guarding
// against stream desynchronisation the way the teacher's packet.go does
// with its 'C', 'P' magic bytes.
var magic = [2]byte{'T', 'L'}

// Tag distinguishes the three members of the Packet union.
type Tag byte

const (
	TagRequest Tag = 1
	TagReply   Tag = 2
	TagAck     Tag = 3
)

func (t Tag) String() string {
	switch t {
	case TagRequest:
		return "Request"
	case TagReply:
		return "Reply"
	case TagAck:
		return "Ack"
	default:
		return fmt.Sprintf("Tag(%d)", byte(t))
	}
}

// Packet is the wire-level Request{operation_id} / Reply{operation_id} /
// Ack{operation_id} tagged union exchanged over a Connection.
type Packet struct {
	Tag         Tag
	OperationID uint64
}

// packetLen is the fixed encoded size of a Packet: 2 magic + 1 tag + 8 id.
const packetLen = 2 + 1 + 8

// Encode appends the wire encoding of p to buf and returns the result.
func (p *Packet) Encode(buf []byte) []byte {
	buf = append(buf, magic[0], magic[1], byte(p.Tag))
	return binary.BigEndian.AppendUint64(buf, p.OperationID)
}

// WriteTo writes the encoding of p to w.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	var tmp [packetLen]byte
	enc := p.Encode(tmp[:0])
	n, err := w.Write(enc)
	return int64(n), err
}

// ReadFrom reads and decodes a single Packet from r, replacing p's contents.
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
	var buf [packetLen]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return int64(n), err
	}
	if buf[0] != magic[0] || buf[1] != magic[1] {
		return int64(n), fmt.Errorf("wire: bad packet magic %q", buf[:2])
	}
	p.Tag = Tag(buf[2])
	if p.Tag != TagRequest && p.Tag != TagReply && p.Tag != TagAck {
		return int64(n), fmt.Errorf("wire: unknown packet tag %d", buf[2])
	}
	p.OperationID = binary.BigEndian.Uint64(buf[3:])
	return int64(n), nil
}

// descriptorLen is the fixed encoded size of a Descriptor: 1 version byte +
// 8 id bytes.
const descriptorLen = 1 + 8

// descriptorVersion tags the descriptor encoding in case a future revision
// needs to add fields; readers reject any other value rather than
// silently misparsing.
const descriptorVersion = 1

// EncodeDescriptor returns the opaque out-of-band descriptor bytes for
// operationID. The enclosing pipe treats the result as opaque; only the
// channel that produced it (and its peer) ever decode it.
func EncodeDescriptor(operationID uint64) []byte {
	buf := make([]byte, 0, descriptorLen)
	buf = append(buf, descriptorVersion)
	return binary.BigEndian.AppendUint64(buf, operationID)
}

// DecodeDescriptor parses a descriptor produced by EncodeDescriptor.
func DecodeDescriptor(b []byte) (operationID uint64, err error) {
	if len(b) != descriptorLen {
		return 0, fmt.Errorf("wire: descriptor has wrong length %d, want %d", len(b), descriptorLen)
	}
	if b[0] != descriptorVersion {
		return 0, fmt.Errorf("wire: descriptor has unsupported version %d", b[0])
	}
	return binary.BigEndian.Uint64(b[1:]), nil
}
