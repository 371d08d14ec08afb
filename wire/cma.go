// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package wire

import (
	"encoding/binary"
	"fmt"
)

// cmaInfoLen is the fixed encoded size of a CMAInfo: 4 pid + 8 addr + 8
// length.
const cmaInfoLen = 4 + 8 + 8

// CMAInfo is the control-plane payload a cma channel's sender attaches to
// its Reply, telling the receiver where and how much to copy from the
// sender's address space.
type CMAInfo struct {
	RemotePID    int32
	RemoteAddr   uint64
	RemoteLength uint64
}

// Encode appends the wire encoding of c to buf and returns the result.
func (c CMAInfo) Encode(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(c.RemotePID))
	buf = binary.BigEndian.AppendUint64(buf, c.RemoteAddr)
	return binary.BigEndian.AppendUint64(buf, c.RemoteLength)
}

// Bytes returns the fixed-length encoding of c.
func (c CMAInfo) Bytes() []byte { return c.Encode(make([]byte, 0, cmaInfoLen)) }

// DecodeCMAInfo parses the encoding produced by CMAInfo.Encode/Bytes.
func DecodeCMAInfo(b []byte) (CMAInfo, error) {
	if len(b) != cmaInfoLen {
		return CMAInfo{}, fmt.Errorf("wire: cma info has wrong length %d, want %d", len(b), cmaInfoLen)
	}
	return CMAInfo{
		RemotePID:    int32(binary.BigEndian.Uint32(b[0:4])),
		RemoteAddr:   binary.BigEndian.Uint64(b[4:12]),
		RemoteLength: binary.BigEndian.Uint64(b[12:20]),
	}, nil
}

// CMAInfoLen exposes cmaInfoLen for callers that need to size a read buffer.
func CMAInfoLen() int { return cmaInfoLen }
