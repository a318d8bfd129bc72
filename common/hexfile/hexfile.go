//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Package hexfile parses Intel HEX images into address-sorted segments.
package hexfile

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"sort"

	"github.com/juju/errors"
)

// Segment is a contiguous run of image data.
type Segment struct {
	Addr uint32
	Data []byte
}

type Image struct {
	Segments []*Segment
	Start    uint32
}

const (
	recData          = 0x00
	recEOF           = 0x01
	recExtSegAddr    = 0x02
	recStartSegAddr  = 0x03
	recExtLinearAddr = 0x04
	recStartLinear   = 0x05
)

// Parse decodes Intel HEX data. Segments closer than maxGapSize bytes are
// merged, with the gap filled with the fill byte (0xff for flash images).
func Parse(data []byte, fill byte, maxGapSize int) (*Image, error) {
	im := &Image{}
	var segs []*Segment
	var base uint32
	eof := false
	lineNo := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lineNo++
		l := bytes.TrimSpace(scanner.Bytes())
		if len(l) == 0 {
			continue
		}
		if eof {
			return nil, errors.Errorf("line %d: data after EOF record", lineNo)
		}
		if l[0] != ':' {
			return nil, errors.Errorf("line %d: invalid start of the line", lineNo)
		}
		rec, err := hex.DecodeString(string(l[1:]))
		if err != nil {
			return nil, errors.Annotatef(err, "line %d: error decoding record body", lineNo)
		}
		// len, offset(2), type, payload, checksum
		if len(rec) < 5 {
			return nil, errors.Errorf("line %d: record too short (%d)", lineNo, len(rec))
		}
		recLen := int(rec[0])
		if len(rec) != recLen+5 {
			return nil, errors.Errorf("line %d: invalid record length %d", lineNo, recLen)
		}
		var cs uint8
		for _, b := range rec[:len(rec)-1] {
			cs += b
		}
		cs = ^cs + 1
		if cs != rec[len(rec)-1] {
			return nil, errors.Errorf("line %d: invalid checksum (want %02x, got %02x)", lineNo, rec[len(rec)-1], cs)
		}
		offset := uint32(rec[1])<<8 | uint32(rec[2])
		payload := rec[4 : 4+recLen]
		switch rec[3] {
		case recData:
			seg := &Segment{Addr: base + offset}
			seg.Data = append(seg.Data, payload...)
			segs = append(segs, seg)
		case recEOF:
			eof = true
		case recExtSegAddr:
			if recLen != 2 {
				return nil, errors.Errorf("line %d: invalid segment address record", lineNo)
			}
			base = (uint32(payload[0])<<8 | uint32(payload[1])) << 4
		case recExtLinearAddr:
			if recLen != 2 {
				return nil, errors.Errorf("line %d: invalid linear address record", lineNo)
			}
			base = (uint32(payload[0])<<8 | uint32(payload[1])) << 16
		case recStartSegAddr, recStartLinear:
			if recLen != 4 {
				return nil, errors.Errorf("line %d: invalid start address record", lineNo)
			}
			im.Start = uint32(payload[0])<<24 | uint32(payload[1])<<16 |
				uint32(payload[2])<<8 | uint32(payload[3])
		default:
			return nil, errors.Errorf("line %d: unsupported record type %d", lineNo, rec[3])
		}
	}
	if !eof {
		return nil, errors.Errorf("no EOF record")
	}
	im.Segments = coalesce(segs, fill, maxGapSize)
	return im, nil
}

func coalesce(segs []*Segment, fill byte, maxGapSize int) []*Segment {
	sort.Slice(segs, func(i, j int) bool { return segs[i].Addr < segs[j].Addr })
	var res []*Segment
	for _, s := range segs {
		if len(res) > 0 {
			prev := res[len(res)-1]
			prevEnd := prev.Addr + uint32(len(prev.Data))
			if s.Addr >= prevEnd && s.Addr-prevEnd <= uint32(maxGapSize) {
				for a := prevEnd; a < s.Addr; a++ {
					prev.Data = append(prev.Data, fill)
				}
				prev.Data = append(prev.Data, s.Data...)
				continue
			}
		}
		res = append(res, s)
	}
	return res
}
