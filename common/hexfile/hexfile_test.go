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
package hexfile

import (
	"bytes"
	"testing"
)

type segTestCase struct {
	addr uint32
	data string
}

func TestParse(t *testing.T) {
	cases := []struct {
		data  string
		fail  bool
		start uint32
		segs  []segTestCase
	}{
		// 0 - empty input has no EOF record
		{data: "", fail: true},
		// 1 - plain data
		{data: `
:040000004F484149DB
:00000001FF
`,
			segs: []segTestCase{{addr: 0, data: "OHAI"}},
		},
		// 2 - extended linear address
		{data: `
:020000040800F2
:040000004F484149DB
:00000001FF
`,
			segs: []segTestCase{{addr: 0x8000000, data: "OHAI"}},
		},
		// 3 - extended segment address + linear start address
		{data: `
:020000021000EC
:040000004F484149DB
:04000005000123458E
:00000001FF
`,
			start: 0x12345,
			segs:  []segTestCase{{addr: 0x10000, data: "OHAI"}},
		},
		// 4 - adjacent records are coalesced
		{data: `
:020000040001F9
:040000004F484149DB
:0400040057544621E6
:00000001FF
`,
			segs: []segTestCase{{addr: 0x10000, data: "OHAI" + "WTF!"}},
		},
		// 5 - unsupported record type
		{data: `
:00000006FA
:00000001FF
`,
			fail: true,
		},
		// 6 - gap fill
		{data: `
:0100000041BE
:0100040042B9
:00000001FF
`,
			segs: []segTestCase{{addr: 0, data: "A\xff\xff\xffB"}},
		},
		// 7 - distant segments stay separate
		{data: `
:0100000041BE
:020000040001F9
:0100000042BD
:00000001FF
`,
			segs: []segTestCase{{addr: 0, data: "A"}, {addr: 0x10000, data: "B"}},
		},
		// 8 - bad checksum
		{data: `
:040000004F484149DC
:00000001FF
`,
			fail: true,
		},
		// 9 - truncated record
		{data: `
:04
:00000001FF
`,
			fail: true,
		},
		// 10 - data after EOF
		{data: `
:00000001FF
:0100000041BE
`,
			fail: true,
		},
	}
	for i, c := range cases {
		im, err := Parse([]byte(c.data), 0xff, 16)
		if c.fail {
			if err == nil {
				t.Errorf("%d: expected parse error", i)
			}
			continue
		}
		if err != nil {
			t.Errorf("%d: %s", i, err)
			continue
		}
		if im.Start != c.start {
			t.Errorf("%d: start: got 0x%x, want 0x%x", i, im.Start, c.start)
		}
		if len(im.Segments) != len(c.segs) {
			t.Errorf("%d: got %d segments, want %d", i, len(im.Segments), len(c.segs))
			continue
		}
		for j, want := range c.segs {
			got := im.Segments[j]
			if got.Addr != want.addr {
				t.Errorf("%d/%d: addr: got 0x%x, want 0x%x", i, j, got.Addr, want.addr)
			}
			if !bytes.Equal(got.Data, []byte(want.data)) {
				t.Errorf("%d/%d: data: got %q, want %q", i, j, got.Data, want.data)
			}
		}
	}
}
