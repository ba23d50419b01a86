// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

// NotId represents an ID doesn't exist.
const NotId = int32(-1)

// FreqDict maps external ids to dense positions and counts ratings per position.
// Positions are assigned in order of first appearance and never reused.
type FreqDict struct {
	si  map[int]int32
	is  []int
	cnt []int
}

func NewFreqDict() *FreqDict {
	return &FreqDict{si: map[int]int32{}}
}

func (d *FreqDict) Count() int {
	return len(d.is)
}

// Id returns the position of an id and allocates one if the id is new.
func (d *FreqDict) Id(id int) int32 {
	if y, ok := d.si[id]; ok {
		return y
	}
	y := int32(len(d.is))
	d.si[id] = y
	d.is = append(d.is, id)
	d.cnt = append(d.cnt, 0)
	return y
}

// Lookup returns the position of an id or NotId.
func (d *FreqDict) Lookup(id int) int32 {
	if y, ok := d.si[id]; ok {
		return y
	}
	return NotId
}

func (d *FreqDict) Contains(id int) bool {
	_, ok := d.si[id]
	return ok
}

// External returns the id stored at a position.
func (d *FreqDict) External(pos int32) int {
	return d.is[pos]
}

func (d *FreqDict) Freq(pos int32) int {
	if int(pos) >= len(d.cnt) {
		return 0
	}
	return d.cnt[pos]
}

func (d *FreqDict) inc(pos int32) {
	d.cnt[pos]++
}
