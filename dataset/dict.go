// Copyright 2026 gorse Project Authors
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

// Dict maps string identifiers to dense zero-based indices in first-seen order and back. It also
// counts how many times each identifier has been observed.
type Dict struct {
	si  map[string]int32
	is  []string
	cnt []int
}

func NewDict() *Dict {
	return &Dict{si: map[string]int32{}}
}

// FitDict builds a dictionary from ids. Repeated ids keep the index of their first occurrence.
func FitDict(ids []string) *Dict {
	d := NewDict()
	for _, id := range ids {
		d.Add(id)
	}
	return d
}

func (d *Dict) Count() int32 {
	return int32(len(d.is))
}

// Add registers s without counting it and returns its index.
func (d *Dict) Add(s string) int32 {
	if y, ok := d.si[s]; ok {
		return y
	}
	y := int32(len(d.is))
	d.si[s] = y
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, 0)
	return y
}

// Observe registers s if needed and increases its frequency.
func (d *Dict) Observe(s string) int32 {
	y := d.Add(s)
	d.cnt[y]++
	return y
}

// Id returns the index of s.
func (d *Dict) Id(s string) (int32, bool) {
	y, ok := d.si[s]
	return y, ok
}

func (d *Dict) String(id int32) (string, bool) {
	if id < 0 || int(id) >= len(d.is) {
		return "", false
	}
	return d.is[id], true
}

func (d *Dict) Freq(id int32) int {
	if id < 0 || int(id) >= len(d.cnt) {
		return 0
	}
	return d.cnt[id]
}

// Ids returns all identifiers ordered by index.
func (d *Dict) Ids() []string {
	ids := make([]string, len(d.is))
	copy(ids, d.is)
	return ids
}
