// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package serialize

// Codec defines how to serialize values of one semantic wire type T: exactly
// one Codec[T] should exist per type, providing how to write a T to any
// Writer and read one back from any Reader. FixedSize reports whether every
// encoded T occupies the same number of bytes and, if so, how many.
type Codec[T any] interface {
	Write(w Writer, v T)
	Read(r Reader) T
	FixedSize() (size int, ok bool)
}

// RoundTrip serializes v with c into a fresh ByteWriter and immediately
// deserializes it, returning the reconstructed value.
func RoundTrip[T any](c Codec[T], v T) T {
	w := NewByteWriter(nil)
	c.Write(w, v)
	r := NewByteReader(w.Bytes())
	return c.Read(r)
}
