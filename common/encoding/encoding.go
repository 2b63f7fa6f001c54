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

package encoding

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

// maxDenseElements bounds the size of a decoded matrix (2 GiB of float64).
const maxDenseElements = 1 << 28

// WriteDense writes the shape and row-major elements of a matrix.
func WriteDense(w io.Writer, m *mat.Dense) error {
	r, c := m.Dims()
	if err := binary.Write(w, binary.LittleEndian, [2]int64{int64(r), int64(c)}); err != nil {
		return errors.Trace(err)
	}
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadDense reads a matrix written by WriteDense.
func ReadDense(r io.Reader) (*mat.Dense, error) {
	var shape [2]int64
	if err := binary.Read(r, binary.LittleEndian, &shape); err != nil {
		return nil, errors.Trace(err)
	}
	if shape[0] <= 0 || shape[1] <= 0 || shape[0] > maxDenseElements/shape[1] {
		return nil, errors.NotValidf("matrix shape %v", shape)
	}
	data := make([]float64, shape[0]*shape[1])
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, errors.Trace(err)
	}
	return mat.NewDense(int(shape[0]), int(shape[1]), data), nil
}

// WriteString writes string to byte stream.
func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

// ReadString reads string from byte stream.
func ReadString(r io.Reader) (string, error) {
	data, err := ReadBytes(r)
	return string(data), err
}

// WriteBytes writes bytes prefixed by their length.
func WriteBytes(w io.Writer, s []byte) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(s))); err != nil {
		return errors.Trace(err)
	}
	if _, err := w.Write(s); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// ReadBytes reads bytes written by WriteBytes.
func ReadBytes(r io.Reader) ([]byte, error) {
	var length int32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, errors.Trace(err)
	}
	if length < 0 {
		return nil, errors.NotValidf("byte length %d", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// WriteGob writes object to byte stream.
func WriteGob(w io.Writer, v any) error {
	buffer := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(buffer).Encode(v); err != nil {
		return errors.Trace(err)
	}
	return WriteBytes(w, buffer.Bytes())
}

// ReadGob read object from byte stream.
func ReadGob(r io.Reader, v any) error {
	data, err := ReadBytes(r)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(gob.NewDecoder(bytes.NewReader(data)).Decode(v))
}
