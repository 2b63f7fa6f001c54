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

package tensor

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

// readLines parses fields of each line for csv text. Double quotes group a field and
// "" escapes a quote inside a quoted field.
func readLines(sc *bufio.Scanner, sep rune, handler func(int, []string) error) error {
	lineCount := 0
	fields := make([]string, 0)
	builder := strings.Builder{}
	quoted := false
	for sc.Scan() {
		line := []rune(sc.Text())
		if quoted {
			builder.WriteString("\n")
		}
		for i := 0; i < len(line); i++ {
			switch {
			case line[i] == sep && !quoted:
				fields = append(fields, builder.String())
				builder.Reset()
			case line[i] == '"':
				if quoted && i+1 < len(line) && line[i+1] == '"' {
					i++
					builder.WriteRune('"')
				} else {
					quoted = !quoted
				}
			default:
				builder.WriteRune(line[i])
			}
		}
		if !quoted {
			fields = append(fields, builder.String())
			builder.Reset()
			if err := handler(lineCount, fields); err != nil {
				return err
			}
			fields = []string{}
		}
		lineCount++
	}
	return sc.Err()
}

// LoadCSV reads a tensor in coordinate format. Every line holds the zero-based index
// of each mode followed by the value, e.g. "i,j,k,value". Empty lines and lines
// starting with '#' are skipped, a first line that does not start with an integer is
// treated as a header. With a nil shape the size of every mode is inferred from the
// largest index. Repeated coordinates are summed.
func LoadCSV(r io.Reader, sep rune, shape []int) (*Dense, error) {
	var (
		indices [][]int
		values  []float64
		modes   = len(shape)
	)
	sc := bufio.NewScanner(r)
	err := readLines(sc, sep, func(lineNo int, fields []string) error {
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" ||
			strings.HasPrefix(strings.TrimSpace(fields[0]), "#") {
			return nil
		}
		if lineNo == 0 {
			if _, err := strconv.Atoi(strings.TrimSpace(fields[0])); err != nil {
				return nil
			}
		}
		if modes == 0 {
			modes = len(fields) - 1
		}
		if modes < 1 || len(fields) != modes+1 {
			return errors.NotValidf("line %d has %d fields for %d modes", lineNo+1, len(fields), modes)
		}
		index := make([]int, modes)
		for k := range index {
			i, err := strconv.Atoi(strings.TrimSpace(fields[k]))
			if err != nil {
				return errors.Annotatef(err, "line %d", lineNo+1)
			}
			if i < 0 || shape != nil && i >= shape[k] {
				return errors.NotValidf("line %d index %d of mode %d", lineNo+1, i, k)
			}
			index[k] = i
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[modes]), 64)
		if err != nil {
			return errors.Annotatef(err, "line %d", lineNo+1)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NotValidf("line %d value %v", lineNo+1, v)
		}
		indices = append(indices, index)
		values = append(values, v)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(indices) == 0 && shape == nil {
		return nil, errors.NotValidf("empty tensor without shape")
	}
	if shape == nil {
		shape = make([]int, modes)
		for _, index := range indices {
			for k, i := range index {
				shape[k] = max(shape[k], i+1)
			}
		}
	}
	t, err := New(shape, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for n, index := range indices {
		l := t.offset(index)
		t.data[l] += values[n]
		if t.data[l] < 0 || math.IsInf(t.data[l], 0) {
			return nil, errors.NotValidf("value %v at %v", t.data[l], index)
		}
	}
	return t, nil
}

// WriteCSV writes the nonzero elements of a tensor in coordinate format.
func WriteCSV(w io.Writer, t *Dense, sep rune) error {
	bw := bufio.NewWriter(w)
	index := make([]int, len(t.shape))
	for _, v := range t.data {
		if v != 0 {
			fields := lo.Map(index, func(i int, _ int) string { return strconv.Itoa(i) })
			fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
			if _, err := fmt.Fprintln(bw, strings.Join(fields, string(sep))); err != nil {
				return errors.Trace(err)
			}
		}
		t.next(index)
	}
	return errors.Trace(bw.Flush())
}
