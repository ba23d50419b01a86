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

package base

import (
	"bufio"
	"strings"

	"github.com/juju/errors"
)

// ReadLines splits each record of a CSV stream into fields and passes them to
// handler with the zero-based record number. Quoted fields may contain the
// separator, doubled quotes and line breaks. Reading stops at the first error
// returned by handler.
func ReadLines(sc *bufio.Scanner, sep rune, handler func(int, []string) error) error {
	lineCount := 0
	fields := make([]string, 0)
	builder := strings.Builder{}
	quoted := false
	for sc.Scan() {
		line := []rune(sc.Text())
		if quoted {
			builder.WriteString("\r\n")
		}
		for i := 0; i < len(line); i++ {
			switch {
			case line[i] == sep && !quoted:
				fields = append(fields, builder.String())
				builder.Reset()
			case line[i] == '"' && quoted:
				if i+1 < len(line) && line[i+1] == '"' {
					i++
					builder.WriteRune('"')
				} else {
					quoted = false
				}
			case line[i] == '"':
				quoted = true
			default:
				builder.WriteRune(line[i])
			}
		}
		if quoted {
			continue
		}
		fields = append(fields, builder.String())
		builder.Reset()
		if err := handler(lineCount, fields); err != nil {
			return errors.Trace(err)
		}
		fields = make([]string, 0)
		lineCount++
	}
	if quoted {
		return errors.NotValidf("unterminated quote at record %d", lineCount)
	}
	return errors.Trace(sc.Err())
}
