/*
Copyright © 2024 the Josh authors.
This file is part of Josh.

Josh is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Josh is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Josh.  If not, see <http://www.gnu.org/licenses/>.
*/

package josh

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ExportSink receives per-substep simulation exports. The sink renders
// values; the stepper flushes after every substep and closes sinks on
// all exit paths.
type ExportSink interface {
	Write(substep Substep, tick int, attribute string, value *Value) error
	Flush() error
	Close() error
}

// CSVSink streams exports as CSV rows of
// tick, substep, attribute, value, units.
type CSVSink struct {
	w      *csv.Writer
	closer io.Closer
	wrote  bool
}

// NewCSVSink writes CSV exports to w. If w is also an io.Closer it is
// closed with the sink.
func NewCSVSink(w io.Writer) *CSVSink {
	s := &CSVSink{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// NewCSVFileSink creates filename and streams CSV exports into it.
func NewCSVFileSink(filename string) (*CSVSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, newError(ErrExport, "creating %s: %s", filename, err)
	}
	return NewCSVSink(f), nil
}

func (s *CSVSink) Write(substep Substep, tick int, attribute string, value *Value) error {
	if !s.wrote {
		if err := s.w.Write([]string{"tick", "substep", "attribute", "value", "units"}); err != nil {
			return err
		}
		s.wrote = true
	}
	return s.w.Write([]string{
		strconv.Itoa(tick),
		substep.String(),
		attribute,
		renderValue(value),
		value.Units().String(),
	})
}

func (s *CSVSink) Flush() error {
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// renderValue formats a value for the CSV value column.
func renderValue(v *Value) string {
	switch v.Kind() {
	case ScalarValue:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case BoolValue:
		return strconv.FormatBool(v.b)
	case StringValue:
		return v.str
	case RealizedValue:
		return fmt.Sprintf("distribution(%d)", len(v.elems))
	default:
		return v.String()
	}
}

// LogSink emits exports as structured log records, mostly useful for
// interactive runs and tests.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink emits exports through the given logger.
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(substep Substep, tick int, attribute string, value *Value) error {
	s.logger.WithFields(logrus.Fields{
		"tick":      tick,
		"substep":   substep.String(),
		"attribute": attribute,
	}).Info(value.String())
	return nil
}

func (s *LogSink) Flush() error { return nil }

func (s *LogSink) Close() error { return nil }
