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
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestCSVSinkRendering(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCSVSink(&buf)
	rows := []struct {
		substep Substep
		tick    int
		attr    string
		value   *Value
	}{
		{SubstepStep, 1, "biomass", NewScalar(2.5, MustParseUnits("kg"))},
		{SubstepEnd, 1, "onFire", NewBool(false)},
		{SubstepStep, 2, "label", NewString("dry")},
	}
	for _, row := range rows {
		if err := sink.Write(row.substep, row.tick, row.attr, row.value); err != nil {
			t.Fatal(err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	want := "tick,substep,attribute,value,units\n" +
		"1,step,biomass,2.5,kg\n" +
		"1,end,onFire,false,\n" +
		"2,step,label,dry,\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestCSVFileSink(t *testing.T) {
	dir, err := ioutil.TempDir("", "joshexport")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	name := filepath.Join(dir, "out.csv")
	sink, err := NewCSVFileSink(name)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(SubstepStep, 3, "age", NewScalar(7, MustParseUnits("year"))); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "3,step,age,7,year") {
		t.Errorf("file contents:\n%s", b)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.Out = &buf
	sink := NewLogSink(logger)
	if err := sink.Write(SubstepStep, 2, "grassCover", NewScalar(0.12, Dimless)); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"grassCover", "tick=2", "substep=step"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
