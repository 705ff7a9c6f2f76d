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
	"encoding/gob"
	"fmt"
	"io"
)

// SaveDataVersion is the on-disk format version of saved patch state,
// checked when the data is loaded.
const SaveDataVersion = "1"

type savedValue struct {
	Attribute string
	Value     float64
	Units     string
}

type savedPatch struct {
	X, Y   int
	Values []savedValue
}

type savedSimulation struct {
	DataVersion string
	Tick        int
	Patches     []savedPatch
}

// Save returns a manipulator that writes the scalar patch state to a
// gob file (format description at https://golang.org/pkg/encoding/gob/).
// Non-scalar slots are skipped; saved state is a tooling and test
// fixture format, not cross-restart persistence of a running
// replicate.
func Save(w io.Writer) SimulationManipulator {
	return func(s *Simulation) error {
		patches := s.Patches()
		if len(patches) == 0 {
			return fmt.Errorf("josh.Simulation.Save: no patches to save")
		}
		data := savedSimulation{
			DataVersion: SaveDataVersion,
			Tick:        s.Tick(),
		}
		for _, p := range patches {
			sp := savedPatch{}
			sp.X, sp.Y = p.Location()
			for i, name := range p.Prototype().Attributes() {
				v := p.Slot(i)
				if v == nil || v.Kind() != ScalarValue {
					continue
				}
				sp.Values = append(sp.Values, savedValue{
					Attribute: name,
					Value:     v.num,
					Units:     v.Units().String(),
				})
			}
			data.Patches = append(data.Patches, sp)
		}
		e := gob.NewEncoder(w)
		if err := e.Encode(data); err != nil {
			return fmt.Errorf("josh.Simulation.Save: %v", err)
		}
		return nil
	}
}

// Load reads previously Saved patch state into a simulation whose grid
// matches the saved one.
func Load(r io.Reader) SimulationManipulator {
	return func(s *Simulation) error {
		dec := gob.NewDecoder(r)
		var data savedSimulation
		if err := dec.Decode(&data); err != nil {
			return fmt.Errorf("josh.Simulation.Load: %v", err)
		}
		if data.DataVersion != SaveDataVersion {
			return fmt.Errorf("josh saved data version %s is not compatible with "+
				"the required version %s", data.DataVersion, SaveDataVersion)
		}
		for _, sp := range data.Patches {
			p := s.current.patches.At(sp.X, sp.Y)
			if p == nil {
				return fmt.Errorf("josh.Simulation.Load: no patch at (%d, %d)", sp.X, sp.Y)
			}
			for _, sv := range sp.Values {
				i, ok := p.Prototype().AttributeIndex(sv.Attribute)
				if !ok {
					return fmt.Errorf("josh.Simulation.Load: patch has no attribute %q", sv.Attribute)
				}
				u, err := ParseUnits(sv.Units)
				if err != nil {
					return err
				}
				p.SetSlot(i, NewScalar(sv.Value, u))
			}
		}
		return nil
	}
}
