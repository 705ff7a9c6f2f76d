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

// Package joshutil wires configuration files, command-line flags and
// export targets to the josh runtime.
package joshutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SchmidtDSE/josh"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// SimulationConfig unmarshals a viper configuration into the runtime's
// run parameters. Paths and templates may contain environment
// variables.
func SimulationConfig(cfg *viper.Viper) (josh.SimulationConfig, error) {
	c := josh.SimulationConfig{
		GridLow:        cast.ToInt(cfg.Get("grid.low")),
		GridHigh:       cast.ToInt(cfg.Get("grid.high")),
		CellSize:       cast.ToFloat64(cfg.Get("grid.size")),
		StepsLow:       cast.ToInt(cfg.Get("steps.low")),
		StepsHigh:      cast.ToInt(cfg.Get("steps.high")),
		Seed:           cast.ToInt64(cfg.Get("seed")),
		Replicates:     cast.ToInt(cfg.Get("replicates")),
		ExportTemplate: os.ExpandEnv(cast.ToString(cfg.Get("export.template"))),
	}
	if c.CellSize == 0 {
		c.CellSize = 1000 // m
	}
	if c.GridHigh <= c.GridLow {
		return c, fmt.Errorf("joshutil: grid.high (%d) must be greater than grid.low (%d)",
			c.GridHigh, c.GridLow)
	}
	return c, nil
}

// expandTemplate replaces the {replicate} placeholder in an export
// target template.
func expandTemplate(template string, replicate int) string {
	return strings.Replace(template, "{replicate}", strconv.Itoa(replicate), -1)
}

// Sinks creates the export sinks for one replicate from the export
// target template. A target ending in ".csv" streams CSV to that
// file; the special target "log" emits structured log records; an
// empty template exports nothing.
func Sinks(template string, replicate int) ([]josh.ExportSink, error) {
	if template == "" {
		return nil, nil
	}
	target := expandTemplate(template, replicate)
	if target == "log" {
		return []josh.ExportSink{josh.NewLogSink(Logger)}, nil
	}
	if strings.HasSuffix(target, ".csv") {
		if err := os.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
			return nil, err
		}
		sink, err := josh.NewCSVFileSink(target)
		if err != nil {
			return nil, err
		}
		return []josh.ExportSink{sink}, nil
	}
	return nil, fmt.Errorf("joshutil: unsupported export target %q", target)
}
