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

package joshutil

import (
	"context"
	"fmt"
	"os"

	"github.com/SchmidtDSE/josh"
	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
)

// ProgramLoader produces the compiled program the run command
// executes. The front-end compiler installs it; the default reports
// that no compiler is linked in.
var ProgramLoader = func(cfg *viper.Viper) (*josh.Program, error) {
	return nil, fmt.Errorf("joshutil: no model compiler is linked into this binary")
}

// Cfg holds configuration information for the command tree.
type Cfg struct {
	*viper.Viper

	Root, versionCmd, runCmd *cobra.Command
}

// InitializeConfig builds the josh command tree.
func InitializeConfig() *Cfg {
	cfg := &Cfg{
		Viper: viper.New(),
	}

	// Root is the main command.
	cfg.Root = &cobra.Command{
		Use:   "josh",
		Short: "An engine for agent-based ecological simulations.",
		Long: `Josh runs spatially explicit, agent-based ecological simulations
authored in the Josh modelling language.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'JOSH_var' where 'var' is
the name of the variable to be set.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setConfig(cfg)
		},
	}
	cfg.Root.PersistentFlags().String("config", "", "path to the configuration file")

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this version of Josh.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Josh v%s\n", josh.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a simulation.",
		Long: `run executes every replicate of the configured simulation,
streaming exports to the configured target after each substep.`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cfg)
		},
	}

	flags := cfg.runCmd.Flags()
	flags.Int("grid.low", 0, "inclusive lower grid cell coordinate on both axes")
	flags.Int("grid.high", 10, "exclusive upper grid cell coordinate on both axes")
	flags.Float64("grid.size", 1000, "edge length one grid cell stands for [m]")
	flags.Int("steps.low", 0, "first tick, inclusive")
	flags.Int("steps.high", 10, "last tick, inclusive")
	flags.Int64("seed", 0, "seed for the replicate random streams")
	flags.Int("replicates", 1, "number of independent replicates")
	flags.String("export.template", "", "export target; '{replicate}' expands to the replicate number")
	for _, name := range []string{"grid.low", "grid.high", "grid.size", "steps.low",
		"steps.high", "seed", "replicates", "export.template"} {
		cfg.BindPFlag(name, flags.Lookup(name))
	}
	cfg.BindPFlag("config", cfg.Root.PersistentFlags().Lookup("config"))

	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("JOSH")
	cfg.AutomaticEnv()

	cfg.Root.AddCommand(cfg.versionCmd, cfg.runCmd)
	return cfg
}

// setConfig finds and reads in the configuration file, if there is
// one.
func setConfig(cfg *Cfg) error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("joshutil: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Run loads the program, then executes every replicate.
func Run(cfg *Cfg) error {
	simConfig, err := SimulationConfig(cfg.Viper)
	if err != nil {
		return err
	}
	program, err := ProgramLoader(cfg.Viper)
	if err != nil {
		return err
	}
	defer program.Close()
	Logger.WithField("replicates", simConfig.Replicates).Info("starting simulation")
	err = josh.RunReplicates(context.Background(), simConfig, program,
		func(replicate int) ([]josh.ExportSink, error) {
			return Sinks(simConfig.ExportTemplate, replicate)
		})
	if err != nil {
		return err
	}
	Logger.Info("simulation completed")
	return nil
}
