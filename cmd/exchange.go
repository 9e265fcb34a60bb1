/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/ghostzones/InputParameters"
	"github.com/notargets/ghostzones/exchange"
	"github.com/notargets/ghostzones/model_problems/BlockGrid"
)

type ExchangeRun struct {
	InputFile  string
	ProfileDir string
	Perf       bool
}

// ExchangeCmd represents the exchange command
var ExchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Run a block grid scenario through every exchange and verify the halos",
	Long: `Reads a YAML scenario, partitions its domains over in-process ranks, runs the
mesh, field, material and ghost flag exchanges, then checks every halo entry
against the value its owning domain holds.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			er  = &ExchangeRun{}
		)
		if er.InputFile, err = cmd.Flags().GetString("inputFile"); err != nil {
			panic(err)
		}
		er.ProfileDir, _ = cmd.Flags().GetString("profile")
		er.Perf, _ = cmd.Flags().GetBool("perf")
		ip := readScenario(er.InputFile)
		ip.Print()
		if err = RunExchange(er, ip); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

const exampleScenario = `
########################################
Title: "Four block test"
MeshType: Rectilinear # or Curvilinear
Cells: [16, 16, 0]
Blocks: [2, 2, 1]
NumProcs: 2
Partition: metis # or block, single
Inactive: [3]
Materials: true
GhostNodes: true
Fields:
  - {Name: pressure, Centering: Zonal, Kind: Float32}
  - {Name: velocity, Centering: Nodal, NComp: 3}
########################################
`

func readScenario(file string) (ip *InputParameters.Scenario) {
	var (
		err  error
		data []byte
	)
	ip = InputParameters.NewScenario()
	if len(file) == 0 {
		fmt.Printf("no scenario file (-I, --inputFile), running the default scenario\n")
		fmt.Printf("Example File:%s\n", exampleScenario)
		return
	}
	if data, err = os.ReadFile(file); err != nil {
		panic(err)
	}
	if err = ip.Parse(data); err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	return
}

func init() {
	rootCmd.AddCommand(ExchangeCmd)
	ExchangeCmd.Flags().StringP("inputFile", "I", "", "YAML scenario file")
	ExchangeCmd.Flags().String("profile", "", "write a CPU profile into this directory")
	ExchangeCmd.Flags().Bool("perf", false, "count CPU instructions of the run (linux only)")
}

func RunExchange(er *ExchangeRun, ip *InputParameters.Scenario) (err error) {
	var (
		reps []*BlockGrid.Report
		bg   *BlockGrid.BlockGrid
	)
	if bg, err = BlockGrid.NewBlockGrid(ip, newLogger()); err != nil {
		return
	}
	fmt.Println(bg)
	if er.ProfileDir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(er.ProfileDir)).Stop()
	}
	opts := exchange.Options{ValidateOrder: viper.GetBool("validate-order")}
	run := func() (err error) {
		reps, err = bg.RunLocal(viper.GetDuration("timeout"), opts)
		return
	}
	if er.Perf {
		var instructions uint64
		if instructions, err = countInstructions(run); err != nil {
			return
		}
		fmt.Printf("%d CPU instructions\n", instructions)
	} else if err = run(); err != nil {
		return
	}
	for _, rep := range reps {
		fmt.Printf("rank %d: %v, %v\n", rep.Rank, rep.Stats, rep.Elapsed)
		for _, dr := range rep.Domains {
			fmt.Printf("\tdomain %3d: %5d cells -> %5d, %4d ghost, %4d gap, mixlen %d\n",
				dr.ID, dr.OldCells, dr.NewCells, dr.GhostCells, dr.GapCells, dr.Mixlen)
		}
	}
	fmt.Println(BlockGrid.Summarize(reps))
	return
}
