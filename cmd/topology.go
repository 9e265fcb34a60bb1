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

	"github.com/spf13/cobra"

	"github.com/notargets/ghostzones/InputParameters"
	"github.com/notargets/ghostzones/boundary"
	"github.com/notargets/ghostzones/model_problems/BlockGrid"
)

// TopologyCmd represents the topology command
var TopologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Discover and print the domain topology of a block grid scenario",
	Long: `Discovers the neighbors of every domain of a YAML scenario, validates the
topology and prints the neighbor tables with the rank each domain goes to.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, err := cmd.Flags().GetString("inputFile")
		if err != nil {
			panic(err)
		}
		if err = PrintTopology(readScenario(file)); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(TopologyCmd)
	TopologyCmd.Flags().StringP("inputFile", "I", "", "YAML scenario file")
}

func PrintTopology(ip *InputParameters.Scenario) (err error) {
	var (
		bg *BlockGrid.BlockGrid
	)
	if bg, err = BlockGrid.NewBlockGrid(ip, newLogger()); err != nil {
		return
	}
	fmt.Println(bg)
	fmt.Printf("%d domains, %d neighbor records, symmetric %v\n",
		bg.Topo.NumDomains(), bg.Topo.NumEdges(), bg.Topo.Symmetric())
	for d := 0; d < bg.Topo.NumDomains(); d++ {
		dom := bg.Topo.Domain(d)
		rank := fmt.Sprint(bg.Owner[d])
		if bg.Owner[d] == boundary.None {
			rank = "inactive"
		}
		fmt.Printf("domain %d (rank %s) nodes %v -> %v, cells %v -> %v\n",
			d, rank, dom.OldNodes, dom.NewNodes, dom.OldCells, dom.NewCells)
		for n, nb := range dom.Neighbors {
			fmt.Printf("\t[%d] domain %3d match %d orient %v normal %v shared %v send %v ghost %v\n",
				n, nb.Domain, nb.Match, nb.Orient, nb.Normal, nb.Shared, nb.SendCells, nb.GhostCells)
		}
	}
	return
}
