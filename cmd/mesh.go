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
	"log"

	"github.com/spf13/cobra"

	"github.com/notargets/heatdist/InputParameters"
)

// MeshCmd represents the mesh command
var MeshCmd = &cobra.Command{
	Use:   "mesh",
	Short: "Print statistics of a mesh file or of the mesh described in an input file",
	Run: func(cmd *cobra.Command, args []string) {
		gridFile, _ := cmd.Flags().GetString("gridFile")
		icFile, _ := cmd.Flags().GetString("inputConditionsFile")
		nparts, _ := cmd.Flags().GetInt("partitions")
		md := &ModelDistance{GridFile: gridFile, ICFile: icFile}
		ip, err := processDistanceInput(md)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err = MeshReport(md.GridFile, ip.Mesh, nparts); err != nil {
			log.Fatalf("mesh: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(MeshCmd)
	MeshCmd.Flags().StringP("gridFile", "F", "", "Grid file to read in Gmsh (.msh), SU2 (.su2) or Gambit neutral (.neu) format")
	MeshCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML input file whose Mesh section is used without -F")
	MeshCmd.Flags().IntP("partitions", "n", 1, "partition the mesh and report the balance")
}

// MeshReport builds the mesh, partitions it and prints its statistics.
func MeshReport(gridFile string, mp InputParameters.MeshParameters, nparts int) (err error) {
	m, err := BuildMesh(gridFile, mp)
	if err != nil {
		return
	}
	if nparts > 1 {
		if err = m.Partition(nparts); err != nil {
			return
		}
	}
	m.PrintStatistics()
	if nparts > 1 {
		for p := 0; p < nparts; p++ {
			log.Printf("partition %d: %d elements", p, len(m.PartitionElements(p)))
		}
	}
	return
}
