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
	"log"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/notargets/heatdist/InputParameters"
	"github.com/notargets/heatdist/output"
)

// ConvergenceCmd represents the convergence command
var ConvergenceCmd = &cobra.Command{
	Use:   "convergence",
	Short: "Measure the distance error against the exact distance over refined meshes",
	Long: `
Runs the distance computation on the generated mesh of the input file, doubling
the element counts at every level, and reports the RMS and maximum nodal error
against the exact distance to the level set shape with the observed orders.

heatdist convergence -I input.yaml -l 3 --csv study.csv
heatdist convergence --read study.csv`,
	Run: func(cmd *cobra.Command, args []string) {
		if readFile, _ := cmd.Flags().GetString("read"); len(readFile) != 0 {
			if err := PrintConvergenceCSV(readFile); err != nil {
				log.Fatalf("%v", err)
			}
			return
		}
		icFile, _ := cmd.Flags().GetString("inputConditionsFile")
		levels, _ := cmd.Flags().GetInt("levels")
		csvFile, _ := cmd.Flags().GetString("csv")
		nparts, _ := cmd.Flags().GetInt("partitions")
		ip, err := processDistanceInput(&ModelDistance{ICFile: icFile})
		if err != nil {
			log.Fatalf("%v", err)
		}
		cs, err := RunConvergence(ip, levels, nparts, csvFile)
		if err != nil {
			log.Fatalf("convergence: %v", err)
		}
		cs.Print()
	},
}

func init() {
	rootCmd.AddCommand(ConvergenceCmd)
	ConvergenceCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML input file with a generated Mesh section")
	ConvergenceCmd.Flags().IntP("levels", "l", 3, "number of meshes, each refined by two in every direction")
	ConvergenceCmd.Flags().String("csv", "", "write the study to this CSV file")
	ConvergenceCmd.Flags().String("read", "", "print the studies in this CSV file and exit")
	ConvergenceCmd.Flags().IntP("partitions", "n", 1, "number of ranks")
}

// RunConvergence computes the distance on levels successively refined copies
// of the generated mesh in ip and collects the errors.
func RunConvergence(ip *InputParameters.InputParametersDistance, levels, nparts int, csvFile string) (cs *output.ConvergenceStudy, err error) {
	if levels < 1 {
		return nil, fmt.Errorf("need at least one level, have %d", levels)
	}
	if len(ip.Mesh.File) != 0 {
		return nil, fmt.Errorf("mesh file %s cannot be refined, use a generated mesh", ip.Mesh.File)
	}
	cs = output.NewConvergenceStudy(ip.Title)
	level := *ip
	level.Mesh.Elements = append([]int(nil), ip.Mesh.Elements...)
	for l := 0; l < levels; l++ {
		var res *DistanceResult
		if res, err = RunDistance(&ModelDistance{Partitions: nparts}, &level); err != nil {
			return nil, fmt.Errorf("level %d: %w", l, err)
		}
		rms, max := output.DistanceError(res.Distance, res.Exact)
		cs.Add(res.MeshScale, rms, max)
		for i := range level.Mesh.Elements {
			level.Mesh.Elements[i] *= 2
		}
	}
	if len(csvFile) != 0 {
		var f *os.File
		if f, err = os.Create(csvFile); err != nil {
			return
		}
		defer f.Close()
		if err = cs.WriteCSV(f); err != nil {
			return
		}
		log.Printf("wrote %s", csvFile)
	}
	return
}

func PrintConvergenceCSV(filename string) (err error) {
	f, err := os.Open(filename)
	if err != nil {
		return
	}
	defer f.Close()
	studies, err := output.ReadConvergenceCSV(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	titles := make([]string, 0, len(studies))
	for title := range studies {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		studies[title].Print()
	}
	return
}
