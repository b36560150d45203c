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
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/heatdist/InputParameters"
	"github.com/notargets/heatdist/comm"
	"github.com/notargets/heatdist/distance"
	"github.com/notargets/heatdist/fem"
	"github.com/notargets/heatdist/levelset"
	"github.com/notargets/heatdist/mesh"
	"github.com/notargets/heatdist/output"
	"github.com/notargets/heatdist/solver"
	"github.com/notargets/heatdist/utils"
)

type ModelDistance struct {
	GridFile   string
	ICFile     string
	VTKFile    string
	PNGFile    string
	DBFile     string
	Partitions int
	Verbose    bool
}

// DistanceResult holds the nodal fields of a run, gathered from rank 0.
type DistanceResult struct {
	Mesh                                 *mesh.Mesh
	LevelSet, Source, Diffused, Distance []float64
	Exact                                []float64
	MeshScale                            float64
	Stats                                distance.Stats
	Ranks                                int
	Elapsed                              time.Duration
}

// DistanceCmd represents the distance command
var DistanceCmd = &cobra.Command{
	Use:   "distance",
	Short: "Compute the distance to the 0.5 contour of a level set",
	Long: `
Computes a heat method distance field on a generated or file mesh (Gmsh 2.2 .msh,
SU2 .su2 or Gambit .neu) and writes it as VTK, as a PNG heat map (2-D meshes)
and into a SQLite database of runs.

heatdist distance -I input.yaml -F mesh.msh --vtk out.vtk --png out.png --db runs.db`,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		md := &ModelDistance{}
		if md.GridFile, err = cmd.Flags().GetString("gridFile"); err != nil {
			log.Fatalf("gridFile: %v", err)
		}
		if md.ICFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			log.Fatalf("inputConditionsFile: %v", err)
		}
		md.VTKFile = viper.GetString("vtk")
		md.PNGFile = viper.GetString("png")
		md.DBFile = viper.GetString("db")
		md.Partitions = viper.GetInt("partitions")
		md.Verbose = viper.GetBool("verbose")
		ip, err := processDistanceInput(md)
		if err != nil {
			log.Fatalf("%v", err)
		}
		ip.Print()
		res, err := RunDistance(md, ip)
		if err != nil {
			log.Fatalf("distance: %v", err)
		}
		if err = WriteDistanceOutputs(md, ip, res); err != nil {
			log.Fatalf("output: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(DistanceCmd)
	DistanceCmd.Flags().StringP("gridFile", "F", "", "Grid file to read in Gmsh (.msh), SU2 (.su2) or Gambit neutral (.neu) format, overrides Mesh in the input file")
	DistanceCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- Mesh\n\t- LevelSet\n\t- SmoothSteps")
	DistanceCmd.Flags().String("vtk", "", "write the fields to this VTK file")
	DistanceCmd.Flags().String("png", "", "write a heat map of the distance to this image file (2-D meshes)")
	DistanceCmd.Flags().String("db", "", "record the run in this SQLite database")
	DistanceCmd.Flags().IntP("partitions", "n", 0, "number of ranks, overrides Partitions in the input file")
	for _, name := range []string{"vtk", "png", "db", "partitions"} {
		_ = viper.BindPFlag(name, DistanceCmd.Flags().Lookup(name))
	}
}

const exampleDistanceFile = `
########################################
Title: "Circle"
SmoothSteps: 0
PeakTransform: true
Preconditioner: AMG # or Device, with -tags occa
Mesh:
  Type: Quad # Line, Quad, Triangle, Hex, Tet
  Elements: [32, 32]
  Min: [-1, -1]
  Max: [1, 1]
LevelSet:
  Shape: Sphere # or Box
  Center: [0, 0]
  Radius: 0.5
########################################
`

func processDistanceInput(md *ModelDistance) (ip *InputParameters.InputParametersDistance, err error) {
	ip = &InputParameters.InputParametersDistance{}
	if len(md.ICFile) == 0 {
		fmt.Printf("No input parameters file (-I, --inputConditionsFile), using defaults. Example File:%s\n",
			exampleDistanceFile)
		ip.SetDefaults()
		return
	}
	var data []byte
	if data, err = os.ReadFile(md.ICFile); err != nil {
		return nil, err
	}
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", md.ICFile, err)
	}
	return
}

// BuildMesh reads gridFile when given, else the mesh file named in the
// parameters, else generates the described mesh.
func BuildMesh(gridFile string, mp InputParameters.MeshParameters) (m *mesh.Mesh, err error) {
	if len(gridFile) == 0 {
		gridFile = mp.File
	}
	if len(gridFile) != 0 {
		return mesh.ReadMeshFile(gridFile)
	}
	el := func(i int) int {
		if i < len(mp.Elements) {
			return mp.Elements[i]
		}
		return 0
	}
	var lo, hi [3]float64
	copy(lo[:], mp.Min)
	copy(hi[:], mp.Max)
	switch strings.ToLower(mp.Type) {
	case "line":
		return mesh.NewLineMesh(el(0), lo[0], hi[0])
	case "quad":
		return mesh.NewRectangleMesh(el(0), el(1), [2]float64{lo[0], lo[1]}, [2]float64{hi[0], hi[1]}, mesh.Quad)
	case "triangle", "tri":
		return mesh.NewRectangleMesh(el(0), el(1), [2]float64{lo[0], lo[1]}, [2]float64{hi[0], hi[1]}, mesh.Triangle)
	case "hex":
		return mesh.NewBoxMesh(el(0), el(1), el(2), lo, hi, mesh.Hex)
	case "tet":
		return mesh.NewBoxMesh(el(0), el(1), el(2), lo, hi, mesh.Tet)
	default:
		return nil, fmt.Errorf("unknown mesh type %q, use Line, Quad, Triangle, Hex or Tet", mp.Type)
	}
}

func distanceConfig(ip *InputParameters.InputParametersDistance, verbose bool) (cfg distance.Config, err error) {
	cfg = distance.DefaultConfig()
	if cfg.Preconditioner, err = solver.ParsePreconditionerType(ip.Preconditioner); err != nil {
		return
	}
	if ip.DiffusionCoefficient != 0 {
		cfg.DiffusionCoefficient = ip.DiffusionCoefficient
	}
	if ip.RelTol != 0 {
		cfg.RelTol = ip.RelTol
	}
	if ip.MaxIterations != 0 {
		cfg.MaxIterations = ip.MaxIterations
	}
	cfg.PrintLevel = ip.PrintLevel
	if verbose && cfg.PrintLevel == 0 {
		cfg.PrintLevel = 1
	}
	return
}

// RunDistance computes the distance field with one goroutine per rank. The
// ranks hold identical copies of the global fields, rank 0 reports them.
func RunDistance(md *ModelDistance, ip *InputParameters.InputParametersDistance) (res *DistanceResult, err error) {
	var (
		m     *mesh.Mesh
		shape levelset.Shape
		cfg   distance.Config
		start = time.Now()
	)
	if m, err = BuildMesh(md.GridFile, ip.Mesh); err != nil {
		return
	}
	ls := ip.LevelSet
	if shape, err = levelset.New(ls.Shape, ls.Center, ls.Size, ls.Radius); err != nil {
		return
	}
	if cfg, err = distanceConfig(ip, md.Verbose); err != nil {
		return
	}
	nparts := md.Partitions
	if nparts < 1 {
		nparts = ip.Partitions
	}
	if nparts < 1 {
		nparts = 1
	}
	if err = m.Partition(nparts); err != nil {
		return
	}
	res = &DistanceResult{Mesh: m, Ranks: nparts}
	var mu sync.Mutex
	world := comm.NewWorld(nparts)
	err = world.Run(context.Background(), func(ctx context.Context, c comm.Communicator) (err error) {
		var (
			sp   *fem.H1Space
			s    *distance.Solver
			dist fem.Field
		)
		if sp, err = fem.NewH1Space(m, ip.PolynomialOrder, c); err != nil {
			return
		}
		if s, err = distance.NewSolver(sp, cfg); err != nil {
			return
		}
		width := ls.Width
		if width <= 0 {
			width = 2 * s.MeshScale()
		}
		levelSet := levelset.Coefficient{Shape: shape, Width: width}
		if dist, err = s.ComputeDistance(levelSet, ip.SmoothSteps, ip.PeakTransform); err != nil {
			return fmt.Errorf("rank %d: %w", c.Rank(), err)
		}
		if c.Rank() != 0 {
			return
		}
		lsField, exact := sp.NewField(), sp.NewField()
		lsField.ProjectCoefficient(levelSet)
		exact.ProjectCoefficient(levelset.ExactDistance{Shape: shape})
		mu.Lock()
		defer mu.Unlock()
		res.LevelSet = lsField.Data()
		res.Exact = exact.Data()
		res.Source = append([]float64(nil), s.Source().Data()...)
		res.Diffused = append([]float64(nil), s.Diffused().Data()...)
		res.Distance = append([]float64(nil), dist.Data()...)
		res.MeshScale = s.MeshScale()
		res.Stats = s.Stats()
		return
	})
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	minD, maxD := extrema(res.Distance)
	fmt.Printf("dx = %g, %d dofs on %d ranks, distance in [%g, %g]\n",
		res.MeshScale, m.NumVertices, nparts, minD, maxD)
	fmt.Printf("iterations: Dirichlet %d, Neumann %d, Poisson %d; elapsed %v\n",
		res.Stats.Iterations[0], res.Stats.Iterations[1], res.Stats.Iterations[2], res.Elapsed)
	if md.Verbose {
		log.Println(utils.GetMemUsage())
	}
	return
}

func extrema(v []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	return
}

// WriteDistanceOutputs writes the files and database records requested in md.
func WriteDistanceOutputs(md *ModelDistance, ip *InputParameters.InputParametersDistance, res *DistanceResult) (err error) {
	m := res.Mesh
	if len(md.VTKFile) != 0 {
		if err = output.WriteVTKFile(md.VTKFile, m, ip.Title,
			output.PointData{Name: "levelset", Data: res.LevelSet},
			output.PointData{Name: "source", Data: res.Source},
			output.PointData{Name: "diffused", Data: res.Diffused},
			output.PointData{Name: "distance", Data: res.Distance},
			output.PointData{Name: "exact", Data: res.Exact},
		); err != nil {
			return
		}
		log.Printf("wrote %s", md.VTKFile)
	}
	if len(md.PNGFile) != 0 {
		if m.Dim != 2 {
			return fmt.Errorf("heat maps need a 2-D mesh, this one is %d-D", m.Dim)
		}
		var sp *fem.H1Space
		if sp, err = fem.NewH1Space(m, 1, comm.Serial{}); err != nil {
			return
		}
		gf := fem.NewGridFunction(sp)
		copy(gf.Data(), res.Distance)
		lo, hi := m.Bounds()
		if err = output.WriteHeatMap(md.PNGFile, ip.Title, gf,
			[2]float64{lo[0], lo[1]}, [2]float64{hi[0], hi[1]}, 200); err != nil {
			return
		}
		log.Printf("wrote %s", md.PNGFile)
	}
	if len(md.DBFile) != 0 {
		var (
			st     *output.Store
			params string
			id     int64
		)
		if params, err = ip.ToYAML(); err != nil {
			return
		}
		if st, err = output.OpenStore(md.DBFile); err != nil {
			return
		}
		defer st.Close()
		et, _ := m.BaseGeometry()
		minD, maxD := extrema(res.Distance)
		run := output.Run{
			Title:       ip.Title,
			Mesh:        fmt.Sprintf("%s, %d elements", et, m.NumElements),
			Dofs:        len(res.Distance),
			Ranks:       res.Ranks,
			MeshScale:   res.MeshScale,
			MinDistance: minD,
			MaxDistance: maxD,
			Iterations:  res.Stats.Iterations,
			Elapsed:     res.Elapsed,
			Parameters:  params,
		}
		if id, err = st.SaveRun(context.Background(), run, res.Distance); err != nil {
			return
		}
		log.Printf("recorded run %d in %s", id, md.DBFile)
	}
	return
}
