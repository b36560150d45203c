package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

type MeshParameters struct {
	File     string    `yaml:"File"`
	Type     string    `yaml:"Type"` // Line, Quad, Triangle, Hex or Tet
	Elements []int     `yaml:"Elements"`
	Min      []float64 `yaml:"Min"`
	Max      []float64 `yaml:"Max"`
}

type LevelSetParameters struct {
	Shape  string    `yaml:"Shape"` // Sphere (Circle) or Box
	Center []float64 `yaml:"Center"`
	Radius float64   `yaml:"Radius"`
	Size   []float64 `yaml:"Size"`
	Width  float64   `yaml:"Width"` // Heaviside transition width, 0 picks twice the mesh scale
}

// Parameters obtained from the YAML input file
type InputParametersDistance struct {
	Title                string             `yaml:"Title"`
	PolynomialOrder      int                `yaml:"PolynomialOrder"`
	DiffusionCoefficient float64            `yaml:"DiffusionCoefficient"`
	SmoothSteps          int                `yaml:"SmoothSteps"`
	PeakTransform        bool               `yaml:"PeakTransform"`
	Preconditioner       string             `yaml:"Preconditioner"`
	RelTol               float64            `yaml:"RelTol"`
	MaxIterations        int                `yaml:"MaxIterations"`
	PrintLevel           int                `yaml:"PrintLevel"`
	Partitions           int                `yaml:"Partitions"`
	Mesh                 MeshParameters     `yaml:"Mesh"`
	LevelSet             LevelSetParameters `yaml:"LevelSet"`
}

// SetDefaults fills in the values used for keys missing from the input.
func (ip *InputParametersDistance) SetDefaults() {
	*ip = InputParametersDistance{
		Title:                "Distance",
		PolynomialOrder:      1,
		DiffusionCoefficient: 1,
		PeakTransform:        true,
		Preconditioner:       "AMG",
		RelTol:               1e-12,
		MaxIterations:        100,
		Partitions:           1,
		Mesh: MeshParameters{
			Type:     "Quad",
			Elements: []int{32, 32},
			Min:      []float64{-1, -1},
			Max:      []float64{1, 1},
		},
		LevelSet: LevelSetParameters{
			Shape:  "Sphere",
			Center: []float64{0, 0},
			Radius: 0.5,
		},
	}
}

func (ip *InputParametersDistance) Parse(data []byte) error {
	ip.SetDefaults()
	return yaml.Unmarshal(data, ip)
}

func (ip *InputParametersDistance) ToYAML() (string, error) {
	data, err := yaml.Marshal(ip)
	return string(data), err
}

func (ip *InputParametersDistance) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d]\t\t\t\t= Polynomial Order\n", ip.PolynomialOrder)
	fmt.Printf("%8.5f\t\t= Diffusion Coefficient\n", ip.DiffusionCoefficient)
	fmt.Printf("[%d]\t\t\t\t= Smooth Steps\n", ip.SmoothSteps)
	fmt.Printf("[%t]\t\t\t= Peak Transform\n", ip.PeakTransform)
	fmt.Printf("[%s]\t\t\t= Preconditioner\n", ip.Preconditioner)
	fmt.Printf("%8.2e\t\t= RelTol\n", ip.RelTol)
	fmt.Printf("[%d]\t\t\t\t= Max Iterations\n", ip.MaxIterations)
	fmt.Printf("[%d]\t\t\t\t= Partitions\n", ip.Partitions)
	if len(ip.Mesh.File) != 0 {
		fmt.Printf("[%s]\t= Mesh File\n", ip.Mesh.File)
	} else {
		fmt.Printf("[%s] %v %v..%v\t= Mesh\n", ip.Mesh.Type, ip.Mesh.Elements, ip.Mesh.Min, ip.Mesh.Max)
	}
	ls := ip.LevelSet
	fmt.Printf("[%s] center %v radius %v size %v width %v\t= Level Set\n",
		ls.Shape, ls.Center, ls.Radius, ls.Size, ls.Width)
}
