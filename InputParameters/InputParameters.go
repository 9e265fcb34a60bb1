package InputParameters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/ghostzones/dataset"
)

type FieldParameters struct {
	Name      string `yaml:"Name"`
	Centering string `yaml:"Centering"` // Nodal or Zonal
	Kind      string `yaml:"Kind"`      // Float32, Int32 or Byte
	NComp     int    `yaml:"NComp"`
}

// Parameters obtained from the YAML scenario file
type Scenario struct {
	Title         string            `yaml:"Title"`
	MeshType      string            `yaml:"MeshType"` // Rectilinear or Curvilinear
	Cells         [3]int            `yaml:"Cells"`    // Global cells per axis, 0 for a flat axis
	Blocks        [3]int            `yaml:"Blocks"`   // Domains per axis
	NumProcs      int               `yaml:"NumProcs"`
	Partition     string            `yaml:"Partition"` // metis, block or single
	Inactive      []int             `yaml:"Inactive"`  // Domains left out of the active selection
	Fields        []FieldParameters `yaml:"Fields"`
	Materials     bool              `yaml:"Materials"`
	GhostNodes    bool              `yaml:"GhostNodes"`
	ValidateOrder bool              `yaml:"ValidateOrder"`
}

func NewScenario() *Scenario {
	return &Scenario{
		Title:     "Block grid",
		MeshType:  "Rectilinear",
		Cells:     [3]int{16, 16, 0},
		Blocks:    [3]int{2, 2, 1},
		NumProcs:  1,
		Partition: "metis",
		Fields: []FieldParameters{
			{Name: "pressure", Centering: "Zonal", Kind: "Float32", NComp: 1},
		},
	}
}

// Parse overlays data on the receiver, unset keys keep their current values
func (ip *Scenario) Parse(data []byte) (err error) {
	defaults := ip.Fields
	ip.Fields = nil
	if err = yaml.Unmarshal(data, ip); err != nil {
		return
	}
	if ip.Fields == nil {
		ip.Fields = defaults
	}
	for i := range ip.Fields {
		if ip.Fields[i].NComp == 0 {
			ip.Fields[i].NComp = 1
		}
		if ip.Fields[i].Kind == "" {
			ip.Fields[i].Kind = "Float32"
		}
	}
	return ip.Validate()
}

func (ip *Scenario) Validate() (err error) {
	var (
		problems []string
		names    = make(map[string]bool)
	)
	if _, err = dataset.NewMeshType(ip.MeshType); err != nil {
		problems = append(problems, err.Error())
	}
	for a := 0; a < 3; a++ {
		switch {
		case ip.Blocks[a] < 1:
			problems = append(problems, fmt.Sprintf("Blocks[%d] = %d, need at least 1", a, ip.Blocks[a]))
		case ip.Cells[a] == 0 && ip.Blocks[a] != 1:
			problems = append(problems, fmt.Sprintf("flat axis %d cannot be cut into %d blocks", a, ip.Blocks[a]))
		case ip.Cells[a] < 0 || ip.Cells[a]%ip.Blocks[a] != 0:
			problems = append(problems, fmt.Sprintf("Cells[%d] = %d does not split into %d blocks",
				a, ip.Cells[a], ip.Blocks[a]))
		}
	}
	if ip.NumProcs < 1 {
		problems = append(problems, fmt.Sprintf("NumProcs = %d, need at least 1", ip.NumProcs))
	}
	switch ip.Partition {
	case "metis", "block", "single":
	default:
		problems = append(problems, fmt.Sprintf("unknown Partition %q", ip.Partition))
	}
	nd := ip.Blocks[0] * ip.Blocks[1] * ip.Blocks[2]
	for _, d := range ip.Inactive {
		if d < 0 || d >= nd {
			problems = append(problems, fmt.Sprintf("inactive domain %d outside [0,%d)", d, nd))
		}
	}
	for _, f := range ip.Fields {
		if names[f.Name] || f.Name == "" {
			problems = append(problems, fmt.Sprintf("field name %q is empty or repeated", f.Name))
		}
		names[f.Name] = true
		if _, err := dataset.NewCentering(f.Centering); err != nil {
			problems = append(problems, err.Error())
		}
		if _, err := dataset.NewFieldKind(f.Kind); err != nil {
			problems = append(problems, err.Error())
		}
		if f.NComp < 1 || f.NComp > 9 {
			problems = append(problems, fmt.Sprintf("field %s has %d components", f.Name, f.NComp))
		}
	}
	if len(problems) != 0 {
		return fmt.Errorf("invalid scenario %q:\n\t%s", ip.Title, strings.Join(problems, "\n\t"))
	}
	return nil
}

func (ip *Scenario) NumDomains() int { return ip.Blocks[0] * ip.Blocks[1] * ip.Blocks[2] }

func (ip *Scenario) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%s]\t\t= Mesh Type\n", ip.MeshType)
	fmt.Printf("%v\t\t= Cells\n", ip.Cells)
	fmt.Printf("%v\t\t= Blocks\n", ip.Blocks)
	fmt.Printf("[%d]\t\t\t= Number of Processes\n", ip.NumProcs)
	fmt.Printf("[%s]\t\t\t= Partition\n", ip.Partition)
	inactive := append([]int(nil), ip.Inactive...)
	sort.Ints(inactive)
	fmt.Printf("%v\t\t\t= Inactive Domains\n", inactive)
	fmt.Printf("%v\t\t\t= Materials\n", ip.Materials)
	fmt.Printf("%v\t\t\t= Ghost Nodes\n", ip.GhostNodes)
	fmt.Printf("%v\t\t\t= Validate Order\n", ip.ValidateOrder)
	for _, f := range ip.Fields {
		fmt.Printf("Fields[%s] = %s %s x%d\n", f.Name, f.Centering, f.Kind, f.NComp)
	}
}
