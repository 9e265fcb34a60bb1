package boundary

import (
	"fmt"
	"log"
	"slices"

	metis "github.com/notargets/go-metis"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/ghostzones/utils"
)

// PartitionConfig holds configuration for assigning domains to ranks
type PartitionConfig struct {
	NumPartitions    int32
	Method           string  // "metis", "block" or "single"
	ImbalanceFactor  float32 // e.g., 1.05 for 5% imbalance
	UseEdgeWeights   bool
	UseVertexWeights bool
	Objective        string // "cut" or "vol"
}

func DefaultPartitionConfig(nparts int32) *PartitionConfig {
	return &PartitionConfig{
		NumPartitions:    nparts,
		Method:           "metis",
		ImbalanceFactor:  1.05,
		UseEdgeWeights:   true,
		UseVertexWeights: true,
		Objective:        "vol", // minimize communication volume
	}
}

/*
DomainPartitioner assigns whole domains to ranks. The METIS graph has one
vertex per domain weighted by its cell count and one edge per adjacent pair
weighted by the ghost cells the pair exchanges.
*/
type DomainPartitioner struct {
	topo   *Topology
	config *PartitionConfig
	Owner  []int
	Logger *log.Logger
}

func NewDomainPartitioner(topo *Topology, config *PartitionConfig) *DomainPartitioner {
	return &DomainPartitioner{topo: topo, config: config}
}

func (dp *DomainPartitioner) logf(format string, args ...any) {
	if dp.Logger != nil {
		dp.Logger.Printf(format, args...)
	}
}

func (dp *DomainPartitioner) Partition() (owner []int, err error) {
	var (
		nd     = dp.topo.NumDomains()
		nparts = int(dp.config.NumPartitions)
		method = dp.config.Method
	)
	if nparts < 1 {
		return nil, fmt.Errorf("%w: %d partitions", ErrConfig, nparts)
	}
	if nparts == 1 {
		method = "single"
	} else if method == "metis" && (nd <= nparts || dp.topo.NumEdges() == 0) {
		dp.logf("%d domains and %d edges for %d partitions, using block assignment",
			nd, dp.topo.NumEdges(), nparts)
		method = "block"
	}
	switch method {
	case "single":
		owner = make([]int, nd)
	case "block":
		owner = utils.NewPartitionMap(nparts, nd).Assignment()
	case "metis":
		var objval int32
		if owner, objval, err = dp.partitionMetis(); err != nil {
			return
		}
		dp.logf("METIS objective value: %d", objval)
	default:
		return nil, fmt.Errorf("%w: unknown partition method %q", ErrConfig, method)
	}
	dp.Owner = owner
	dp.analyzePartition()
	return
}

func (dp *DomainPartitioner) partitionMetis() (owner []int, objval int32, err error) {
	dp.logf("Partitioning %d domains into %d parts", dp.topo.NumDomains(), dp.config.NumPartitions)

	xadj, adjncy, vwgt, adjwgt := dp.buildMetisGraph()

	opts := make([]int32, metis.NoOptions)
	if err = metis.SetDefaultOptions(opts); err != nil {
		return nil, 0, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if dp.config.Objective == "vol" {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}
	ubvec := []float32{dp.config.ImbalanceFactor}

	var vwgtPtr, adjwgtPtr []int32
	if dp.config.UseVertexWeights {
		vwgtPtr = vwgt
	}
	if dp.config.UseEdgeWeights {
		adjwgtPtr = adjwgt
	}
	var part []int32
	part, objval, err = metis.PartGraphKwayWeighted(
		xadj, adjncy, vwgtPtr, adjwgtPtr,
		dp.config.NumPartitions, nil, ubvec, opts,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	owner = make([]int, len(part))
	for d, p := range part {
		owner[d] = int(p)
	}
	return
}

// ghostCells is the number of cells d1 and d2 send each other
func (dp *DomainPartitioner) ghostCells(d1, d2 int) (n int) {
	for _, pair := range [][2]int{{d1, d2}, {d2, d1}} {
		for _, nb := range dp.topo.Domain(pair[0]).Neighbors {
			if nb.Domain == pair[1] {
				n += nb.CellCount()
			}
		}
	}
	return
}

// buildMetisGraph reads the CSR adjacency pattern straight into METIS arrays
func (dp *DomainPartitioner) buildMetisGraph() (xadj, adjncy, vwgt, adjwgt []int32) {
	var (
		nd  = dp.topo.NumDomains()
		raw = dp.topo.AdjacencyMatrix().RawMatrix()
	)
	vwgt = make([]int32, nd)
	for d := 0; d < nd; d++ {
		vwgt[d] = int32(dp.topo.Domain(d).OldCells.Count())
	}
	xadj = make([]int32, nd+1)
	for d := 0; d < nd; d++ {
		// Every rank partitions on its own, the row order must not depend on map order
		row := slices.Clone(raw.Ind[raw.Indptr[d]:raw.Indptr[d+1]])
		slices.Sort(row)
		for _, nbr := range row {
			if nbr == d {
				continue
			}
			adjncy = append(adjncy, int32(nbr))
			adjwgt = append(adjwgt, int32(dp.ghostCells(d, nbr)))
		}
		xadj[d+1] = int32(len(adjncy))
	}
	return
}

// PartitionStats holds statistics for a single rank
type PartitionStats struct {
	ID           int
	NumDomains   int
	ComputeLoad  float64 // Cells
	NumNeighbors map[int]int // neighbor rank -> shared edges
}

// analyzePartition computes and reports partition quality metrics
func (dp *DomainPartitioner) analyzePartition() (stats []PartitionStats) {
	var (
		nparts     = int(dp.config.NumPartitions)
		loads      = make([]float64, nparts)
		cutEdges   int
		commVolume int
	)
	stats = make([]PartitionStats, nparts)
	for i := range stats {
		stats[i].ID = i
		stats[i].NumNeighbors = make(map[int]int)
	}
	for d, p := range dp.Owner {
		dom := dp.topo.Domain(d)
		stats[p].NumDomains++
		stats[p].ComputeLoad += float64(dom.OldCells.Count())
		for _, nb := range dom.Neighbors {
			q := dp.Owner[nb.Domain]
			if q == p {
				continue
			}
			commVolume += nb.CellCount()
			stats[p].NumNeighbors[q]++
			if nb.Domain > d {
				cutEdges++
			}
		}
	}
	for i := range stats {
		loads[i] = stats[i].ComputeLoad
	}
	avgLoad := floats.Sum(loads) / float64(nparts)
	imbalance := 0.
	if avgLoad > 0 {
		imbalance = floats.Max(loads)/avgLoad - 1.0
	}
	dp.logf("Partition Analysis:")
	dp.logf("  Cut edges: %d", cutEdges)
	dp.logf("  Communication volume: %d cells", commVolume)
	dp.logf("  Load imbalance: %.2f%%", imbalance*100)
	dp.logf("  Load range: [%.0f, %.0f], avg: %.1f", floats.Min(loads), floats.Max(loads), avgLoad)
	for _, s := range stats {
		dp.logf("  Partition %d: %d domains, %.0f cells, %d neighbor ranks",
			s.ID, s.NumDomains, s.ComputeLoad, len(s.NumNeighbors))
	}
	return
}

// LocalDomains lists the domains assigned to rank in ascending order
func (dp *DomainPartitioner) LocalDomains(rank int) (local []int) {
	for d, p := range dp.Owner {
		if p == rank {
			local = append(local, d)
		}
	}
	return
}
