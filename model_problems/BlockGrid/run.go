package BlockGrid

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/notargets/ghostzones/dataset"
	"github.com/notargets/ghostzones/exchange"
	"github.com/notargets/ghostzones/transport"
)

type DomainReport struct {
	ID, Rank           int
	OldCells, NewCells int
	GhostCells         int // Cells flagged as duplicated
	GapCells           int // Halo cells no active neighbor supplies
	Mixlen             int
}

// Report is what one rank saw of a run
type Report struct {
	Rank    int
	Domains []DomainReport
	Stats   exchange.Stats
	Elapsed time.Duration
}

// Result holds the exchanged state of the domains local to one rank
type Result struct {
	Datasets  map[int]*dataset.Dataset
	Materials map[int]*dataset.Material
	MixVars   map[int]*dataset.MixVar
}

/*
Run is one rank's part of the scenario: make the local domains active,
exchange the datasets, then the materials and the mixed variable when the
scenario carries them, flag ghost nodes on request and verify everything
that arrived. Every rank of comm must call Run.
*/
func (bg *BlockGrid) Run(comm transport.Comm, opts exchange.Options) (rep *Report, res *Result, err error) {
	var (
		start = time.Now()
		local = bg.Local(comm.Rank())
		x     *exchange.Exchanger
	)
	if opts.Logger == nil {
		opts.Logger = bg.Logger
	}
	opts.ValidateOrder = opts.ValidateOrder || bg.Scenario.ValidateOrder
	if x, err = exchange.New(comm, bg.Topo, opts); err != nil {
		return
	}
	if err = x.SetActive(local); err != nil {
		return
	}
	var (
		in   = make(map[int]*dataset.Dataset)
		mats map[int]*dataset.Material
		mvs  map[int]*dataset.MixVar
	)
	res = &Result{}
	for _, d := range local {
		if in[d], err = bg.Dataset(d); err != nil {
			return
		}
	}
	if res.Datasets, err = x.ExchangeDataset(in); err != nil {
		return
	}
	if bg.Scenario.Materials {
		mats, mvs = make(map[int]*dataset.Material), make(map[int]*dataset.MixVar)
		for _, d := range local {
			mats[d] = bg.Material(d)
			mvs[d] = bg.MixVar(d, mats[d])
		}
		if res.Materials, err = x.ExchangeMaterial(mats); err != nil {
			return
		}
		if res.MixVars, err = x.ExchangeMixVar(mats, mvs); err != nil {
			return
		}
	}
	if bg.Scenario.GhostNodes {
		if err = x.CreateGhostNodes(res.Datasets); err != nil {
			return
		}
	}
	var (
		pruned = x.Membership().Pruned()
		v      = newVerifier(bg, pruned)
	)
	rep = &Report{Rank: comm.Rank(), Stats: x.Stats, Elapsed: time.Since(start)}
	for _, d := range local {
		rep.Domains = append(rep.Domains, v.report(d, res))
	}
	if err = bg.Verify(pruned, res); err != nil {
		return
	}
	bg.logf("rank %d: %d domains verified in %v", comm.Rank(), len(local), rep.Elapsed)
	return
}

// RunLocal runs the scenario on NumProcs in-process ranks and returns the
// reports ordered by rank
func (bg *BlockGrid) RunLocal(timeout time.Duration, opts exchange.Options) (reps []*Report, err error) {
	var (
		np = bg.Scenario.NumProcs
		mu sync.Mutex
	)
	reps = make([]*Report, np)
	fn := func(c transport.Comm) (err error) {
		var rep *Report
		if rep, _, err = bg.Run(c, opts); err != nil {
			return
		}
		mu.Lock()
		reps[c.Rank()] = rep
		mu.Unlock()
		return
	}
	if np == 1 {
		err = fn(transport.NewSerial())
		return
	}
	err = transport.NewLocalGroup(np, timeout).Run(fn)
	return
}

type Summary struct {
	Active                               int
	GhostCells, GapCells                 int
	BytesSent                            int
	MeanBytes, StdDevBytes, MaxBytes     float64
	MeanElapsed, MaxElapsed              time.Duration
	LocalHandoffs, Exchanges, OrderCheck int
}

func Summarize(reps []*Report) (s Summary) {
	var (
		bytes   = make([]float64, len(reps))
		elapsed = make([]float64, len(reps))
	)
	for r, rep := range reps {
		if rep == nil {
			continue
		}
		st := rep.Stats
		bytes[r] = float64(st.CollectiveBytesSent + st.PointToPointBytesSent)
		elapsed[r] = float64(rep.Elapsed)
		s.LocalHandoffs += st.LocalHandoffs
		s.OrderCheck += st.OrderChecks
		s.Exchanges = max(s.Exchanges, st.Exchanges)
		for _, dr := range rep.Domains {
			s.Active++
			s.GhostCells += dr.GhostCells
			s.GapCells += dr.GapCells
		}
	}
	if len(reps) == 0 {
		return
	}
	s.BytesSent = int(floats.Sum(bytes))
	if s.MeanBytes = stat.Mean(bytes, nil); len(bytes) > 1 {
		s.StdDevBytes = stat.StdDev(bytes, nil)
	}
	s.MaxBytes = floats.Max(bytes)
	s.MeanElapsed = time.Duration(stat.Mean(elapsed, nil))
	s.MaxElapsed = time.Duration(floats.Max(elapsed))
	return
}

func (s Summary) String() string {
	return fmt.Sprintf("%d active domains, %d ghost cells, %d gap cells\n"+
		"%d exchanges, %d local handoffs, %d order checks\n"+
		"bytes sent: total %d, per rank mean %.1f stddev %.1f max %.0f\n"+
		"elapsed per rank: mean %v max %v",
		s.Active, s.GhostCells, s.GapCells,
		s.Exchanges, s.LocalHandoffs, s.OrderCheck,
		s.BytesSent, s.MeanBytes, s.StdDevBytes, s.MaxBytes,
		s.MeanElapsed, s.MaxElapsed)
}
