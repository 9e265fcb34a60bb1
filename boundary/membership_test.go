package boundary

import (
	"bytes"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/ghostzones/transport"
)

func TestMembership(t *testing.T) {
	whole, err := Discover(grid2x2(), nil)
	require.NoError(t, err)
	{ // Two ranks, domain 3 unowned
		locals := [][]int{{1, 0}, {2}}
		members := make([]*Membership, 2)
		g := transport.NewLocalGroup(2, time.Second)
		require.NoError(t, g.Run(func(c transport.Comm) error {
			m := NewMembership(whole)
			members[c.Rank()] = m
			if err := m.Build(c, locals[c.Rank()]); err != nil {
				return err
			}
			// Cached, a second build does not communicate
			return m.Build(c, nil)
		}))
		for r, m := range members {
			assert.Equal(t, Built, m.State())
			assert.Equal(t, []int{0, 0, 1, None}, m.Owners())
			assert.False(t, m.Active(3))
			assert.Empty(t, m.Pruned().Domain(3).Neighbors)
			assert.Same(t, whole, m.Whole())
			if r == 0 {
				assert.Equal(t, []int{0, 1}, m.Local())
			}
		}
		members[0].Invalidate()
		assert.Equal(t, Invalidated, members[0].State())
		assert.Panics(t, func() { members[0].Pruned() })
	}
	{ // A domain claimed twice fails on every rank
		errs := make([]error, 2)
		_ = transport.NewLocalGroup(2, time.Second).Run(func(c transport.Comm) error {
			m := NewMembership(whole)
			errs[c.Rank()] = m.Build(c, []int{0, c.Rank() + 1})
			return nil
		})
		for _, err := range errs {
			assert.ErrorIs(t, err, ErrConfig)
		}
	}
	{ // A bad local list on one rank is reported on both
		errs := make([]error, 2)
		_ = transport.NewLocalGroup(2, time.Second).Run(func(c transport.Comm) error {
			m := NewMembership(whole)
			local := []int{c.Rank()}
			if c.Rank() == 1 {
				local = []int{1, 9}
			}
			errs[c.Rank()] = m.Build(c, local)
			assert.Equal(t, Invalidated, m.State())
			return nil
		})
		assert.ErrorIs(t, errs[0], ErrConfig)
		assert.ErrorIs(t, errs[1], ErrDomainOutOfRange)
	}
	{ // Serial, with logging
		var buf bytes.Buffer
		m := NewMembership(whole)
		m.Logger = log.New(&buf, "", 0)
		require.NoError(t, m.Build(transport.NewSerial(), []int{0, 1, 2, 3}))
		assert.Equal(t, 12, m.Pruned().NumEdges())
		assert.Contains(t, buf.String(), "4 local of 4 domains")
		assert.ErrorIs(t, NewMembership(whole).Build(transport.NewSerial(), []int{1, 1}), ErrConfig)
	}
}

func TestDomainPartitioner(t *testing.T) {
	topo, err := Discover(blockExtents([3]int{8, 8, 0}, [3]int{4, 4, 1}), nil)
	require.NoError(t, err)
	{
		dp := NewDomainPartitioner(topo, DefaultPartitionConfig(1))
		owner, err := dp.Partition()
		require.NoError(t, err)
		assert.Equal(t, make([]int, 16), owner)
	}
	{
		cfg := DefaultPartitionConfig(4)
		cfg.Method = "block"
		dp := NewDomainPartitioner(topo, cfg)
		owner, err := dp.Partition()
		require.NoError(t, err)
		assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}, owner)
		assert.Equal(t, []int{4, 5, 6, 7}, dp.LocalDomains(1))
		stats := dp.analyzePartition()
		assert.Equal(t, 4, stats[2].NumDomains)
		assert.Equal(t, 16., stats[2].ComputeLoad)
		assert.Len(t, stats[0].NumNeighbors, 1)
	}
	{
		var buf bytes.Buffer
		dp := NewDomainPartitioner(topo, DefaultPartitionConfig(2))
		dp.Logger = log.New(&buf, "", 0)
		owner, err := dp.Partition()
		require.NoError(t, err)
		require.Len(t, owner, 16)
		counts := make([]int, 2)
		for _, p := range owner {
			require.True(t, p == 0 || p == 1)
			counts[p]++
		}
		assert.Positive(t, counts[0])
		assert.Positive(t, counts[1])
		assert.Contains(t, buf.String(), "Partition Analysis")
	}
	{
		xadj, adjncy, vwgt, adjwgt := NewDomainPartitioner(topo, DefaultPartitionConfig(2)).buildMetisGraph()
		assert.Len(t, xadj, 17)
		assert.Equal(t, int32(len(adjncy)), xadj[16])
		assert.Equal(t, len(adjncy), topo.NumEdges())
		assert.Equal(t, int32(4), vwgt[0])
		// Domain 0 to 1 is a face of two cells each way, 0 to 5 a corner
		assert.Equal(t, []int32{1, 4, 5}, adjncy[:3])
		assert.Equal(t, []int32{4, 4, 2}, adjwgt[:3])
	}
	{
		cfg := DefaultPartitionConfig(2)
		cfg.Method = "spectral"
		_, err := NewDomainPartitioner(topo, cfg).Partition()
		assert.ErrorIs(t, err, ErrConfig)
		_, err = NewDomainPartitioner(topo, DefaultPartitionConfig(0)).Partition()
		assert.ErrorIs(t, err, ErrConfig)
	}
}
