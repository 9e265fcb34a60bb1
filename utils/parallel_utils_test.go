package utils

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	{ // Bucket sizes
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for _, p := range pm.Partitions {
				histo[p[1]-p[0]]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1]))
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Bucket agrees with the ranges, larger buckets first
		for _, np := range []int{1, 3, 5, 32} {
			for maxIndex := 0; maxIndex < 300; maxIndex++ {
				pm := NewPartitionMap(np, maxIndex)
				require.Equal(t, maxIndex, pm.Partitions[np-1][1])
				for k := 0; k < maxIndex; k++ {
					bn := pm.Bucket(k)
					require.True(t, bn >= 0 && bn < np)
					p := pm.Partitions[bn]
					assert.True(t, k >= p[0] && k < p[1], "np %d k %d in %v", np, k, p)
				}
				for n := 1; n < np; n++ {
					assert.LessOrEqual(t, pm.Partitions[n][1]-pm.Partitions[n][0],
						pm.Partitions[n-1][1]-pm.Partitions[n-1][0])
				}
				assert.Equal(t, -1, pm.Bucket(maxIndex))
				assert.Equal(t, -1, pm.Bucket(-1))
			}
		}
	}
	{
		pm := NewPartitionMap(3, 7)
		assert.Equal(t, []int{0, 0, 0, 1, 1, 2, 2}, pm.Assignment())
		assert.Equal(t, [][2]int{{0, 3}, {3, 5}, {5, 7}}, pm.Partitions)
	}
}

func TestMailBox(t *testing.T) {
	{ // Matching on (source, tag) with FIFO order per pair
		mb := NewMailBox[int](3)
		require.NoError(t, mb.PostMessage(1, 0, 7, 10))
		require.NoError(t, mb.PostMessage(2, 0, 7, 20))
		require.NoError(t, mb.PostMessage(1, 0, 8, 30))
		require.NoError(t, mb.PostMessage(1, 0, 7, 11))
		assert.Equal(t, 4, mb.Pending(0))
		for _, want := range []struct{ src, tag, val int }{
			{2, 7, 20}, {1, 8, 30}, {1, 7, 10}, {1, 7, 11},
		} {
			v, err := mb.ReceiveMessage(0, want.src, want.tag, 0)
			require.NoError(t, err)
			assert.Equal(t, want.val, v)
		}
		assert.Equal(t, 0, mb.Pending(0))
	}
	{ // Blocking receive is woken by a later post
		mb := NewMailBox[string](2)
		var (
			wg  sync.WaitGroup
			got string
			err error
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err = mb.ReceiveMessage(1, 0, 3, time.Second)
		}()
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, mb.PostMessage(0, 1, 3, "hello"))
		wg.Wait()
		require.NoError(t, err)
		assert.Equal(t, "hello", got)
	}
	{ // Timeout and close
		mb := NewMailBox[int](2)
		_, err := mb.ReceiveMessage(0, 1, 1, 5*time.Millisecond)
		assert.ErrorIs(t, err, ErrMailBoxTimeout)
		mb.Close()
		_, err = mb.ReceiveMessage(0, 1, 1, 0)
		assert.ErrorIs(t, err, ErrMailBoxClosed)
		assert.ErrorIs(t, mb.PostMessage(0, 1, 1, 5), ErrMailBoxClosed)
	}
	{
		mb := NewMailBox[int](4)
		require.NoError(t, mb.PostMessageToAll(2, 1, 9))
		for k := 0; k < 4; k++ {
			if k == 2 {
				assert.Equal(t, 0, mb.Pending(k))
				continue
			}
			assert.Equal(t, 1, mb.Pending(k))
		}
		assert.Panics(t, func() { _ = mb.PostMessage(0, 4, 1, 0) })
	}
}
