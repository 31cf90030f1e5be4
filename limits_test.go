package gpuprobe

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab/gpuprobe/accel"
)

// k40Props mirrors a Tesla K40's capability record, the shape whose
// theoretical thread total overflows uint64.
func k40Props() accel.DeviceProps {
	return accel.DeviceProps{
		Name:                "Tesla K40",
		ComputeMajor:        3,
		ComputeMinor:        5,
		TotalGlobalMem:      12 << 30,
		MaxThreadsPerBlock:  1024,
		MaxGridDim:          [3]int32{2147483647, 65535, 65535},
		WarpSize:            32,
		MultiprocessorCount: 15,
		MaxThreadsPerMP:     2048,
	}
}

func TestComputeTheoreticalLimits(t *testing.T) {
	props := k40Props()
	limits := ComputeTheoreticalLimits(props)

	// Build the expected product the same way a reader would by hand:
	// threads per block times each grid dimension in turn.
	want := big.NewInt(1024)
	want.Mul(want, big.NewInt(2147483647))
	want.Mul(want, big.NewInt(65535))
	want.Mul(want, big.NewInt(65535))

	require.NotNil(t, limits.MaxThreadsTotal)
	assert.Zero(t, limits.MaxThreadsTotal.Cmp(want),
		"total = %s, want %s", limits.MaxThreadsTotal, want)

	// The whole point of exact arithmetic: the total does not fit uint64.
	maxU64 := new(big.Int).SetUint64(math.MaxUint64)
	assert.Equal(t, 1, limits.MaxThreadsTotal.Cmp(maxU64),
		"total %s should exceed uint64 range", limits.MaxThreadsTotal)

	assert.Equal(t, int64(15*2048), limits.MaxConcurrentThreads)
}

func TestComputeTheoreticalLimitsSmallDevice(t *testing.T) {
	props := accel.DeviceProps{
		MaxThreadsPerBlock:  256,
		MaxGridDim:          [3]int32{4, 2, 1},
		MultiprocessorCount: 4,
		MaxThreadsPerMP:     512,
	}
	limits := ComputeTheoreticalLimits(props)

	assert.Zero(t, limits.MaxThreadsTotal.Cmp(big.NewInt(256*4*2*1)))
	assert.Equal(t, int64(2048), limits.MaxConcurrentThreads)
}
