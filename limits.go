package gpuprobe

import (
	"math/big"

	"github.com/devicelab/gpuprobe/accel"
)

// TheoreticalLimits is derived from the capability record rather than
// measured. The product of block size and all three grid dimensions
// overflows uint64 on current devices, so it is kept exact in a big.Int.
type TheoreticalLimits struct {
	MaxThreadsTotal      *big.Int
	MaxConcurrentThreads int64
}

// ComputeTheoreticalLimits derives the limits a device's reported
// capabilities imply. Pure arithmetic, no device access.
func ComputeTheoreticalLimits(props accel.DeviceProps) TheoreticalLimits {
	total := big.NewInt(int64(props.MaxThreadsPerBlock))
	for _, dim := range props.MaxGridDim {
		total.Mul(total, big.NewInt(int64(dim)))
	}
	return TheoreticalLimits{
		MaxThreadsTotal:      total,
		MaxConcurrentThreads: int64(props.MultiprocessorCount) * int64(props.MaxThreadsPerMP),
	}
}
