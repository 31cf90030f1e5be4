// Package gpuprobe discovers the execution limits of a parallel compute
// accelerator by experiment. It sweeps candidate thread-block sizes and
// grid sizes over a real kernel launch, records which configurations the
// device accepts, times the accepted ones with device-synchronized events,
// and reconciles the demonstrated ceiling with the limits the device
// reports about itself.
//
// Example usage:
//
//	dev, err := cpu.Open(cpu.HostProfile()) // or cuda.Open(0) on a GPU machine
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	report, err := gpuprobe.Run(dev, gpuprobe.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Render(os.Stdout)
//
// The zero-value Options reproduce the fixed probe procedure; fields exist
// to vary its inputs (a different seed, candidate lists, or memory ceiling),
// not to change its semantics.
package gpuprobe
