package gpuprobe

import "runtime/debug"

const modulePath = "github.com/devicelab/gpuprobe"

// Version reports the module version recorded in the binary's build info:
// the main module version when the binary is built from this module, the
// dependency version when another module links it in. Binaries built
// without module support report "devel".
func Version() string {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}
	if b.Main.Path == modulePath && b.Main.Version != "" {
		return b.Main.Version
	}
	for _, m := range b.Deps {
		if m.Path != modulePath {
			continue
		}
		if m.Replace != nil && m.Replace.Version != "" {
			return m.Replace.Version
		}
		return m.Version
	}
	return "devel"
}
