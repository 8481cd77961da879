package device

// ABIs exposes the ABIs of arch for tests.
func ABIs(arch string) []string {
	return abis(arch)
}

// IDNamespace is the namespace device ids are derived in.
var IDNamespace = idNamespace
