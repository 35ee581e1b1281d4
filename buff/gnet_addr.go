package buff

import "strings"

func ensureProtoAddr(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "tcp://" + addr
}

// splitProtoAddr turns "tcp://:8080" into the network and address pair the
// net package expects. A bare address is TCP.
func splitProtoAddr(addr string) (network, address string) {
	network, address, ok := strings.Cut(ensureProtoAddr(addr), "://")
	if !ok || network == "" {
		return "tcp", addr
	}
	return network, address
}
