package wid

import (
	"fmt"
	"os"

	"github.com/spaolacci/murmur3"
)

// DeriveNode hashes an arbitrary seed into a short node token that is
// always valid for HLC-WID use. Hex output cannot collide with the grammar
// separators.
func DeriveNode(seed string) string {
	if seed == "" {
		seed = "widgen"
	}
	return fmt.Sprintf("%08x", murmur3.Sum32([]byte(seed)))
}

// DefaultNode derives a node token from the local hostname and pid. It is a
// convenience for daemons whose operators did not configure an explicit
// node name; clusters that need stable node identities should configure one.
func DefaultNode() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return DeriveNode(fmt.Sprintf("%s/%d", host, os.Getpid()))
}
