package workload

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
)

const (
	KeyGenSeq       = "seq"
	KeyGenSnowflake = "snowflake"
)

// GenerateKeys returns n distinct keys.
func GenerateKeys(kind string, n int) ([]string, error) {
	keys := make([]string, n)
	switch kind {
	case KeyGenSnowflake:
		node, err := snowflake.NewNode(1)
		if err != nil {
			return nil, err
		}
		for i := range keys {
			keys[i] = node.Generate().String()
		}
	default:
		for i := range keys {
			keys[i] = "bench_key_" + strconv.Itoa(i)
		}
	}
	return keys, nil
}
