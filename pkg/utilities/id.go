package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	genOnce sync.Once
	gen     func() string
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID returns a snowflake id from the process-wide node. The node
// id comes from SNOWFLAKE_NODE (default 1). A node must be shared: two nodes
// with the same id restart their sequence and can emit duplicates.
func NewSnowflakeID() string {
	genOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = parsed
			}
		}
		gen = idGenerator(nodeID)
	})
	return gen()
}

// idGenerator returns a snowflake generator for nodeID. If the node cannot
// be initialized it falls back to KSUIDs.
func idGenerator(nodeID int64) func() string {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return NewKSUID
	}
	return func() string { return n.Generate().String() }
}
