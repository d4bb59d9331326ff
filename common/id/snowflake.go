package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID. Safe to call
// more than once; only the first call takes effect.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a globally unique, time-ordered int64 ID. Used for job IDs.
func New() int64 {
	return node.Generate().Int64()
}

// NewString generates an ID in decimal string form, suitable for correlation
// ids that travel through log fields and stream entries.
func NewString() string {
	return node.Generate().String()
}
