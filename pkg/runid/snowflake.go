// 文件: pkg/runid/snowflake.go
// 定价报告的运行 ID，雪花算法生成，同一节点内单调递增
// 使用开源库: github.com/bwmarrin/snowflake

package runid

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	initErr error
	mu      sync.Mutex
)

// Init 初始化雪花节点，只有第一次调用生效
// nodeID: 节点ID (0-1023)，多实例部署时每个实例取不同值
func Init(nodeID int64) error {
	mu.Lock()
	defer mu.Unlock()
	if node != nil {
		return nil
	}
	node, initErr = snowflake.NewNode(nodeID)
	return initErr
}

// New 生成一个运行 ID
func New() string {
	mu.Lock()
	n := node
	mu.Unlock()
	if n == nil {
		// 未初始化则使用默认节点0
		_ = Init(0)
		mu.Lock()
		n = node
		mu.Unlock()
	}
	return n.Generate().String()
}
