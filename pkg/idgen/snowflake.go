package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 订单 id、结算单号使用，趋势递增便于索引
//
//   0 | 41位毫秒时间戳 | 10位节点ID | 12位序列号
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	nodeBits       = 10
	sequenceBits   = 12
	maxNodeID      = -1 ^ (-1 << nodeBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	nodeShift      = sequenceBits
	timestampShift = sequenceBits + nodeBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	nodeID    int64
	sequence  int64
	now       func() int64
}

func NewSnowflake(nodeID int64) (*Snowflake, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("nodeID 必须在 0-%d 之间", maxNodeID)
	}
	return &Snowflake{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixMilli() },
	}, nil
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init 初始化默认生成器，只有第一次调用生效
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewSnowflake(nodeID)
	})
	return err
}

// NextID 生成下一个ID，未初始化时使用节点 1
// Init 由 once 保护，已初始化时这里的调用不生效
func NextID() int64 {
	_ = Init(1)
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// 时钟回拨时沿用上一次的时间戳
	if now < s.timestamp {
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = s.now()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.nodeID << nodeShift) |
		s.sequence
}

// GenerateSettlementNo 结算单号
// 格式：STL + 年月日时分秒 + 雪花ID后8位，例如 STL2024011514305212345678
func GenerateSettlementNo() string {
	id := NextID()
	return fmt.Sprintf("STL%s%08d", time.Now().Format("20060102150405"), id%100000000)
}
