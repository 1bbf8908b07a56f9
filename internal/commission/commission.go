// Package commission 佣金分成：按付款人角色从上级链中选出五个收款槽位
package commission

import (
	"sort"

	"hgnc/internal/config"
	"hgnc/internal/model"

	"github.com/shopspring/decimal"
)

// Slot 佣金槽位
type Slot int

const (
	SlotManager Slot = iota
	SlotGuideManager
	SlotDirector
	SlotGuideDirector
	SlotAgent
	SlotCount
)

var slotNames = [SlotCount]string{"manager", "guide_manager", "director", "guide_director", "agent"}

func (s Slot) String() string {
	if s < 0 || s >= SlotCount {
		return "unknown"
	}
	return slotNames[s]
}

// LedgerType 槽位对应的日志类型
func (s Slot) LedgerType() string {
	return "commission_" + s.String()
}

// Rates 各槽位的分成比例
type Rates [SlotCount]decimal.Decimal

func RatesFrom(p config.Properties) Rates {
	return Rates{
		SlotManager:       p.ManagerCommission,
		SlotGuideManager:  p.GuideManagerCommission,
		SlotDirector:      p.DirectorCommission,
		SlotGuideDirector: p.GuideDirectorCommission,
		SlotAgent:         p.AgentCommission,
	}
}

func (r Rates) Total() decimal.Decimal {
	total := decimal.Zero
	for _, rate := range r {
		total = total.Add(rate)
	}
	return total
}

// ============================================================================
// 角色分桶
// ============================================================================

// Buckets 存活上级按角色分组，保持由近到远的顺序
type Buckets struct {
	Managers  []*model.User
	Directors []*model.User
	Agents    []*model.User
}

// Partition 已注销的上级只作为链路，不参与分成
func Partition(ancestors []*model.User) Buckets {
	var b Buckets
	for _, u := range ancestors {
		if u == nil || !u.Alive {
			continue
		}
		switch u.Role {
		case model.RoleManager:
			b.Managers = append(b.Managers, u)
		case model.RoleDirector:
			b.Directors = append(b.Directors, u)
		case model.RoleAgent:
			b.Agents = append(b.Agents, u)
		}
	}
	return b
}

// ============================================================================
// 回退规则表
// ============================================================================

type source int

const (
	fromSelf source = iota
	fromManagers
	fromDirectors
	fromAgents
)

// pick 从某个桶中取第 index 个，index 越界视为不存在
type pick struct {
	from  source
	index int
}

var (
	self = pick{from: fromSelf}
	m0   = pick{from: fromManagers, index: 0}
	m1   = pick{from: fromManagers, index: 1}
	d0   = pick{from: fromDirectors, index: 0}
	d1   = pick{from: fromDirectors, index: 1}
	a0   = pick{from: fromAgents, index: 0}
)

type rule [SlotCount][]pick

var memberRule = rule{
	SlotManager:       {m0, d0, a0},
	SlotGuideManager:  {m1, d0, a0},
	SlotDirector:      {d0, a0},
	SlotGuideDirector: {d1, a0},
	SlotAgent:         {a0},
}

// fallbackTable 每个槽位依次尝试，全部不存在时该槽位跳过
var fallbackTable = map[model.Role]rule{
	model.RoleCommon: memberRule,
	model.RoleVIP:    memberRule,
	model.RoleManager: {
		SlotManager:       {self},
		SlotGuideManager:  {m0, d0, a0},
		SlotDirector:      {d0, a0},
		SlotGuideDirector: {d1, a0},
		SlotAgent:         {a0},
	},
	model.RoleDirector: {
		SlotManager:       {m0, self},
		SlotGuideManager:  {m1, self},
		SlotDirector:      {self},
		SlotGuideDirector: {d0, a0},
		SlotAgent:         {a0},
	},
	model.RoleAgent: {
		SlotManager:       {self},
		SlotGuideManager:  {self},
		SlotDirector:      {self},
		SlotGuideDirector: {self},
		SlotAgent:         {self},
	},
}

// Assignment 五个槽位的收款人，nil 表示跳过
type Assignment [SlotCount]*model.User

// Resolve 按付款人角色计算各槽位收款人
func Resolve(payer *model.User, b Buckets) Assignment {
	var a Assignment
	if payer == nil {
		return a
	}
	r, ok := fallbackTable[payer.Role]
	if !ok {
		return a
	}
	for slot, picks := range r {
		for _, p := range picks {
			if u := b.lookup(payer, p); u != nil {
				a[slot] = u
				break
			}
		}
	}
	return a
}

func (b Buckets) lookup(payer *model.User, p pick) *model.User {
	var bucket []*model.User
	switch p.from {
	case fromSelf:
		return payer
	case fromManagers:
		bucket = b.Managers
	case fromDirectors:
		bucket = b.Directors
	case fromAgents:
		bucket = b.Agents
	}
	if p.index < len(bucket) {
		return bucket[p.index]
	}
	return nil
}

// ============================================================================
// 分成计算
// ============================================================================

// Payout 单个槽位的分成
type Payout struct {
	Slot   Slot
	User   *model.User
	Amount decimal.Decimal
}

// Split 金额按比例拆分到已分配的槽位，每个槽位单独保留三位小数
// 每个槽位的日志金额即为入账金额，Net 只做加总不再舍入
func Split(a Assignment, amount decimal.Decimal, rates Rates) []Payout {
	payouts := make([]Payout, 0, SlotCount)
	for slot, u := range a {
		if u == nil {
			continue
		}
		payouts = append(payouts, Payout{
			Slot:   Slot(slot),
			User:   u,
			Amount: amount.Mul(rates[slot]).Round(3),
		})
	}
	return payouts
}

// Credit 按用户合并后的入账金额
type Credit struct {
	UserID string
	Amount decimal.Decimal
}

// Net 同一用户的多个槽位合并为一次入账，按 id 排序以固定加锁顺序
func Net(payouts []Payout) []Credit {
	sums := make(map[string]decimal.Decimal, len(payouts))
	for _, p := range payouts {
		sums[p.User.ID] = sums[p.User.ID].Add(p.Amount)
	}

	credits := make([]Credit, 0, len(sums))
	for id, amount := range sums {
		credits = append(credits, Credit{UserID: id, Amount: amount})
	}
	sort.Slice(credits, func(i, j int) bool {
		return credits[i].UserID < credits[j].UserID
	})
	return credits
}
