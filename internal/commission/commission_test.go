package commission

import (
	"testing"

	"hgnc/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type CommissionTestSuite struct {
	suite.Suite
	rates Rates
}

func TestCommissionSuite(t *testing.T) {
	suite.Run(t, new(CommissionTestSuite))
}

func (s *CommissionTestSuite) SetupTest() {
	s.rates = Rates{
		SlotManager:       decimal.RequireFromString("0.05"),
		SlotGuideManager:  decimal.RequireFromString("0.02"),
		SlotDirector:      decimal.RequireFromString("0.03"),
		SlotGuideDirector: decimal.RequireFromString("0.01"),
		SlotAgent:         decimal.RequireFromString("0.04"),
	}
}

func user(id string, role model.Role) *model.User {
	return &model.User{ID: id, Role: role, Alive: true}
}

func recipients(a Assignment) [SlotCount]string {
	var out [SlotCount]string
	for i, u := range a {
		if u != nil {
			out[i] = u.ID
		}
	}
	return out
}

// 完整链：m1 m2 d1 d2 a1 a2
func fullChain() []*model.User {
	return []*model.User{
		user("m1", model.RoleManager),
		user("d1", model.RoleDirector),
		user("m2", model.RoleManager),
		user("d2", model.RoleDirector),
		user("a1", model.RoleAgent),
		user("a2", model.RoleAgent),
	}
}

func (s *CommissionTestSuite) TestPartition_SkipsDeadAndMembers() {
	dead := user("m0", model.RoleManager)
	dead.Alive = false
	chain := append([]*model.User{dead, user("v", model.RoleVIP), user("c", model.RoleCommon)}, fullChain()...)

	b := Partition(chain)

	s.Equal([]string{"m1", "m2"}, []string{b.Managers[0].ID, b.Managers[1].ID})
	s.Equal([]string{"d1", "d2"}, []string{b.Directors[0].ID, b.Directors[1].ID})
	s.Equal([]string{"a1", "a2"}, []string{b.Agents[0].ID, b.Agents[1].ID})
}

func (s *CommissionTestSuite) TestResolve_FullChain() {
	b := Partition(fullChain())

	cases := []struct {
		role model.Role
		want [SlotCount]string
	}{
		{model.RoleCommon, [SlotCount]string{"m1", "m2", "d1", "d2", "a1"}},
		{model.RoleVIP, [SlotCount]string{"m1", "m2", "d1", "d2", "a1"}},
		{model.RoleManager, [SlotCount]string{"payer", "m1", "d1", "d2", "a1"}},
		{model.RoleDirector, [SlotCount]string{"m1", "m2", "payer", "d1", "a1"}},
		{model.RoleAgent, [SlotCount]string{"payer", "payer", "payer", "payer", "payer"}},
	}

	for _, c := range cases {
		s.Run(c.role.String(), func() {
			got := Resolve(user("payer", c.role), b)
			s.Equal(c.want, recipients(got))
		})
	}
}

func (s *CommissionTestSuite) TestResolve_Fallbacks() {
	cases := []struct {
		name  string
		role  model.Role
		chain []*model.User
		want  [SlotCount]string
	}{
		{
			name:  "会员仅有总监和代理",
			role:  model.RoleCommon,
			chain: []*model.User{user("d1", model.RoleDirector), user("a1", model.RoleAgent)},
			want:  [SlotCount]string{"d1", "d1", "d1", "a1", "a1"},
		},
		{
			name:  "会员仅有一个经理",
			role:  model.RoleVIP,
			chain: []*model.User{user("m1", model.RoleManager)},
			want:  [SlotCount]string{"m1", "", "", "", ""},
		},
		{
			name:  "会员仅有代理",
			role:  model.RoleCommon,
			chain: []*model.User{user("a1", model.RoleAgent)},
			want:  [SlotCount]string{"a1", "a1", "a1", "a1", "a1"},
		},
		{
			name:  "会员无任何上级",
			role:  model.RoleCommon,
			chain: nil,
			want:  [SlotCount]string{},
		},
		{
			name:  "经理无上级经理",
			role:  model.RoleManager,
			chain: []*model.User{user("d1", model.RoleDirector)},
			want:  [SlotCount]string{"payer", "d1", "d1", "", ""},
		},
		{
			name:  "经理只有代理",
			role:  model.RoleManager,
			chain: []*model.User{user("a1", model.RoleAgent)},
			want:  [SlotCount]string{"payer", "a1", "a1", "a1", "a1"},
		},
		{
			name:  "总监无上级经理",
			role:  model.RoleDirector,
			chain: []*model.User{user("d1", model.RoleDirector)},
			want:  [SlotCount]string{"payer", "payer", "payer", "d1", ""},
		},
		{
			name:  "总监只有一个经理",
			role:  model.RoleDirector,
			chain: []*model.User{user("m1", model.RoleManager), user("a1", model.RoleAgent)},
			want:  [SlotCount]string{"m1", "payer", "payer", "a1", "a1"},
		},
		{
			name:  "代理忽略上级",
			role:  model.RoleAgent,
			chain: fullChain(),
			want:  [SlotCount]string{"payer", "payer", "payer", "payer", "payer"},
		},
	}

	for _, c := range cases {
		s.Run(c.name, func() {
			got := Resolve(user("payer", c.role), Partition(c.chain))
			s.Equal(c.want, recipients(got))
		})
	}
}

func (s *CommissionTestSuite) TestSplit_SkipsEmptySlots() {
	a := Resolve(user("payer", model.RoleVIP), Partition([]*model.User{user("m1", model.RoleManager)}))

	payouts := Split(a, decimal.NewFromInt(1000), s.rates)

	s.Require().Len(payouts, 1)
	s.Equal(SlotManager, payouts[0].Slot)
	s.True(payouts[0].Amount.Equal(decimal.NewFromInt(50)))
}

func (s *CommissionTestSuite) TestNet_SumConservation() {
	amount := decimal.NewFromInt(1000)
	a := Resolve(user("payer", model.RoleCommon), Partition(fullChain()))

	credits := Net(Split(a, amount, s.rates))

	total := decimal.Zero
	got := make([]string, 0, len(credits))
	for _, c := range credits {
		total = total.Add(c.Amount)
		got = append(got, c.UserID)
	}
	s.True(total.Equal(amount.Mul(s.rates.Total())), "total=%s", total)
	s.Equal([]string{"a1", "d1", "d2", "m1", "m2"}, got)
}

func (s *CommissionTestSuite) TestNet_AgentCollapsesToOneCredit() {
	a := Resolve(user("payer", model.RoleAgent), Partition(fullChain()))
	payouts := Split(a, decimal.NewFromInt(1000), s.rates)

	credits := Net(payouts)

	s.Len(payouts, 5)
	s.Require().Len(credits, 1)
	s.Equal("payer", credits[0].UserID)
	s.True(credits[0].Amount.Equal(decimal.NewFromInt(150)))
}

func (s *CommissionTestSuite) TestSlotLedgerTypes() {
	s.Equal(model.LedgerTypeCommissionManager, SlotManager.LedgerType())
	s.Equal(model.LedgerTypeCommissionGuideManager, SlotGuideManager.LedgerType())
	s.Equal(model.LedgerTypeCommissionDirector, SlotDirector.LedgerType())
	s.Equal(model.LedgerTypeCommissionGuideDirector, SlotGuideDirector.LedgerType())
	s.Equal(model.LedgerTypeCommissionAgent, SlotAgent.LedgerType())
}

func (s *CommissionTestSuite) TestNet_EqualsSumOfRoundedSlots() {
	share := decimal.RequireFromString("0.0333")
	rates := Rates{share, share, share, share, share}
	a := Resolve(user("payer", model.RoleAgent), Buckets{})

	payouts := Split(a, decimal.RequireFromString("10.01"), rates)
	credits := Net(payouts)

	// 逐槽位舍入 5 × 0.333，而不是对 1.666665 整体舍入
	s.Require().Len(credits, 1)
	s.True(credits[0].Amount.Equal(decimal.RequireFromString("1.665")), "got %s", credits[0].Amount)

	logged := decimal.Zero
	for _, p := range payouts {
		logged = logged.Add(p.Amount)
	}
	s.True(logged.Equal(credits[0].Amount))
}

func (s *CommissionTestSuite) TestSplit_RoundsToThreePlaces() {
	rates := Rates{SlotAgent: decimal.RequireFromString("0.0333")}
	a := Resolve(user("payer", model.RoleAgent), Buckets{})

	payouts := Split(a, decimal.RequireFromString("10.01"), rates)

	// 10.01 * 0.0333 = 0.333333
	s.True(payouts[4].Amount.Equal(decimal.RequireFromString("0.333")))
}
