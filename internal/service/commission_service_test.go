package service

import (
	"context"
	"errors"
	"testing"

	"hgnc/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type CommissionServiceTestSuite struct {
	suite.Suite
	h   *harness
	ctx context.Context
}

func TestCommissionServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CommissionServiceTestSuite))
}

func (s *CommissionServiceTestSuite) SetupTest() {
	s.h = newHarness()
	s.ctx = context.Background()
}

func (s *CommissionServiceTestSuite) remain(id string) decimal.Decimal {
	return s.h.user(id).Remain
}

func (s *CommissionServiceTestSuite) TestClear_Chain() {
	s.h.chain()

	settlement, err := s.h.commission.Clear(s.ctx, "a", dec("1000"))
	s.Require().NoError(err)
	s.Len(settlement.Payouts, 5)
	s.Len(settlement.Credits, 3)

	// manager=B, guide_manager/director=C, guide_director/agent=D
	s.True(dec("50").Equal(s.remain("b")), s.remain("b").String())
	s.True(dec("70").Equal(s.remain("c")), s.remain("c").String())
	s.True(dec("30").Equal(s.remain("d")), s.remain("d").String())
	s.True(s.remain("a").IsZero())

	entries := s.h.store.stream(model.StreamGeneral, "")
	s.Require().Len(entries, 5)
	got := map[string]string{}
	for _, e := range entries {
		s.Equal("a", e.Executor)
		got[e.Type] = e.Influencer + ":" + e.Description
	}
	s.Equal(map[string]string{
		"commission_manager":        "b:50.000",
		"commission_guide_manager":  "c:30.000",
		"commission_director":       "c:40.000",
		"commission_guide_director": "d:20.000",
		"commission_agent":          "d:10.000",
	}, got)

	s.Require().Len(s.h.store.outbox, 1)
	msg := s.h.store.outbox[0]
	s.Equal(testTopic, msg.Topic)
	s.Equal(settlement.SettlementNo, msg.MessageKey)
	s.True(containsAll(msg.Payload, settlement.SettlementNo, "guide_director"), msg.Payload)
}

func (s *CommissionServiceTestSuite) TestClear_AgentTakesAllSlots() {
	s.h.chain()
	s.h.store.addUser("agent", "AGENT1", "CODE_D", model.RoleAgent)

	settlement, err := s.h.commission.Clear(s.ctx, "agent", dec("200"))
	s.Require().NoError(err)
	s.Len(settlement.Payouts, 5)
	s.Require().Len(settlement.Credits, 1)

	s.Equal(1, s.h.store.increments["agent"])
	s.Zero(s.h.store.increments["d"])
	s.True(dec("30").Equal(s.remain("agent")), s.remain("agent").String())

	entries := s.h.store.stream(model.StreamGeneral, "")
	s.Len(entries, 5)
	for _, e := range entries {
		s.Equal("agent", e.Influencer)
	}
}

func (s *CommissionServiceTestSuite) TestClear_ManagerPaysSelfFirst() {
	s.h.chain()

	_, err := s.h.commission.Clear(s.ctx, "b", dec("1000"))
	s.Require().NoError(err)

	// manager=B(self), guide_manager/director=C, guide_director/agent=D
	s.True(dec("50").Equal(s.remain("b")))
	s.True(dec("70").Equal(s.remain("c")))
	s.True(dec("30").Equal(s.remain("d")))
}

func (s *CommissionServiceTestSuite) TestClear_DeadAncestorSkipped() {
	s.h.chain()
	s.h.store.users["b"].Alive = false

	_, err := s.h.commission.Clear(s.ctx, "a", dec("1000"))
	s.Require().NoError(err)

	s.True(s.remain("b").IsZero())
	// 没有经理时 manager 与 guide_manager 都回退到总监
	s.True(dec("120").Equal(s.remain("c")), s.remain("c").String())
	s.True(dec("30").Equal(s.remain("d")))
}

func (s *CommissionServiceTestSuite) TestClear_NoAncestorsWritesNothing() {
	s.h.store.addUser("solo", "SOLO01", "", model.RoleCommon)

	settlement, err := s.h.commission.Clear(s.ctx, "solo", dec("1000"))
	s.Require().NoError(err)
	s.Empty(settlement.Payouts)
	s.Empty(s.h.store.stream(model.StreamGeneral, ""))
	s.Empty(s.h.store.outbox)
}

func (s *CommissionServiceTestSuite) TestClear_CreditFailureRollsBackAll() {
	s.h.chain()
	s.h.store.inject("IncrementBalance", "d", errors.New("row lock timeout"))

	_, err := s.h.commission.Clear(s.ctx, "a", dec("1000"))
	s.Error(err)

	s.True(s.remain("b").IsZero())
	s.True(s.remain("c").IsZero())
	s.Empty(s.h.store.stream(model.StreamGeneral, ""))
	s.Empty(s.h.store.outbox)
}

func (s *CommissionServiceTestSuite) TestClear_OutboxFailureRollsBack() {
	s.h.chain()
	s.h.store.inject("Outbox", testTopic, errors.New("insert failed"))

	_, err := s.h.commission.Clear(s.ctx, "a", dec("1000"))
	s.Error(err)
	s.True(s.remain("b").IsZero())
	s.Empty(s.h.store.stream(model.StreamGeneral, ""))
}

func (s *CommissionServiceTestSuite) TestClear_InvalidAmount() {
	s.h.chain()

	_, err := s.h.commission.Clear(s.ctx, "a", decimal.Zero)
	s.ErrorIs(err, ErrInvalidAmount)
}

func (s *CommissionServiceTestSuite) TestPlan_Rounding() {
	s.h.chain()

	payouts, err := s.h.commission.Plan(s.ctx, nil, "a", dec("33.3333"))
	s.Require().NoError(err)
	s.Require().Len(payouts, 5)
	s.Equal("1.667", payouts[0].Amount.String())
}
