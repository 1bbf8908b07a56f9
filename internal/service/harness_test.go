package service

import (
	"time"

	"hgnc/internal/config"
	"hgnc/internal/logger"
	"hgnc/internal/model"
	"hgnc/internal/referral"

	"github.com/shopspring/decimal"
)

const testTopic = "commission-settled"

var testProps = config.StaticProperties{
	DefaultGoodsPointRate:   decimal.RequireFromString("0.5"),
	VIPThreshold:            decimal.NewFromInt(800),
	ManagerCommission:       decimal.RequireFromString("0.05"),
	GuideManagerCommission:  decimal.RequireFromString("0.03"),
	DirectorCommission:      decimal.RequireFromString("0.04"),
	GuideDirectorCommission: decimal.RequireFromString("0.02"),
	AgentCommission:         decimal.RequireFromString("0.01"),
	DefaultPointDumpRate:    decimal.RequireFromString("0.01"),
}

type harness struct {
	store      *memStore
	users      *UserService
	ledger     *LedgerService
	commission *CommissionService
}

func newHarness() *harness {
	store := newMemStore()
	log := logger.Discard()
	users := memUsers{store}
	ledgerRepo := memLedger{store}
	walker := referral.NewWalker(users, 0)

	ledger := NewLedgerService(store, users, ledgerRepo, testProps, log)
	ledger.now = func() time.Time { return store.clock }

	return &harness{
		store:      store,
		users:      NewUserService(store, users, ledgerRepo, walker, log),
		ledger:     ledger,
		commission: NewCommissionService(store, users, ledgerRepo, memOutbox{store}, walker, testProps, testTopic, log),
	}
}

// chain A(COMMON) -> B(MANAGER) -> C(DIRECTOR) -> D(AGENT)
func (h *harness) chain() {
	h.store.addUser("d", "CODE_D", "", model.RoleAgent)
	h.store.addUser("c", "CODE_C", "CODE_D", model.RoleDirector)
	h.store.addUser("b", "CODE_B", "CODE_C", model.RoleManager)
	h.store.addUser("a", "CODE_A", "CODE_B", model.RoleCommon)
}

func (h *harness) user(id string) model.User {
	return *h.store.users[id]
}
