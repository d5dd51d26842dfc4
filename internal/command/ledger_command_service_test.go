package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eaglebank/ledger-service/internal/policy"
	"github.com/eaglebank/ledger-service/internal/repository"
	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/eaglebank/ledger-service/shared/cqrs"
	"github.com/eaglebank/ledger-service/shared/events"
	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, stream, eventType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, stream+"/"+eventType)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingCache struct {
	mu      sync.Mutex
	views   map[string]models.BalanceView
	history []models.BalanceView
}

func (c *recordingCache) CacheBalanceView(_ context.Context, v *models.BalanceView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.views == nil {
		c.views = make(map[string]models.BalanceView)
	}
	c.views[v.UserID] = *v
	c.history = append(c.history, *v)
}

// failingNotifyStore fails every AppendNotification.
type failingNotifyStore struct {
	*repository.MemoryStore
}

func (failingNotifyStore) AppendNotification(context.Context, string, models.Notification) error {
	return errors.New("notification store down")
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

type fixture struct {
	store *repository.MemoryStore
	svc   *LedgerCommandService
	pub   *recordingPublisher
	cache *recordingCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	cache := &recordingCache{}
	svc := NewLedgerCommandService(store, policy.Default(), cache, pub, nil,
		WithClock(func() time.Time { return fixedNow }),
		WithRandom(func(n int) int { return 0 }),
	)
	return &fixture{store: store, svc: svc, pub: pub, cache: cache}
}

func (f *fixture) seed(t *testing.T, id string, balance models.Balance, admin bool) {
	t.Helper()
	err := f.store.CreateUser(context.Background(), &models.User{
		ID:      id,
		Name:    "User " + id,
		Email:   id + "@example.com",
		IsAdmin: admin,
		Balance: balance,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := f.store.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return u
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{}, false)
	ctx := context.Background()

	res, err := f.svc.Deposit(ctx, cqrs.DepositCommand{UserID: "usr-1", Amount: dec("250.50"), Account: models.AccountSavings})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !res.Balance.Savings.Equal(dec("250.50")) {
		t.Errorf("expected savings 250.50, got %s", res.Balance.Savings)
	}
	if res.Transaction.Type != models.TxTypeDeposit || res.Transaction.Status != models.TxStatusPosted {
		t.Errorf("unexpected transaction: %+v", res.Transaction)
	}
	if res.Transaction.Method != defaultDepositMethod {
		t.Errorf("expected default method, got %q", res.Transaction.Method)
	}

	u := f.user(t, "usr-1")
	if len(u.TransactionIDs) != 1 || u.TransactionIDs[0] != res.Transaction.ID {
		t.Errorf("transaction not linked to user: %v", u.TransactionIDs)
	}
	if len(u.Notifications) != 1 {
		t.Errorf("expected one notification, got %d", len(u.Notifications))
	}
	if got := f.cache.views["usr-1"]; !got.Total.Equal(dec("250.50")) {
		t.Errorf("cache not refreshed: %+v", got)
	}
	if f.pub.count() != 1 || f.pub.events[0] != events.LedgerEventsStream+"/"+events.DepositPosted {
		t.Errorf("unexpected events: %v", f.pub.events)
	}
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{}, false)

	tests := []struct {
		name  string
		cmd   cqrs.DepositCommand
		field string
	}{
		{"zero amount", cqrs.DepositCommand{UserID: "usr-1", Amount: decimal.Zero, Account: "checking"}, "amount"},
		{"negative amount", cqrs.DepositCommand{UserID: "usr-1", Amount: dec("-5"), Account: "checking"}, "amount"},
		{"sub-cent amount", cqrs.DepositCommand{UserID: "usr-1", Amount: dec("1.005"), Account: "checking"}, "amount"},
		{"unknown account", cqrs.DepositCommand{UserID: "usr-1", Amount: dec("10"), Account: "brokerage"}, "account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Deposit(context.Background(), tt.cmd)
			var vErr *apperr.ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
	if u := f.user(t, "usr-1"); len(u.TransactionIDs) != 0 || !u.Balance.Total().IsZero() {
		t.Errorf("rejected deposits changed state: %+v", u)
	}
}

func TestDepositUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Deposit(context.Background(), cqrs.DepositCommand{UserID: "usr-x", Amount: dec("1"), Account: "checking"})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDepositSumMatchesTransactions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{}, false)
	ctx := context.Background()

	amounts := []string{"10.00", "0.01", "99.99", "1000"}
	for _, a := range amounts {
		if _, err := f.svc.Deposit(ctx, cqrs.DepositCommand{UserID: "usr-1", Amount: dec(a), Account: "usdt"}); err != nil {
			t.Fatalf("deposit %s: %v", a, err)
		}
	}
	list, _ := f.store.ListTransactionsByUser(ctx, "usr-1")
	sum := decimal.Zero
	for _, txn := range list {
		sum = sum.Add(txn.Amount)
	}
	if u := f.user(t, "usr-1"); !u.Balance.USDT.Equal(sum) || !sum.Equal(dec("1110.00")) {
		t.Errorf("balance %s does not match transaction sum %s", u.Balance.USDT, sum)
	}
}

func TestConcurrentDeposits(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{}, false)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Deposit(ctx, cqrs.DepositCommand{UserID: "usr-1", Amount: dec("12.50"), Account: "checking"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}

	u := f.user(t, "usr-1")
	if want := dec("12.50").Mul(decimal.NewFromInt(n)); !u.Balance.Checking.Equal(want) {
		t.Errorf("expected %s, got %s", want, u.Balance.Checking)
	}
	if len(u.TransactionIDs) != n || len(u.Notifications) != n {
		t.Errorf("expected %d transactions and notifications, got %d and %d", n, len(u.TransactionIDs), len(u.Notifications))
	}
}

func TestDepositNotificationFailureDoesNotFail(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewLedgerCommandService(failingNotifyStore{store}, policy.Default(), nil, nil, nil)
	_ = store.CreateUser(context.Background(), &models.User{ID: "usr-1", Email: "a@example.com"})

	if _, err := svc.Deposit(context.Background(), cqrs.DepositCommand{UserID: "usr-1", Amount: dec("5"), Account: "checking"}); err != nil {
		t.Fatalf("deposit should succeed when notifying fails: %v", err)
	}
	u, _ := store.GetUserByID(context.Background(), "usr-1")
	if !u.Balance.Checking.Equal(dec("5")) {
		t.Errorf("expected balance 5, got %s", u.Balance.Checking)
	}
}

func TestInvest(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{Checking: dec("5000")}, false)

	res, err := f.svc.Invest(context.Background(), cqrs.InvestCommand{UserID: "usr-1", Plan: "starter", Amount: dec("500")})
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	if !res.Balance.Checking.Equal(dec("4500")) {
		t.Errorf("expected checking 4500, got %s", res.Balance.Checking)
	}
	if res.Investment.ExpectedReturn.StringFixed(2) != "560.00" {
		t.Errorf("expected return 560.00, got %s", res.Investment.ExpectedReturn)
	}
	if !res.Investment.MaturityDate.Equal(fixedNow.AddDate(0, 3, 0)) {
		t.Errorf("unexpected maturity %s", res.Investment.MaturityDate)
	}
	if res.Investment.Status != models.InvestmentActive {
		t.Errorf("expected Active, got %s", res.Investment.Status)
	}
	if res.Transaction.Type != models.TxTypeInvestment || res.Transaction.Status != models.TxStatusCompleted {
		t.Errorf("unexpected transaction %+v", res.Transaction)
	}
	if u := f.user(t, "usr-1"); len(u.Investments) != 1 || len(u.Notifications) != 1 {
		t.Errorf("expected one investment and notification, got %d and %d", len(u.Investments), len(u.Notifications))
	}
}

func TestInvestDebitsCheckingOnly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{Checking: dec("500"), Savings: dec("150"), USDT: dec("300")}, false)

	res, err := f.svc.Invest(context.Background(), cqrs.InvestCommand{UserID: "usr-1", Plan: "starter", Amount: dec("400")})
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	want := models.Balance{Checking: dec("100"), Savings: dec("150"), USDT: dec("300")}
	for _, key := range models.AccountKeys {
		got, _ := res.Balance.Get(key)
		exp, _ := want.Get(key)
		if !got.Equal(exp) {
			t.Errorf("%s: expected %s, got %s", key, exp, got)
		}
	}
	if res.Transaction.Account != models.AccountChecking || !res.Transaction.Amount.Equal(dec("400")) {
		t.Errorf("ledger entry does not match the debit: %+v", res.Transaction)
	}
}

func TestInvestRejectsWhenCheckingCannotCover(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{Checking: dec("100"), Savings: dec("400")}, false)

	_, err := f.svc.Invest(context.Background(), cqrs.InvestCommand{UserID: "usr-1", Plan: "starter", Amount: dec("300")})
	var vErr *apperr.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "amount" {
		t.Fatalf("expected validation error on amount, got %v", err)
	}
	u := f.user(t, "usr-1")
	if !u.Balance.Checking.Equal(dec("100")) || !u.Balance.Savings.Equal(dec("400")) {
		t.Errorf("rejected investment moved money: %+v", u.Balance)
	}
	if len(u.Investments) != 0 || len(u.TransactionIDs) != 0 || f.pub.count() != 0 {
		t.Errorf("rejected investment left side effects")
	}
}

func TestInvestInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{Checking: dec("100")}, false)

	_, err := f.svc.Invest(context.Background(), cqrs.InvestCommand{UserID: "usr-1", Plan: "starter", Amount: dec("150")})
	var fErr *apperr.InsufficientFundsError
	if !errors.As(err, &fErr) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if !fErr.Required.Equal(dec("50")) {
		t.Errorf("expected required 50, got %s", fErr.Required)
	}
	u := f.user(t, "usr-1")
	if !u.Balance.Checking.Equal(dec("100")) || len(u.Investments) != 0 || len(u.TransactionIDs) != 0 {
		t.Errorf("failed investment changed state: %+v", u)
	}
	if len(u.Notifications) != 0 || f.pub.count() != 0 {
		t.Errorf("failed investment emitted side effects")
	}
}

func TestInvestValidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{Checking: dec("100000")}, false)

	tests := []struct {
		name  string
		plan  string
		amt   string
		field string
	}{
		{"unknown plan", "platinum", "500", "plan"},
		{"below plan minimum", "starter", "99.99", "amount"},
		{"above plan maximum", "starter", "5000.01", "amount"},
		{"growth lower bound", "growth", "5000", "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Invest(context.Background(), cqrs.InvestCommand{UserID: "usr-1", Plan: tt.plan, Amount: dec(tt.amt)})
			var vErr *apperr.ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestInvestConcurrentNeverOverdraws(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{Checking: dec("1000")}, false)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Invest(ctx, cqrs.InvestCommand{UserID: "usr-1", Plan: "starter", Amount: dec("300")}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Errorf("expected 3 investments to fit, got %d", succeeded)
	}
	if u := f.user(t, "usr-1"); !u.Balance.Checking.Equal(dec("100")) {
		t.Errorf("expected 100 left, got %s", u.Balance.Checking)
	}
}

func TestApplyForLoan(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{Savings: dec("200")}, false)
	ctx := context.Background()

	first, err := f.svc.ApplyForLoan(ctx, cqrs.ApplyForLoanCommand{UserID: "usr-1", Amount: dec("4000")})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !first.Created || !first.Offer.Equal(dec("4000")) {
		t.Errorf("unexpected first result %+v", first)
	}

	second, err := f.svc.ApplyForLoan(ctx, cqrs.ApplyForLoanCommand{UserID: "usr-1", Amount: dec("9000")})
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if second.Created || !second.Offer.Equal(dec("4000")) {
		t.Errorf("second application should return stored offer, got %+v", second)
	}

	u := f.user(t, "usr-1")
	if !u.LoanSubmitted || u.LoanOffer == nil || !u.LoanOffer.Equal(dec("4000")) {
		t.Errorf("unexpected loan state: %+v", u)
	}
	if len(u.Notifications) != 1 {
		t.Errorf("expected one notification, got %d", len(u.Notifications))
	}
}

func TestApplyForLoanRejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-poor", models.Balance{Checking: dec("199.99"), Savings: dec("199.99")}, false)
	f.seed(t, "usr-ok", models.Balance{USDT: dec("500")}, false)

	tests := []struct {
		name  string
		user  string
		amt   string
		field string
	}{
		{"below range", "usr-ok", "1999.99", "amount"},
		{"above range", "usr-ok", "15000.01", "amount"},
		{"no counter at 200", "usr-poor", "3000", "balance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ApplyForLoan(context.Background(), cqrs.ApplyForLoanCommand{UserID: tt.user, Amount: dec(tt.amt)})
			var vErr *apperr.ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestUpdateLoanOfferWithKYC(t *testing.T) {
	f := newFixture(t)
	f.svc = NewLedgerCommandService(f.store, policy.Default(), nil, nil, nil,
		WithRandom(func(n int) int { return n - 1 }))
	f.seed(t, "usr-1", models.Balance{}, false)
	ctx := context.Background()

	if _, err := f.svc.UpdateLoanOfferWithKYC(ctx, cqrs.SubmitKYCCommand{UserID: "usr-1", SSN: " "}); err == nil {
		t.Fatal("expected validation error for blank ssn")
	}

	res, err := f.svc.UpdateLoanOfferWithKYC(ctx, cqrs.SubmitKYCCommand{UserID: "usr-1", SSN: "123-45-6789", IDDocumentRef: "doc-1"})
	if err != nil {
		t.Fatalf("kyc: %v", err)
	}
	if !res.Offer.Equal(dec("15000")) {
		t.Errorf("expected top of range, got %s", res.Offer)
	}
	u := f.user(t, "usr-1")
	if u.KYCStatus != models.KYCSubmitted || !u.HasSubmittedIDSSN || u.SSN != "123-45-6789" {
		t.Errorf("unexpected kyc state %+v", u)
	}
}

func TestKYCOfferStaysInRange(t *testing.T) {
	store := repository.NewMemoryStore()
	_ = store.CreateUser(context.Background(), &models.User{ID: "usr-1", Email: "a@example.com"})
	svc := NewLedgerCommandService(store, policy.Default(), nil, nil, nil)
	r := policy.Default().KYCOfferRange

	for i := 0; i < 50; i++ {
		res, err := svc.UpdateLoanOfferWithKYC(context.Background(), cqrs.SubmitKYCCommand{UserID: "usr-1", SSN: "1", IDDocumentRef: "d"})
		if err != nil {
			t.Fatalf("kyc: %v", err)
		}
		if !r.Contains(res.Offer) || !res.Offer.Equal(res.Offer.Truncate(0)) {
			t.Fatalf("offer %s outside [%s, %s] or not whole", res.Offer, r.Min, r.Max)
		}
	}
}

func TestAdminAdjustBalance(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-admin", models.Balance{}, true)
	f.seed(t, "usr-1", models.Balance{Checking: dec("100"), Savings: dec("50")}, false)

	res, err := f.svc.AdminAdjustBalance(context.Background(), cqrs.AdminAdjustBalanceCommand{
		AdminID:  "usr-admin",
		UserID:   "usr-1",
		Checking: decPtr("40"),
		Savings:  decPtr("50"),
		USDT:     decPtr("10"),
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if len(res.Transactions) != 2 {
		t.Fatalf("expected two adjustment transactions, got %d", len(res.Transactions))
	}
	if res.Transactions[0].Method != "admin-debit" || !res.Transactions[0].Amount.Equal(dec("60")) {
		t.Errorf("unexpected checking adjustment %+v", res.Transactions[0])
	}
	if res.Transactions[1].Method != "admin-credit" || res.Transactions[1].Account != models.AccountUSDT {
		t.Errorf("unexpected usdt adjustment %+v", res.Transactions[1])
	}
	u := f.user(t, "usr-1")
	if !u.Balance.Checking.Equal(dec("40")) || !u.Balance.USDT.Equal(dec("10")) || len(u.Notifications) != 1 {
		t.Errorf("unexpected user after adjust %+v", u)
	}
}

func TestAdminAdjustBalanceRejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-admin", models.Balance{}, true)
	f.seed(t, "usr-1", models.Balance{}, false)
	ctx := context.Background()

	_, err := f.svc.AdminAdjustBalance(ctx, cqrs.AdminAdjustBalanceCommand{AdminID: "usr-1", UserID: "usr-1", Checking: decPtr("1")})
	var aErr *apperr.AuthorizationError
	if !errors.As(err, &aErr) {
		t.Errorf("expected authorization error, got %v", err)
	}

	_, err = f.svc.AdminAdjustBalance(ctx, cqrs.AdminAdjustBalanceCommand{AdminID: "usr-admin", UserID: "usr-1", Savings: decPtr("-1")})
	var vErr *apperr.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != models.AccountSavings {
		t.Errorf("expected validation error on savings, got %v", err)
	}

	_, err = f.svc.AdminAdjustBalance(ctx, cqrs.AdminAdjustBalanceCommand{AdminID: "usr-admin", UserID: "usr-1"})
	if !errors.As(err, &vErr) {
		t.Errorf("expected validation error for empty adjustment, got %v", err)
	}
}

func TestAdminSetKYCStatus(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-admin", models.Balance{}, true)
	f.seed(t, "usr-1", models.Balance{}, false)
	ctx := context.Background()

	if _, err := f.svc.AdminSetKYCStatus(ctx, cqrs.AdminSetKYCStatusCommand{AdminID: "usr-admin", UserID: "usr-1", Status: models.KYCVerified}); err == nil {
		t.Fatal("expected rejection before documents are submitted")
	}
	if _, err := f.svc.UpdateLoanOfferWithKYC(ctx, cqrs.SubmitKYCCommand{UserID: "usr-1", SSN: "1", IDDocumentRef: "d"}); err != nil {
		t.Fatalf("kyc: %v", err)
	}
	u, err := f.svc.AdminSetKYCStatus(ctx, cqrs.AdminSetKYCStatusCommand{AdminID: "usr-admin", UserID: "usr-1", Status: models.KYCVerified})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if u.KYCStatus != models.KYCVerified {
		t.Errorf("expected verified, got %s", u.KYCStatus)
	}
}

func TestAdminTransactionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-admin", models.Balance{}, true)
	f.seed(t, "usr-1", models.Balance{Checking: dec("10")}, false)
	ctx := context.Background()

	created, err := f.svc.AdminCreateTransaction(ctx, cqrs.AdminCreateTransactionCommand{
		AdminID: "usr-admin", UserID: "usr-1", Type: models.TxTypeWithdrawal, Amount: dec("25"), Method: "wire",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != models.TxStatusPosted || created.Account != models.AccountChecking {
		t.Errorf("expected defaults, got %+v", created)
	}
	if u := f.user(t, "usr-1"); !u.Balance.Checking.Equal(dec("10")) || len(u.TransactionIDs) != 1 {
		t.Errorf("create should only link the transaction: %+v", u)
	}

	status := models.TxStatusFailed
	updated, err := f.svc.AdminUpdateTransaction(ctx, cqrs.AdminUpdateTransactionCommand{
		AdminID: "usr-admin", TransactionID: created.ID, Status: &status,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != models.TxStatusFailed || updated.Method != "wire" {
		t.Errorf("patch touched the wrong fields: %+v", updated)
	}

	if err := f.svc.AdminDeleteTransaction(ctx, cqrs.AdminDeleteTransactionCommand{AdminID: "usr-admin", TransactionID: created.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.store.GetTransaction(ctx, created.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected transaction gone, got %v", err)
	}
	if u := f.user(t, "usr-1"); len(u.TransactionIDs) != 0 {
		t.Errorf("transaction still linked: %v", u.TransactionIDs)
	}
	if err := f.svc.AdminDeleteTransaction(ctx, cqrs.AdminDeleteTransactionCommand{AdminID: "usr-admin", TransactionID: created.ID}); !apperr.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestAdminCreateTransactionValidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-admin", models.Balance{}, true)
	f.seed(t, "usr-1", models.Balance{}, false)

	tests := []struct {
		name  string
		cmd   cqrs.AdminCreateTransactionCommand
		field string
	}{
		{"bad type", cqrs.AdminCreateTransactionCommand{Type: "gift", Amount: dec("1")}, "type"},
		{"bad amount", cqrs.AdminCreateTransactionCommand{Type: "deposit", Amount: dec("0")}, "amount"},
		{"bad status", cqrs.AdminCreateTransactionCommand{Type: "deposit", Amount: dec("1"), Status: "Lost"}, "status"},
		{"bad account", cqrs.AdminCreateTransactionCommand{Type: "deposit", Amount: dec("1"), Account: "gold"}, "account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cmd.AdminID = "usr-admin"
			tt.cmd.UserID = "usr-1"
			_, err := f.svc.AdminCreateTransaction(context.Background(), tt.cmd)
			var vErr *apperr.ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.pub.err = fmt.Errorf("redis unavailable")
	f.seed(t, "usr-1", models.Balance{}, false)

	if _, err := f.svc.Deposit(context.Background(), cqrs.DepositCommand{UserID: "usr-1", Amount: dec("1"), Account: "checking"}); err != nil {
		t.Fatalf("deposit should ignore publish errors: %v", err)
	}
}

func TestConcurrentDepositsCacheViewsInCommitOrder(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "usr-1", models.Balance{}, false)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Deposit(context.Background(), cqrs.DepositCommand{UserID: "usr-1", Amount: dec("1"), Account: "checking"})
		}()
	}
	wg.Wait()

	f.cache.mu.Lock()
	defer f.cache.mu.Unlock()
	if len(f.cache.history) != n {
		t.Fatalf("expected %d cache writes, got %d", n, len(f.cache.history))
	}
	for i, v := range f.cache.history {
		if want := decimal.NewFromInt(int64(i + 1)); !v.Balance.Checking.Equal(want) {
			t.Fatalf("write %d: expected checking %s, got %s", i, want, v.Balance.Checking)
		}
	}
}
