package command

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/eaglebank/ledger-service/internal/policy"
	"github.com/eaglebank/ledger-service/internal/repository"
	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/eaglebank/ledger-service/shared/cqrs"
	"github.com/eaglebank/ledger-service/shared/events"
	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/eaglebank/ledger-service/shared/utils"
	"github.com/shopspring/decimal"
)

const defaultDepositMethod = "deposit"

var (
	transactionTypes = map[string]bool{
		models.TxTypeDeposit:         true,
		models.TxTypeInvestment:      true,
		models.TxTypeWithdrawal:      true,
		models.TxTypeAdminAdjustment: true,
		models.TxTypeLoan:            true,
		models.TxTypeTransfer:        true,
	}
	transactionStatuses = map[string]bool{
		models.TxStatusPosted:    true,
		models.TxStatusPending:   true,
		models.TxStatusCompleted: true,
		models.TxStatusFailed:    true,
	}
)

// LedgerCommandService applies every balance-affecting operation. Each one
// runs as a single unit of work on the user's aggregate.
type LedgerCommandService struct {
	emitter
	policy *policy.Policy
	intn   func(n int) int
}

// Option customises a LedgerCommandService.
type Option func(*LedgerCommandService)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerCommandService) { s.now = now }
}

// WithRandom replaces the source used for maturity terms and KYC offers.
// intn must return a value in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(s *LedgerCommandService) { s.intn = intn }
}

func NewLedgerCommandService(
	store repository.LedgerStore,
	pol *policy.Policy,
	cache BalanceCache,
	publisher EventPublisher,
	log *slog.Logger,
	opts ...Option,
) *LedgerCommandService {
	s := &LedgerCommandService{
		emitter: newEmitter(store, cache, publisher, log),
		policy:  pol,
		intn:    rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deposit credits one counter and records a Posted deposit transaction.
func (s *LedgerCommandService) Deposit(ctx context.Context, cmd cqrs.DepositCommand) (*cqrs.DepositResult, error) {
	const op = "command.Deposit"
	if err := validateAmount("amount", cmd.Amount); err != nil {
		return nil, err
	}
	if err := validateAccount(cmd.Account); err != nil {
		return nil, err
	}
	method := strings.TrimSpace(cmd.Method)
	if method == "" {
		method = defaultDepositMethod
	}

	var result *cqrs.DepositResult
	err := s.mutate(ctx, op, cmd.UserID, func(tx repository.LedgerTx) (*effect, error) {
		u := tx.User()
		now := s.now()
		current, _ := u.Balance.Get(cmd.Account)
		u.Balance.Set(cmd.Account, current.Add(cmd.Amount))

		txn := s.newTransaction(u.ID, models.TxTypeDeposit, cmd.Amount, method, models.TxStatusPosted, cmd.Account, now)
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return nil, err
		}
		u.TransactionIDs = append(u.TransactionIDs, txn.ID)
		u.UpdatedAt = now
		if err := tx.SaveUser(ctx); err != nil {
			return nil, err
		}

		result = &cqrs.DepositResult{Transaction: txn, Balance: u.Balance}
		return &effect{
			balance:      models.ToBalanceView(u),
			notification: fmt.Sprintf("Deposit of %s to your %s account via %s was posted.", money(cmd.Amount), cmd.Account, method),
			eventType:    events.DepositPosted,
			event:        ledgerEvent(u.ID, txn),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("deposit posted",
		slog.String("user_id", cmd.UserID), slog.String("account", cmd.Account), slog.String("amount", cmd.Amount.StringFixed(2)))
	return result, nil
}

// Invest opens a position in a plan. Affordability is judged on the total of
// all counters, but the amount is debited from checking alone, so checking
// must cover it too.
func (s *LedgerCommandService) Invest(ctx context.Context, cmd cqrs.InvestCommand) (*cqrs.InvestResult, error) {
	const op = "command.Invest"
	plan, ok := s.policy.Plan(cmd.Plan)
	if !ok {
		return nil, apperr.Validation("plan", fmt.Sprintf("unknown investment plan %q", cmd.Plan))
	}
	if err := validateAmount("amount", cmd.Amount); err != nil {
		return nil, err
	}
	if !plan.Contains(cmd.Amount) {
		return nil, apperr.Validation("amount", fmt.Sprintf("must be between %s and %s for the %s plan",
			plan.Min.StringFixed(2), plan.Max.StringFixed(2), plan.Name))
	}

	var result *cqrs.InvestResult
	err := s.mutate(ctx, op, cmd.UserID, func(tx repository.LedgerTx) (*effect, error) {
		u := tx.User()
		total := u.Balance.Total()
		if total.LessThan(cmd.Amount) {
			return nil, &apperr.InsufficientFundsError{Required: cmd.Amount.Sub(total)}
		}
		if u.Balance.Checking.LessThan(cmd.Amount) {
			return nil, apperr.Validation("amount", fmt.Sprintf(
				"investments are funded from checking; checking balance is %s", money(u.Balance.Checking)))
		}
		u.Balance.Checking = u.Balance.Checking.Sub(cmd.Amount)

		now := s.now()
		span := s.policy.MaxTermMonths - s.policy.MinTermMonths + 1
		months := s.policy.MinTermMonths + s.intn(span)
		inv := models.Investment{
			ID:             utils.GenerateID(utils.InvestmentIDPrefix),
			Plan:           plan.Key,
			PlanName:       plan.Name,
			Amount:         cmd.Amount,
			Rate:           plan.Rate,
			StartDate:      now,
			MaturityDate:   now.AddDate(0, months, 0),
			Status:         models.InvestmentActive,
			ExpectedReturn: policy.ExpectedReturn(cmd.Amount, plan.Rate),
		}
		u.Investments = append(u.Investments, inv)

		txn := s.newTransaction(u.ID, models.TxTypeInvestment, cmd.Amount, "balance", models.TxStatusCompleted, models.AccountChecking, now)
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return nil, err
		}
		u.TransactionIDs = append(u.TransactionIDs, txn.ID)
		u.UpdatedAt = now
		if err := tx.SaveUser(ctx); err != nil {
			return nil, err
		}

		result = &cqrs.InvestResult{Investment: inv, Transaction: txn, Balance: u.Balance}
		return &effect{
			balance: models.ToBalanceView(u),
			notification: fmt.Sprintf("Investment of %s in the %s plan started. Expected return %s by %s.",
				money(cmd.Amount), plan.Name, money(inv.ExpectedReturn), inv.MaturityDate.Format("2006-01-02")),
			eventType: events.InvestmentCreated,
			event:     ledgerEvent(u.ID, txn),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("investment created",
		slog.String("user_id", cmd.UserID), slog.String("plan", plan.Key), slog.String("amount", cmd.Amount.StringFixed(2)))
	return result, nil
}

// ApplyForLoan records a loan offer. A user holds at most one offer; a second
// application returns the stored offer unchanged and emits nothing.
func (s *LedgerCommandService) ApplyForLoan(ctx context.Context, cmd cqrs.ApplyForLoanCommand) (*cqrs.LoanResult, error) {
	const op = "command.ApplyForLoan"
	if err := validateAmount("amount", cmd.Amount); err != nil {
		return nil, err
	}
	r := s.policy.ApplyRange
	if !r.Contains(cmd.Amount) {
		return nil, apperr.Validation("amount", fmt.Sprintf("must be between %s and %s", r.Min.StringFixed(2), r.Max.StringFixed(2)))
	}

	var result *cqrs.LoanResult
	err := s.mutate(ctx, op, cmd.UserID, func(tx repository.LedgerTx) (*effect, error) {
		u := tx.User()
		if !s.policy.LoanEligible(u.Balance) {
			return nil, apperr.Validation("balance", fmt.Sprintf("at least one account must hold %s or more", money(s.policy.LoanMinBalance)))
		}
		if u.LoanOffer != nil {
			result = &cqrs.LoanResult{Offer: *u.LoanOffer, Created: false}
			return nil, nil
		}
		offer := cmd.Amount
		u.LoanOffer = &offer
		u.LoanSubmitted = true
		u.UpdatedAt = s.now()
		if err := tx.SaveUser(ctx); err != nil {
			return nil, err
		}
		result = &cqrs.LoanResult{Offer: offer, Created: true}
		return &effect{
			notification: fmt.Sprintf("Your loan application for %s was received.", money(offer)),
			eventType:    events.LoanOffered,
			event:        events.LedgerEvent{UserID: u.ID, Amount: offer.StringFixed(2)},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateLoanOfferWithKYC stores the identity documents and replaces any offer
// with a fresh one drawn from the KYC offer range.
func (s *LedgerCommandService) UpdateLoanOfferWithKYC(ctx context.Context, cmd cqrs.SubmitKYCCommand) (*cqrs.KYCResult, error) {
	const op = "command.UpdateLoanOfferWithKYC"
	ssn := strings.TrimSpace(cmd.SSN)
	docRef := strings.TrimSpace(cmd.IDDocumentRef)
	if ssn == "" {
		return nil, apperr.Validation("ssn", "is required")
	}
	if docRef == "" {
		return nil, apperr.Validation("idDocument", "is required")
	}

	var result *cqrs.KYCResult
	err := s.mutate(ctx, op, cmd.UserID, func(tx repository.LedgerTx) (*effect, error) {
		u := tx.User()
		r := s.policy.KYCOfferRange
		span := r.Max.Sub(r.Min).IntPart() + 1
		offer := r.Min.Add(decimal.NewFromInt(int64(s.intn(int(span)))))

		u.SSN = ssn
		u.IDDocumentRef = docRef
		u.HasSubmittedIDSSN = true
		u.KYCStatus = models.KYCSubmitted
		u.LoanOffer = &offer
		u.UpdatedAt = s.now()
		if err := tx.SaveUser(ctx); err != nil {
			return nil, err
		}
		result = &cqrs.KYCResult{Offer: offer, KYCStatus: u.KYCStatus, HasSubmittedIDSSN: true}
		return &effect{
			notification: fmt.Sprintf("Identity documents received. Your loan offer is now %s.", money(offer)),
			eventType:    events.KYCSubmitted,
			event:        events.LedgerEvent{UserID: u.ID, Amount: offer.StringFixed(2)},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("kyc submitted", slog.String("user_id", cmd.UserID))
	return result, nil
}

// AdminAdjustBalance overwrites the supplied counters. Each counter that
// actually changes gets an admin-adjustment transaction for the difference.
func (s *LedgerCommandService) AdminAdjustBalance(ctx context.Context, cmd cqrs.AdminAdjustBalanceCommand) (*cqrs.AdjustBalanceResult, error) {
	const op = "command.AdminAdjustBalance"
	if err := s.requireAdmin(ctx, cmd.AdminID); err != nil {
		return nil, err
	}
	targets := map[string]*decimal.Decimal{
		models.AccountChecking: cmd.Checking,
		models.AccountSavings:  cmd.Savings,
		models.AccountUSDT:     cmd.USDT,
	}
	supplied := 0
	for _, key := range models.AccountKeys {
		v := targets[key]
		if v == nil {
			continue
		}
		supplied++
		if v.IsNegative() {
			return nil, apperr.Validation(key, "must not be negative")
		}
		if !v.Equal(v.Round(2)) {
			return nil, apperr.Validation(key, "must have at most two decimal places")
		}
	}
	if supplied == 0 {
		return nil, apperr.Validation("balance", "at least one of checking, savings, usdt is required")
	}

	var result *cqrs.AdjustBalanceResult
	err := s.mutate(ctx, op, cmd.UserID, func(tx repository.LedgerTx) (*effect, error) {
		u := tx.User()
		now := s.now()
		result = &cqrs.AdjustBalanceResult{Transactions: []models.Transaction{}}
		var changed []string
		for _, key := range models.AccountKeys {
			target := targets[key]
			if target == nil {
				continue
			}
			old, _ := u.Balance.Get(key)
			if old.Equal(*target) {
				continue
			}
			delta := target.Sub(old)
			method := "admin-credit"
			if delta.IsNegative() {
				method = "admin-debit"
			}
			u.Balance.Set(key, *target)
			txn := s.newTransaction(u.ID, models.TxTypeAdminAdjustment, delta.Abs(), method, models.TxStatusPosted, key, now)
			if err := tx.CreateTransaction(ctx, txn); err != nil {
				return nil, err
			}
			u.TransactionIDs = append(u.TransactionIDs, txn.ID)
			result.Transactions = append(result.Transactions, *txn)
			changed = append(changed, key)
		}
		result.Balance = u.Balance
		if len(changed) == 0 {
			return nil, nil
		}
		u.UpdatedAt = now
		if err := tx.SaveUser(ctx); err != nil {
			return nil, err
		}
		return &effect{
			balance:      models.ToBalanceView(u),
			notification: "An administrator adjusted your balances: " + describeCounters(u.Balance, changed) + ".",
			eventType:    events.BalanceAdjusted,
			event:        events.LedgerEvent{UserID: u.ID},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("balance adjusted",
		slog.String("admin_id", cmd.AdminID), slog.String("user_id", cmd.UserID), slog.Int("changes", len(result.Transactions)))
	return result, nil
}

// AdminSetKYCStatus records the outcome of an identity review.
func (s *LedgerCommandService) AdminSetKYCStatus(ctx context.Context, cmd cqrs.AdminSetKYCStatusCommand) (*models.User, error) {
	const op = "command.AdminSetKYCStatus"
	if err := s.requireAdmin(ctx, cmd.AdminID); err != nil {
		return nil, err
	}
	if cmd.Status != models.KYCVerified && cmd.Status != models.KYCRejected {
		return nil, apperr.Validation("status", "must be verified or rejected")
	}

	var updated *models.User
	err := s.mutate(ctx, op, cmd.UserID, func(tx repository.LedgerTx) (*effect, error) {
		u := tx.User()
		if !u.HasSubmittedIDSSN {
			return nil, apperr.Validation("status", "user has not submitted identity documents")
		}
		u.KYCStatus = cmd.Status
		u.UpdatedAt = s.now()
		if err := tx.SaveUser(ctx); err != nil {
			return nil, err
		}
		updated = u.Clone()
		return &effect{
			notification: fmt.Sprintf("Your identity verification was %s.", cmd.Status),
			eventType:    events.KYCReviewed,
			event:        events.LedgerEvent{UserID: u.ID},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AdminCreateTransaction records an arbitrary ledger entry. It does not move
// balances; use AdminAdjustBalance for that.
func (s *LedgerCommandService) AdminCreateTransaction(ctx context.Context, cmd cqrs.AdminCreateTransactionCommand) (*models.Transaction, error) {
	const op = "command.AdminCreateTransaction"
	if err := s.requireAdmin(ctx, cmd.AdminID); err != nil {
		return nil, err
	}
	if !transactionTypes[cmd.Type] {
		return nil, apperr.Validation("type", "unknown transaction type")
	}
	if err := validateAmount("amount", cmd.Amount); err != nil {
		return nil, err
	}
	status := cmd.Status
	if status == "" {
		status = models.TxStatusPosted
	}
	if !transactionStatuses[status] {
		return nil, apperr.Validation("status", "unknown transaction status")
	}
	account := cmd.Account
	if account == "" {
		account = models.AccountChecking
	}
	if err := validateAccount(account); err != nil {
		return nil, err
	}

	var created *models.Transaction
	err := s.mutate(ctx, op, cmd.UserID, func(tx repository.LedgerTx) (*effect, error) {
		u := tx.User()
		date := s.now()
		if cmd.Date != nil {
			date = cmd.Date.UTC()
		}
		txn := s.newTransaction(u.ID, cmd.Type, cmd.Amount, strings.TrimSpace(cmd.Method), status, account, date)
		txn.ReceiptRef = cmd.ReceiptRef
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return nil, err
		}
		u.TransactionIDs = append(u.TransactionIDs, txn.ID)
		u.UpdatedAt = s.now()
		if err := tx.SaveUser(ctx); err != nil {
			return nil, err
		}
		created = txn
		return &effect{
			notification: fmt.Sprintf("A %s of %s was recorded on your %s account.", cmd.Type, money(cmd.Amount), account),
			eventType:    events.TransactionCreated,
			event:        ledgerEvent(u.ID, txn),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AdminUpdateTransaction patches the supplied fields of a transaction.
func (s *LedgerCommandService) AdminUpdateTransaction(ctx context.Context, cmd cqrs.AdminUpdateTransactionCommand) (*models.Transaction, error) {
	const op = "command.AdminUpdateTransaction"
	if err := s.requireAdmin(ctx, cmd.AdminID); err != nil {
		return nil, err
	}
	if cmd.Type != nil && !transactionTypes[*cmd.Type] {
		return nil, apperr.Validation("type", "unknown transaction type")
	}
	if cmd.Amount != nil {
		if err := validateAmount("amount", *cmd.Amount); err != nil {
			return nil, err
		}
	}
	if cmd.Status != nil && !transactionStatuses[*cmd.Status] {
		return nil, apperr.Validation("status", "unknown transaction status")
	}
	if cmd.Account != nil {
		if err := validateAccount(*cmd.Account); err != nil {
			return nil, err
		}
	}

	existing, err := s.store.GetTransaction(ctx, cmd.TransactionID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	var updated *models.Transaction
	err = s.mutate(ctx, op, existing.UserID, func(tx repository.LedgerTx) (*effect, error) {
		txn, err := tx.GetTransaction(ctx, cmd.TransactionID)
		if err != nil {
			return nil, err
		}
		if cmd.Type != nil {
			txn.Type = *cmd.Type
		}
		if cmd.Amount != nil {
			txn.Amount = *cmd.Amount
		}
		if cmd.Method != nil {
			txn.Method = strings.TrimSpace(*cmd.Method)
		}
		if cmd.Status != nil {
			txn.Status = *cmd.Status
		}
		if cmd.Account != nil {
			txn.Account = *cmd.Account
		}
		if cmd.Date != nil {
			txn.Date = cmd.Date.UTC()
		}
		if cmd.ReceiptRef != nil {
			txn.ReceiptRef = *cmd.ReceiptRef
		}
		txn.UpdatedAt = s.now()
		if err := tx.UpdateTransaction(ctx, txn); err != nil {
			return nil, err
		}
		updated = txn
		return &effect{
			eventType: events.TransactionUpdated,
			event:     ledgerEvent(txn.UserID, txn),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AdminDeleteTransaction removes a transaction and detaches it from its owner.
func (s *LedgerCommandService) AdminDeleteTransaction(ctx context.Context, cmd cqrs.AdminDeleteTransactionCommand) error {
	const op = "command.AdminDeleteTransaction"
	if err := s.requireAdmin(ctx, cmd.AdminID); err != nil {
		return err
	}
	existing, err := s.store.GetTransaction(ctx, cmd.TransactionID)
	if err != nil {
		return apperr.Internal(op, err)
	}
	return s.mutate(ctx, op, existing.UserID, func(tx repository.LedgerTx) (*effect, error) {
		txn, err := tx.GetTransaction(ctx, cmd.TransactionID)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteTransaction(ctx, txn.ID); err != nil {
			return nil, err
		}
		u := tx.User()
		u.TransactionIDs, _ = removeID(u.TransactionIDs, txn.ID)
		u.UpdatedAt = s.now()
		if err := tx.SaveUser(ctx); err != nil {
			return nil, err
		}
		return &effect{
			eventType: events.TransactionDeleted,
			event:     ledgerEvent(u.ID, txn),
		}, nil
	})
}
