// Package payout releases matured escrow holds to sellers via PIX.
//
// The sweeper walks wallets holding SALE_HOLD entries past their maturity,
// pushes a gateway transfer per entry, and settles the entry only after the
// gateway accepts. The ledger entry id doubles as the gateway idempotency
// key, so a crash between transfer and settlement can never pay a seller
// twice: the redelivered transfer is deduplicated gateway-side.
package payout

import (
	"context"
	"errors"
	"time"

	"github.com/facilmilha/facilmilha/internal/account"
	"github.com/facilmilha/facilmilha/internal/logging"
	"github.com/facilmilha/facilmilha/internal/metrics"
	"github.com/facilmilha/facilmilha/internal/traces"
	"github.com/facilmilha/facilmilha/internal/wallet"
)

// Gateway sends PIX transfers. Implemented by the suitpay client.
type Gateway interface {
	CashOut(ctx context.Context, pixKey, keyType string, amountCentavos int64, externalID string) error
}

// KeyDirectory resolves an account's payout key. Implemented by the account
// service.
type KeyDirectory interface {
	PayoutKey(ctx context.Context, accountID string) (string, account.PixKeyType, error)
}

// Service releases matured funds.
type Service struct {
	wallets wallet.Store
	keys    KeyDirectory
	gateway Gateway
	batch   int
}

// NewService creates a new payout service.
func NewService(wallets wallet.Store, keys KeyDirectory, gateway Gateway) *Service {
	return &Service{
		wallets: wallets,
		keys:    keys,
		gateway: gateway,
		batch:   100,
	}
}

// ReleaseMaturedFunds pays out a single wallet's matured holds. Returns the
// total centavos released. A wallet without a registered PIX key is skipped
// whole; its holds stay pending until the seller registers one.
func (s *Service) ReleaseMaturedFunds(ctx context.Context, walletID string, now time.Time) (int64, error) {
	ctx, span := traces.StartSpan(ctx, "payout.ReleaseMaturedFunds", traces.WalletID(walletID))
	defer span.End()
	log := logging.L(ctx)

	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return 0, err
	}

	pixKey, keyType, err := s.keys.PayoutKey(ctx, w.AccountID)
	if err != nil {
		return 0, err
	}
	if pixKey == "" {
		metrics.PayoutsReleasedTotal.WithLabelValues("skipped_no_key").Inc()
		log.Info("skipping payout, account has no PIX key", "wallet_id", walletID)
		return 0, nil
	}

	matured, err := s.wallets.ListMatured(ctx, walletID, now, s.batch)
	if err != nil {
		return 0, err
	}

	var released int64
	for _, txn := range matured {
		// The entry id is the gateway's externalId. Re-sending after a crash
		// is safe.
		if err := s.gateway.CashOut(ctx, pixKey, string(keyType), txn.Amount, txn.ID); err != nil {
			metrics.PayoutsReleasedTotal.WithLabelValues("gateway_failed").Inc()
			log.Warn("gateway refused payout, hold stays pending",
				"wallet_id", walletID, "transaction_id", txn.ID, "error", err)
			continue
		}

		if err := s.wallets.Settle(ctx, txn.ID, "Released to PIX key"); err != nil {
			if errors.Is(err, wallet.ErrAlreadySettled) {
				continue
			}
			// Money left the platform but the entry is still pending. The
			// idempotency key makes the eventual re-send a gateway no-op,
			// but the ledger needs eyes on it now.
			log.Error("CRITICAL: payout sent but settlement failed",
				"wallet_id", walletID, "transaction_id", txn.ID, "amount", txn.Amount, "error", err)
			metrics.PayoutsReleasedTotal.WithLabelValues("settle_failed").Inc()
			continue
		}

		metrics.PayoutsReleasedTotal.WithLabelValues("ok").Inc()
		metrics.PayoutsReleasedCentavos.Add(float64(txn.Amount))
		released += txn.Amount
		log.Info("released matured hold",
			"wallet_id", walletID, "transaction_id", txn.ID, "amount", txn.Amount)
	}
	span.SetAttributes(traces.AmountCentavos(released))
	return released, nil
}

// SweepAll pays out every wallet holding matured funds. One wallet's failure
// never blocks the rest. Returns the total centavos released.
func (s *Service) SweepAll(ctx context.Context) int64 {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()
	log := logging.L(ctx)

	now := time.Now()
	walletIDs, err := s.wallets.ListWalletsWithMatured(ctx, now, s.batch)
	if err != nil {
		log.Warn("failed to list wallets with matured funds", "error", err)
		return 0
	}

	var total int64
	for _, id := range walletIDs {
		released, err := s.ReleaseMaturedFunds(ctx, id, now)
		if err != nil {
			log.Warn("payout failed for wallet", "wallet_id", id, "error", err)
			continue
		}
		total += released
	}

	if total > 0 {
		log.Info("payout sweep finished", "wallets", len(walletIDs), "released", total)
	}
	return total
}
