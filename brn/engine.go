// Package brn implements the time-accruing BRN balance that backs TRST
// minting, endorsements, proposal costs and challenge stakes: a linear
// accrual rate that saturates at a per-wallet cap, with burns deducting
// from the accrued balance.
package brn

import (
	"github.com/pkg/errors"

	"github.com/burstubi/node/walletaddr"
)

var (
	ErrWalletNotRegistered = errors.New("brn: wallet is not registered")
	ErrInsufficientBalance = errors.New("brn: amount exceeds accrued balance")
)

// WalletState is one verified wallet's BRN accrual parameters and
// cumulative burns.
type WalletState struct {
	VerifiedAt       walletaddr.Timestamp
	RatePerSec       uint64
	Cap              uint64
	CumulativeBurned uint64
}

// Engine tracks every verified wallet's accruing BRN balance.
type Engine struct {
	wallets map[walletaddr.WalletAddress]*WalletState
}

// NewEngine constructs an empty Engine.
func NewEngine() *Engine {
	return &Engine{wallets: make(map[walletaddr.WalletAddress]*WalletState)}
}

// Register starts wallet's accrual as of verifiedAt, at ratePerSec,
// saturating at cap.
func (e *Engine) Register(wallet walletaddr.WalletAddress, verifiedAt walletaddr.Timestamp, ratePerSec, cap uint64) {
	e.wallets[wallet] = &WalletState{VerifiedAt: verifiedAt, RatePerSec: ratePerSec, Cap: cap}
}

func (e *Engine) accrued(w *WalletState, now walletaddr.Timestamp) uint64 {
	elapsed := int64(now) - int64(w.VerifiedAt)
	if elapsed <= 0 {
		return 0
	}
	accrued := w.RatePerSec * uint64(elapsed)
	if accrued > w.Cap {
		accrued = w.Cap
	}
	return accrued
}

// Balance returns wallet's current BRN balance: accrued minus
// cumulative burns.
func (e *Engine) Balance(wallet walletaddr.WalletAddress, now walletaddr.Timestamp) (uint64, error) {
	w, ok := e.wallets[wallet]
	if !ok {
		return 0, ErrWalletNotRegistered
	}
	accrued := e.accrued(w, now)
	if accrued < w.CumulativeBurned {
		return 0, nil
	}
	return accrued - w.CumulativeBurned, nil
}

// Burn deducts amount from wallet's current balance, returning the
// resulting balance.
func (e *Engine) Burn(wallet walletaddr.WalletAddress, amount uint64, now walletaddr.Timestamp) (uint64, error) {
	balance, err := e.Balance(wallet, now)
	if err != nil {
		return 0, err
	}
	if amount > balance {
		return 0, ErrInsufficientBalance
	}
	e.wallets[wallet].CumulativeBurned += amount
	return balance - amount, nil
}
