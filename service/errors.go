package service

import "github.com/cockroachdb/errors"

var (
	ErrAccountNotFound = errors.New("service: account not found")
	ErrAccountExists   = errors.New("service: account already exists")
	ErrUnauthorized    = errors.New("service: signer is not owner or delegate")
	ErrMarketExpired   = errors.New("service: market has expired")
	ErrInvalidOrder    = errors.New("service: invalid order")
	ErrOracleRequired  = errors.New("service: oracle price required")
	ErrOrderNotFound   = errors.New("service: order not found")
	ErrWouldSelfTrade  = errors.New("service: order would self trade")
	ErrBookFull        = errors.New("service: book side full and order not better than worst")
	ErrAccountNotEmpty = errors.New("service: account still holds orders or funds")
	ErrStoreNotFresh   = errors.New("service: store already holds state")

	// ErrInvalidLotsSize rejects order sizes whose native amounts overflow.
	ErrInvalidLotsSize   = errors.New("service: order size out of range")
	ErrInvalidPostAmount = errors.New("service: posted amount out of range")
)
