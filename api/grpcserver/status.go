package grpcserver

import (
	"context"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"clob/domain/account"
	"clob/domain/ordertree"
	"clob/service"
)

var codeOf = []struct {
	err  error
	code codes.Code
}{
	{errField, codes.InvalidArgument},
	{service.ErrInvalidOrder, codes.InvalidArgument},
	{service.ErrInvalidLotsSize, codes.InvalidArgument},
	{service.ErrInvalidPostAmount, codes.InvalidArgument},
	{service.ErrOracleRequired, codes.InvalidArgument},
	{ordertree.ErrInvalidPrice, codes.InvalidArgument},
	{account.ErrTooManyOrders, codes.InvalidArgument},
	{account.ErrShrink, codes.InvalidArgument},
	{service.ErrAccountNotFound, codes.NotFound},
	{service.ErrOrderNotFound, codes.NotFound},
	{service.ErrAccountExists, codes.AlreadyExists},
	{service.ErrUnauthorized, codes.PermissionDenied},
	{service.ErrMarketExpired, codes.FailedPrecondition},
	{service.ErrWouldSelfTrade, codes.FailedPrecondition},
	{service.ErrAccountNotEmpty, codes.FailedPrecondition},
	{account.ErrInsufficientFunds, codes.FailedPrecondition},
	{service.ErrBookFull, codes.ResourceExhausted},
	{ordertree.ErrOutOfSpace, codes.ResourceExhausted},
	{account.ErrNoFreeOrderIndex, codes.ResourceExhausted},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range codeOf {
		if errors.Is(err, c.err) {
			return status.Error(c.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
