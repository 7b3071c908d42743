package service

import (
	"context"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
	"github.com/mmeshcher/isp-mcp-gateway/internal/model"
	"github.com/mmeshcher/isp-mcp-gateway/internal/normalize"
	"github.com/mmeshcher/isp-mcp-gateway/internal/validation"
)

// GetBalance возвращает баланс услуги, неоплаченные счета и степень просрочки.
func (s *Service) GetBalance(ctx context.Context, serviceID int64) model.Result {
	const op = "get_client_balance"

	if !validation.IsValidServiceID(serviceID) {
		return s.fail(ctx, op, apperr.Validation("invalid service id %d", serviceID), nil)
	}

	body, err := s.api.Get(ctx, balancePath(serviceID), nil, s.opts.BalancesTTL)
	if err != nil {
		if isNotFound(err) {
			return s.fail(ctx, op, apperr.NotFound("service %d not found", serviceID), nil)
		}
		return s.fail(ctx, op, err, nil)
	}

	rec, ok, err := normalize.UnwrapOne(body)
	if err != nil {
		return s.fail(ctx, op, err, nil)
	}
	if !ok {
		return s.empty("no balance data for service", nil)
	}
	return s.ok(s.norm.Balance(rec, serviceID), nil)
}
