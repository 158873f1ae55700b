package service

import (
	"context"

	"github.com/flexprice/pullpay/internal/api/dto"
	"github.com/flexprice/pullpay/internal/asset"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
)

// AssetService exposes the asset book so payers can be funded and approve
// the relay. Minting outside local mode needs an operator key.
type AssetService interface {
	Mint(ctx context.Context, assetAddr types.Address, req *dto.MintRequest) (*dto.BalanceResponse, error)
	// Approve sets the caller's allowance
	Approve(ctx context.Context, assetAddr types.Address, req *dto.ApproveRequest) (*dto.BalanceResponse, error)
	Balance(ctx context.Context, assetAddr, holder types.Address) (*dto.BalanceResponse, error)
}

type assetService struct {
	ServiceParams
	book asset.Book
}

func NewAssetService(params ServiceParams, book asset.Book) AssetService {
	return &assetService{
		ServiceParams: params,
		book:          book,
	}
}

func (s *assetService) Mint(ctx context.Context, assetAddr types.Address, req *dto.MintRequest) (*dto.BalanceResponse, error) {
	if err := s.requireMinter(ctx); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	holder, err := types.ParseAddress(req.Holder)
	if err != nil {
		return nil, err
	}
	if err := s.book.Mint(ctx, assetAddr, holder, req.Amount); err != nil {
		return nil, err
	}

	s.Logger.Infow("minted funds",
		"asset", assetAddr,
		"holder", holder,
		"amount", req.Amount.String(),
	)
	return s.Balance(ctx, assetAddr, holder)
}

func (s *assetService) Approve(ctx context.Context, assetAddr types.Address, req *dto.ApproveRequest) (*dto.BalanceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	holder := types.GetCaller(ctx)
	if holder.IsZero() {
		return nil, ierr.NewError("an authenticated caller is required").
			WithHint("Allowances are granted by the holder").
			Mark(ierr.ErrPermissionDenied)
	}

	spender := s.Relay.Address()
	if req.Spender != "" {
		parsed, err := types.ParseAddress(req.Spender)
		if err != nil {
			return nil, err
		}
		spender = parsed
	}

	if err := s.book.Approve(ctx, assetAddr, holder, spender, req.Amount); err != nil {
		return nil, err
	}
	return s.Balance(ctx, assetAddr, holder)
}

func (s *assetService) Balance(ctx context.Context, assetAddr, holder types.Address) (*dto.BalanceResponse, error) {
	balance, err := s.Gateway.BalanceOf(ctx, assetAddr, holder)
	if err != nil {
		return nil, err
	}
	allowance, err := s.Gateway.Allowance(ctx, assetAddr, holder, s.Relay.Address())
	if err != nil {
		return nil, err
	}
	return &dto.BalanceResponse{
		Asset:     assetAddr,
		Holder:    holder,
		Balance:   balance,
		Allowance: allowance,
	}, nil
}

func (s *assetService) requireMinter(ctx context.Context) error {
	if s.Config.Deployment.Mode == types.ModeLocal || types.IsOperator(ctx) {
		return nil
	}
	return ierr.NewError("minting requires an operator key").
		WithHint("Only operators can mint outside local mode").
		Mark(ierr.ErrPermissionDenied)
}
