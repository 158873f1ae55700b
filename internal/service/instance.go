package service

import (
	"context"
	"strings"

	"github.com/flexprice/pullpay/internal/api/dto"
	"github.com/flexprice/pullpay/internal/domain/instance"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/samber/lo"
)

// InstanceService provisions billing instances and runs their owner-gated administration
type InstanceService interface {
	// Produce creates, registers and initializes an instance owned by the caller
	Produce(ctx context.Context, req *dto.ProduceInstanceRequest) (*dto.InstanceResponse, error)
	// Initialize may succeed only once per instance
	Initialize(ctx context.Context, ref string) (*dto.InstanceResponse, error)
	GetInstance(ctx context.Context, ref string) (*dto.InstanceResponse, error)
	ListInstances(ctx context.Context, filter types.QueryFilter) (*dto.ListInstancesResponse, error)

	AddCaller(ctx context.Context, ref string, caller types.Address) error
	RemoveCaller(ctx context.Context, ref string, caller types.Address) error
	SetHook(ctx context.Context, ref string, req *dto.SetHookRequest) (*dto.InstanceResponse, error)
	SetCommunity(ctx context.Context, ref string, req *dto.SetCommunityRequest) (*dto.InstanceResponse, error)
}

type instanceService struct {
	ServiceParams
}

func NewInstanceService(params ServiceParams) InstanceService {
	return &instanceService{
		ServiceParams: params,
	}
}

func (s *instanceService) Produce(ctx context.Context, req *dto.ProduceInstanceRequest) (*dto.InstanceResponse, error) {
	owner := types.GetCaller(ctx)
	if owner.IsZero() {
		return nil, ierr.NewError("an authenticated caller is required").
			WithHint("Instances are owned by the caller that produces them").
			Mark(ierr.ErrPermissionDenied)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	inst := req.ToInstance(ctx, owner)
	if err := inst.Validate(); err != nil {
		return nil, err
	}

	if inst.HasController() {
		ok, err := s.Registry.IsRecognized(ctx, inst.Controller)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ierr.NewError("controller is not recognized").
				WithHint("The controller must be a registered ecosystem participant").
				WithReportableDetails(map[string]any{"controller": inst.Controller}).
				Mark(ierr.ErrInvalidConfig)
		}
	}

	if inst.HasCommunity() {
		if err := s.checkCommunity(ctx, inst.Community); err != nil {
			return nil, err
		}
	}

	if inst.HasHook() {
		if _, err := s.HookResolver.Resolve(ctx, inst.Hook); err != nil {
			return nil, err
		}
	}

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.InstanceRepo.Create(ctx, inst); err != nil {
			return err
		}
		if err := s.Registry.Register(ctx, inst.Address, types.ParticipantKindInstance); err != nil {
			return err
		}
		return s.initialize(ctx, inst)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("produced billing instance",
		"instance_id", inst.ID,
		"address", inst.Address,
		"owner", inst.Owner,
		"interval", inst.Interval.String(),
		"price", inst.Price.String(),
		"controller", inst.Controller,
	)
	return dto.NewInstanceResponse(inst), nil
}

func (s *instanceService) Initialize(ctx context.Context, ref string) (*dto.InstanceResponse, error) {
	inst, err := getInstance(ctx, s.InstanceRepo, ref)
	if err != nil {
		return nil, err
	}

	unlock := instanceLocks.Lock(inst.ID)
	defer unlock()

	if inst, err = s.InstanceRepo.Get(ctx, inst.ID); err != nil {
		return nil, err
	}
	if !inst.IsOwner(types.GetCaller(ctx)) {
		return nil, ierr.NewError("only the owner may initialize the instance").
			WithHint("This operation is reserved for the instance owner").
			Mark(ierr.ErrPermissionDenied)
	}
	if err := s.initialize(ctx, inst); err != nil {
		return nil, err
	}
	return dto.NewInstanceResponse(inst), nil
}

func (s *instanceService) initialize(ctx context.Context, inst *instance.Instance) error {
	if inst.IsInitialized() {
		return ierr.NewError("instance already initialized").
			WithHint("An instance can only be initialized once").
			WithReportableDetails(map[string]any{"instance_id": inst.ID}).
			Mark(ierr.ErrAlreadyInitialized)
	}
	now := s.Clock.Now().UTC()
	inst.InitializedAt = &now
	return s.InstanceRepo.Update(ctx, inst)
}

func (s *instanceService) GetInstance(ctx context.Context, ref string) (*dto.InstanceResponse, error) {
	inst, err := getInstance(ctx, s.InstanceRepo, ref)
	if err != nil {
		return nil, err
	}
	return dto.NewInstanceResponse(inst), nil
}

func (s *instanceService) ListInstances(ctx context.Context, filter types.QueryFilter) (*dto.ListInstancesResponse, error) {
	items, err := s.InstanceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.InstanceRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	resp := types.NewListResponse(lo.Map(items, func(i *instance.Instance, _ int) *dto.InstanceResponse {
		return dto.NewInstanceResponse(i)
	}), total, filter)
	return &resp, nil
}

func (s *instanceService) AddCaller(ctx context.Context, ref string, caller types.Address) error {
	return s.updateAsOwner(ctx, ref, func(inst *instance.Instance) error {
		if caller.IsZero() {
			return ierr.NewError("caller address is required").
				WithHint("A non-zero caller address is required").
				Mark(ierr.ErrValidation)
		}
		inst.AddCaller(caller)
		return nil
	})
}

func (s *instanceService) RemoveCaller(ctx context.Context, ref string, caller types.Address) error {
	return s.updateAsOwner(ctx, ref, func(inst *instance.Instance) error {
		inst.RemoveCaller(caller)
		return nil
	})
}

func (s *instanceService) SetHook(ctx context.Context, ref string, req *dto.SetHookRequest) (*dto.InstanceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *instance.Instance
	err := s.updateAsOwner(ctx, ref, func(inst *instance.Instance) error {
		if req.Hook != "" {
			if _, err := s.HookResolver.Resolve(ctx, req.Hook); err != nil {
				return err
			}
		}
		inst.Hook = req.Hook
		updated = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto.NewInstanceResponse(updated), nil
}

// SetCommunity replaces the role registry. Roles granted under the previous
// community stay where they are.
func (s *instanceService) SetCommunity(ctx context.Context, ref string, req *dto.SetCommunityRequest) (*dto.InstanceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	community := &instance.Community{
		Address: types.Address(strings.ToLower(req.Address)),
		RoleID:  req.RoleID,
	}

	var updated *instance.Instance
	err := s.updateAsOwner(ctx, ref, func(inst *instance.Instance) error {
		if err := s.checkCommunity(ctx, community); err != nil {
			return err
		}
		inst.Community = community
		updated = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto.NewInstanceResponse(updated), nil
}

// checkCommunity enforces a non-zero role and a registry recognized address
func (s *instanceService) checkCommunity(ctx context.Context, c *instance.Community) error {
	if err := c.Validate(); err != nil {
		return err
	}
	ok, err := s.Registry.IsRecognized(ctx, c.Address)
	if err != nil {
		return err
	}
	if !ok {
		return ierr.NewError("community is not recognized").
			WithHint("The community must be a registered ecosystem participant").
			WithReportableDetails(map[string]any{"community": c.Address}).
			Mark(ierr.ErrInvalidCommunitySettings)
	}
	return nil
}

func (s *instanceService) updateAsOwner(ctx context.Context, ref string, mutate func(*instance.Instance) error) error {
	inst, err := getInstance(ctx, s.InstanceRepo, ref)
	if err != nil {
		return err
	}

	unlock := instanceLocks.Lock(inst.ID)
	defer unlock()

	// reload under the lock
	inst, err = s.InstanceRepo.Get(ctx, inst.ID)
	if err != nil {
		return err
	}

	caller := types.GetCaller(ctx)
	if !inst.IsOwner(caller) {
		return ierr.NewError("only the owner may administer the instance").
			WithHint("This operation is reserved for the instance owner").
			WithReportableDetails(map[string]any{
				"instance_id": inst.ID,
				"caller":      caller,
			}).
			Mark(ierr.ErrPermissionDenied)
	}

	if err := mutate(inst); err != nil {
		return err
	}

	inst.UpdatedAt = s.Clock.Now().UTC()
	inst.UpdatedBy = caller.String()
	if err := s.InstanceRepo.Update(ctx, inst); err != nil {
		return err
	}

	s.Logger.Infow("updated billing instance",
		"instance_id", inst.ID,
		"hook", inst.Hook,
		"callers", len(inst.Callers),
		"has_community", inst.HasCommunity(),
	)
	return nil
}

// getInstance accepts either an instance id or its address
func getInstance(ctx context.Context, repo instance.Repository, ref string) (*instance.Instance, error) {
	if types.IsHexAddress(ref) {
		return repo.GetByAddress(ctx, types.Address(strings.ToLower(ref)))
	}
	return repo.Get(ctx, ref)
}
