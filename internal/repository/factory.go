package repository

import (
	"github.com/flexprice/pullpay/internal/asset"
	"github.com/flexprice/pullpay/internal/domain/charge"
	"github.com/flexprice/pullpay/internal/domain/instance"
	"github.com/flexprice/pullpay/internal/domain/participant"
	"github.com/flexprice/pullpay/internal/domain/subscription"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/postgres"
	postgresRepo "github.com/flexprice/pullpay/internal/repository/postgres"
)

func NewInstanceRepository(db postgres.IClient, logger *logger.Logger) instance.Repository {
	return postgresRepo.NewInstanceRepository(db, logger)
}

func NewSubscriberRepository(db postgres.IClient, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriberRepository(db, logger)
}

func NewChargeRepository(db postgres.IClient, logger *logger.Logger) charge.Repository {
	return postgresRepo.NewChargeRepository(db, logger)
}

func NewParticipantRepository(db postgres.IClient, logger *logger.Logger) participant.Repository {
	return postgresRepo.NewParticipantRepository(db, logger)
}

func NewAssetGateway(db postgres.IClient, logger *logger.Logger) asset.Book {
	return postgresRepo.NewAssetGateway(db, logger)
}
