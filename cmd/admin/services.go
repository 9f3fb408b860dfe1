package main

import (
	"fmt"
	"log"

	"pocketmoney/internal/domain/banking"
	"pocketmoney/internal/infrastructure/crypto"
	"pocketmoney/internal/infrastructure/postgres"
	"pocketmoney/internal/infrastructure/redis"
	"pocketmoney/internal/infrastructure/truelayer"
	"pocketmoney/internal/shared/config"
)

// services is the slice of the API's dependency graph the CLI needs.
// Notifications are left out; operator runs stay silent.
type services struct {
	db    *postgres.DB
	redis *redis.Client
	auth  *banking.AuthService
	sync  *banking.SyncService
}

func openServices(cfg *config.Config) (*services, error) {
	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolForWorkers(cfg.Sync.Concurrency))
	if err != nil {
		return nil, err
	}
	svc := &services{db: db}
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	connectionRepo := postgres.NewConnectionRepository(db, encryptor)
	transactionRepo := postgres.NewTransactionRepository(db)
	kidRepo := postgres.NewKidRepository(db)

	// The API may be syncing the same connections, so share its locks when possible.
	var locker banking.Locker = banking.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.redis = rdb
		locker = redis.NewLocker(rdb, cfg.Redis.LockTTL)
	}

	tlClient := truelayer.NewClient(truelayer.Config{
		ClientID:     cfg.TrueLayer.ClientID,
		ClientSecret: cfg.TrueLayer.ClientSecret,
		AuthBaseURL:  cfg.TrueLayer.AuthBaseURL,
		APIBaseURL:   cfg.TrueLayer.APIBaseURL,
		Timeout:      cfg.TrueLayer.HTTPTimeout,
	})

	guard := banking.NewTokenGuard(tlClient, connectionRepo, banking.WithLeadTime(cfg.Sync.RefreshLeadTime))
	svc.auth = banking.NewAuthService(tlClient, connectionRepo, kidRepo, guard, locker)
	svc.sync = banking.NewSyncService(tlClient, connectionRepo, transactionRepo, guard, locker, nil, banking.SyncConfig{
		Concurrency: cfg.Sync.Concurrency,
		WindowDays:  cfg.Sync.WindowDays,
	})

	return svc, nil
}

func (s *services) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}
