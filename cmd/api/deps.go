package main

import (
	"context"
	"fmt"
	"log"

	"pocketmoney/internal/domain/banking"
	"pocketmoney/internal/domain/notification"
	"pocketmoney/internal/infrastructure/crypto"
	"pocketmoney/internal/infrastructure/firebase"
	"pocketmoney/internal/infrastructure/postgres"
	"pocketmoney/internal/infrastructure/postgres/migrations"
	"pocketmoney/internal/infrastructure/redis"
	"pocketmoney/internal/infrastructure/truelayer"
	httphandlers "pocketmoney/internal/interfaces/http"
	"pocketmoney/internal/shared/auth"
	"pocketmoney/internal/shared/config"
	"pocketmoney/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB    *postgres.DB
	Redis *redis.Client

	// Handlers
	BankAuthHandler    *httphandlers.BankAuthHandler
	BankSyncHandler    *httphandlers.BankSyncHandler
	ConnectionsHandler *httphandlers.ConnectionsHandler
	TransactionHandler *httphandlers.TransactionsHandler

	// Auth
	JWT *auth.JWT

	// Services (for scheduler and listener)
	AuthService *banking.AuthService
	SyncService *banking.SyncService
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolForWorkers(cfg.Sync.Concurrency+cfg.Scheduler.WorkerCount))
	if err != nil {
		return nil, err
	}
	deps.DB = db
	log.Println("Connected to database")

	if err := migrations.Up(db.DB); err != nil {
		deps.Close()
		return nil, err
	}

	// Initialize encryptor
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	// Initialize repositories
	connectionRepo := postgres.NewConnectionRepository(db, encryptor)
	transactionRepo := postgres.NewTransactionRepository(db)
	kidRepo := postgres.NewKidRepository(db)

	// Connection locks are shared through Redis when configured
	var locker banking.Locker = banking.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Redis = rdb
		locker = redis.NewLocker(rdb, cfg.Redis.LockTTL)
		log.Printf("Using Redis connection locks at %s", cfg.Redis.Addr)
	} else {
		log.Println("REDIS_ADDR not set, using in-process connection locks")
	}

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}

	tlClient := truelayer.NewClient(truelayer.Config{
		ClientID:     cfg.TrueLayer.ClientID,
		ClientSecret: cfg.TrueLayer.ClientSecret,
		AuthBaseURL:  cfg.TrueLayer.AuthBaseURL,
		APIBaseURL:   cfg.TrueLayer.APIBaseURL,
		Timeout:      cfg.TrueLayer.HTTPTimeout,
	})

	// Initialize domain services
	guard := banking.NewTokenGuard(tlClient, connectionRepo,
		banking.WithLeadTime(cfg.Sync.RefreshLeadTime),
		banking.WithNotifier(notifier),
	)
	deps.AuthService = banking.NewAuthService(tlClient, connectionRepo, kidRepo, guard, locker)
	deps.SyncService = banking.NewSyncService(tlClient, connectionRepo, transactionRepo, guard, locker, notifier, banking.SyncConfig{
		Concurrency: cfg.Sync.Concurrency,
		WindowDays:  cfg.Sync.WindowDays,
	})

	// Initialize auth components
	deps.JWT = auth.NewJWT(cfg.JWT.Secret)

	// Initialize handlers
	deps.BankAuthHandler = httphandlers.NewBankAuthHandler(deps.AuthService)
	deps.BankSyncHandler = httphandlers.NewBankSyncHandler(deps.SyncService, cfg.Sync.RequestTimeout)
	deps.ConnectionsHandler = httphandlers.NewConnectionsHandler(deps.AuthService)
	deps.TransactionHandler = httphandlers.NewTransactionsHandler(transactionRepo)

	return deps, nil
}

// newNotifier returns a push notifier when Firebase is configured, nil otherwise.
func newNotifier(ctx context.Context, cfg *config.Config) (banking.Notifier, error) {
	if cfg.Firebase.CredentialsFile == "" {
		log.Println("FIREBASE_CREDENTIALS_FILE not set, push notifications disabled")
		return nil, nil
	}

	texts, err := messages.Load(cfg.Messages.File)
	if err != nil {
		return nil, err
	}

	fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile)
	if err != nil {
		return nil, err
	}
	log.Println("Firebase messaging initialized")

	return notification.NewService(fcm, texts), nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
