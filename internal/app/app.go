// Package app is the application layer between the CLI and the persistence
// facade. It constructs all dependencies from config and manages their
// lifecycle on Close.
package app

import (
	"fmt"
	"os"

	"github.com/andrewblevins/space-sub000/internal/config"
	"github.com/andrewblevins/space-sub000/internal/kv"
	"github.com/andrewblevins/space-sub000/internal/local"
	"github.com/andrewblevins/space-sub000/internal/remote"
	"github.com/andrewblevins/space-sub000/internal/secrets"
	"github.com/andrewblevins/space-sub000/internal/space"
)

// SpaceApp wires the key-value store, both session repositories, the
// migrator, the workspace and the secrets vault together for one client
// context. The caller must call Close when done.
type SpaceApp struct {
	cfg       *config.Config
	store     kv.Store
	watcher   *kv.Watcher
	scheduler *space.Scheduler
	logFile   *os.File

	Store     *space.Store
	Local     *local.Repository
	Remote    space.RemoteRepository
	Migrator  *space.Migrator
	Workspace *space.Workspace
	Vault     *secrets.Vault
	Encryptor secrets.Encryptor
	Logger    space.Logger
}

// NewSpaceApp creates a fully wired SpaceApp from the given config.
func NewSpaceApp(cfg *config.Config) (*SpaceApp, error) {
	store, err := kv.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	slogger, logFile, err := newLogger(cfg.LogDir, store.Origin())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	clock := space.RealClock{}
	tokens := space.EnvTokenSource(cfg.Remote.TokenEnv)

	localRepo := local.NewRepository(store, logger, clock)

	remoteRepo, err := remote.NewRepositoryFromConfig(cfg.Remote, tokens, logger, clock)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating remote repository: %w", err)
	}

	watcher := kv.NewWatcher(store, cfg.Persistence.WatchInterval.Value(), logger)
	if err := watcher.Start(); err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("starting change watcher: %w", err)
	}

	scheduler := space.NewScheduler(store, cfg.Persistence.DebounceWindow.Value(), logger)

	workspace, err := space.NewWorkspace(store, watcher, scheduler, logger)
	if err != nil {
		watcher.Stop()
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	encryptor, err := secrets.NewEncryptorFromConfig(cfg.Secrets, store)
	if err != nil {
		workspace.Close()
		watcher.Stop()
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	return &SpaceApp{
		cfg:       cfg,
		store:     store,
		watcher:   watcher,
		scheduler: scheduler,
		logFile:   logFile,
		Store:     space.NewStore(localRepo, remoteRepo, localRepo, tokens, logger, clock),
		Local:     localRepo,
		Remote:    remoteRepo,
		Migrator:  space.NewMigrator(localRepo, localRepo, remoteRepo, logger, clock, cfg.Persistence.MigrationPause.Value()),
		Workspace: workspace,
		Vault:     secrets.NewVault(store, encryptor),
		Encryptor: encryptor,
		Logger:    logger,
	}, nil
}

// Close flushes pending writes and releases all resources. The first error
// wins; later cleanup still runs.
func (a *SpaceApp) Close() error {
	var firstErr error

	a.Workspace.Close()
	a.scheduler.Close()
	a.watcher.Stop()
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
