package dbbadger

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/timshannon/badgerhold/v4"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
)

const (
	ordersDir   = "orders"
	swapsDir    = "swaps"
	webhooksDir = "webhooks"
)

type repoManager struct {
	orderStore   *badgerhold.Store
	swapStore    *badgerhold.Store
	webhookStore *badgerhold.Store

	orderRepository   domain.OrderRepository
	swapRepository    domain.SwapRepository
	webhookRepository domain.WebhookRepository
}

// NewRepoManager opens (or creates if not exists) the badger stores on disk.
// It expects a base data dir and an optional logger, and creates a dedicated
// directory for orders, swaps and webhooks.
// Values are gob encoded, so that the commitment secret of pending swaps is
// persisted along with the rest of the swap.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	orderDb, err := createDb(filepath.Join(baseDbDir, ordersDir), logger)
	if err != nil {
		return nil, fmt.Errorf("opening orders db: %w", err)
	}

	swapDb, err := createDb(filepath.Join(baseDbDir, swapsDir), logger)
	if err != nil {
		orderDb.Close()
		return nil, fmt.Errorf("opening swaps db: %w", err)
	}

	webhookDb, err := createDb(filepath.Join(baseDbDir, webhooksDir), logger)
	if err != nil {
		orderDb.Close()
		swapDb.Close()
		return nil, fmt.Errorf("opening webhooks db: %w", err)
	}

	return &repoManager{
		orderStore:        orderDb,
		swapStore:         swapDb,
		webhookStore:      webhookDb,
		orderRepository:   NewOrderRepositoryImpl(orderDb),
		swapRepository:    NewSwapRepositoryImpl(swapDb),
		webhookRepository: NewWebhookRepositoryImpl(webhookDb),
	}, nil
}

func (r *repoManager) OrderRepository() domain.OrderRepository {
	return r.orderRepository
}

func (r *repoManager) SwapRepository() domain.SwapRepository {
	return r.swapRepository
}

func (r *repoManager) WebhookRepository() domain.WebhookRepository {
	return r.webhookRepository
}

func (r *repoManager) Close() {
	r.orderStore.Close()
	r.swapStore.Close()
	r.webhookStore.Close()
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger
	opts.Compression = options.ZSTD

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
