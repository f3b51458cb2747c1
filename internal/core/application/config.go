package application

import (
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/core/application/events"
	"github.com/xswap-network/xswapd/internal/core/application/gateway"
	"github.com/xswap-network/xswapd/internal/core/application/pricing"
	"github.com/xswap-network/xswapd/internal/core/application/pubsub"
	"github.com/xswap-network/xswapd/internal/core/application/settlement"
	"github.com/xswap-network/xswapd/internal/core/ports"
	dbbadger "github.com/xswap-network/xswapd/internal/infrastructure/storage/db/badger"
	"github.com/xswap-network/xswapd/internal/infrastructure/storage/db/inmemory"
	"github.com/xswap-network/xswapd/pkg/hashlock"
)

const (
	DBBadger   = "badger"
	DBInMemory = "inmemory"

	defaultEventReplaySize = 1024
)

var (
	SupportedDBType = map[string]struct{}{
		DBBadger:   {},
		DBInMemory: {},
	}
)

// Config wires the application services together. Services are created
// lazily on first access and shared afterwards.
type Config struct {
	DBType string
	// DBConfig is the db directory for the badger db type.
	DBConfig interface{}

	GatewayConfig    gateway.Config
	SettlementConfig settlement.Config
	MinProfitMargin  decimal.Decimal
	GasBuffer        decimal.Decimal
	EventReplaySize  int
	HashFunction     string

	SrcChain       ports.Chain
	DstChain       ports.Chain
	SecurePubSub   ports.SecurePubSub
	PriceFeederSvc ports.PriceFeeder
	Clock          ports.Clock

	repo        ports.RepoManager
	hub         *events.Hub
	oracle      *hashlock.Oracle
	analyzer    *pricing.Analyzer
	coordinator *settlement.Coordinator
	gateway     *gateway.Service
	webhooks    *pubsub.Service
}

func (c *Config) Validate() error {
	if _, ok := SupportedDBType[c.DBType]; !ok {
		return fmt.Errorf("unsupported db type %s", c.DBType)
	}
	if c.SrcChain == nil {
		return fmt.Errorf("missing source chain")
	}
	if c.DstChain == nil {
		return fmt.Errorf("missing destination chain")
	}
	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.secretOracle(); err != nil {
		return err
	}
	if _, err := c.gatewayService(); err != nil {
		return err
	}
	if c.SecurePubSub != nil {
		if _, err := c.webhookService(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) RepoManager() ports.RepoManager {
	repo, _ := c.repoManager()
	return repo
}

func (c *Config) EventHub() *events.Hub {
	if c.hub == nil {
		size := c.EventReplaySize
		if size <= 0 {
			size = defaultEventReplaySize
		}
		c.hub = events.NewHub(size)
	}
	return c.hub
}

func (c *Config) SecretOracle() *hashlock.Oracle {
	oracle, _ := c.secretOracle()
	return oracle
}

func (c *Config) SettlementService() *settlement.Coordinator {
	svc, _ := c.settlementService()
	return svc
}

func (c *Config) GatewayService() *gateway.Service {
	svc, _ := c.gatewayService()
	return svc
}

// WebhookService returns nil if no pubsub is configured.
func (c *Config) WebhookService() *pubsub.Service {
	svc, _ := c.webhookService()
	return svc
}

func (c *Config) repoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		switch c.DBType {
		case DBBadger:
			dbDir, ok := c.DBConfig.(string)
			if !ok || dbDir == "" {
				return nil, fmt.Errorf("missing badger db directory")
			}
			repoManager, err := dbbadger.NewRepoManager(dbDir, log.New())
			if err != nil {
				return nil, err
			}
			c.repo = repoManager
		case DBInMemory:
			c.repo = inmemory.NewRepoManager()
		default:
			return nil, fmt.Errorf("unsupported db type %s", c.DBType)
		}
	}
	return c.repo, nil
}

func (c *Config) secretOracle() (*hashlock.Oracle, error) {
	if c.oracle == nil {
		oracle, err := hashlock.NewOracle(c.HashFunction)
		if err != nil {
			return nil, err
		}
		c.oracle = oracle
	}
	return c.oracle, nil
}

func (c *Config) profitabilityAnalyzer() (*pricing.Analyzer, error) {
	if c.analyzer == nil {
		margin, buffer := c.MinProfitMargin, c.GasBuffer
		if margin.IsZero() {
			margin = pricing.DefaultMinProfitMargin
		}
		if buffer.IsZero() {
			buffer = pricing.DefaultGasBuffer
		}
		analyzer, err := pricing.NewAnalyzer(margin, buffer)
		if err != nil {
			return nil, err
		}
		c.analyzer = analyzer
	}
	return c.analyzer, nil
}

func (c *Config) settlementService() (*settlement.Coordinator, error) {
	if c.coordinator == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		oracle, err := c.secretOracle()
		if err != nil {
			return nil, err
		}
		coordinator, err := settlement.NewCoordinator(
			c.SettlementConfig, repo, c.SrcChain, c.DstChain, oracle,
			c.EventHub(), c.Clock,
		)
		if err != nil {
			return nil, err
		}
		c.coordinator = coordinator
	}
	return c.coordinator, nil
}

func (c *Config) gatewayService() (*gateway.Service, error) {
	if c.gateway == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		coordinator, err := c.settlementService()
		if err != nil {
			return nil, err
		}
		analyzer, err := c.profitabilityAnalyzer()
		if err != nil {
			return nil, err
		}
		svc, err := gateway.NewService(
			c.GatewayConfig, repo, coordinator, analyzer, c.EventHub(),
			c.PriceFeederSvc, c.Clock,
		)
		if err != nil {
			return nil, err
		}
		c.gateway = svc
	}
	return c.gateway, nil
}

func (c *Config) webhookService() (*pubsub.Service, error) {
	if c.webhooks == nil {
		if c.SecurePubSub == nil {
			return nil, nil
		}
		svc, err := pubsub.NewService(c.SecurePubSub, 0)
		if err != nil {
			return nil, err
		}
		c.EventHub().AddSink(svc)
		c.webhooks = svc
	}
	return c.webhooks, nil
}
