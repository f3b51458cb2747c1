package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xswap-network/xswapd/internal/config"
	"github.com/xswap-network/xswapd/internal/core/application"
	"github.com/xswap-network/xswapd/internal/core/application/gateway"
	"github.com/xswap-network/xswapd/internal/core/application/settlement"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"github.com/xswap-network/xswapd/internal/infrastructure/chain/httpchain"
	"github.com/xswap-network/xswapd/internal/infrastructure/chain/simulated"
	pricefeederinfra "github.com/xswap-network/xswapd/internal/infrastructure/price-feeder"
	pubsubinfra "github.com/xswap-network/xswapd/internal/infrastructure/pubsub"
	httpinterface "github.com/xswap-network/xswapd/internal/interfaces/http"
	wsinterface "github.com/xswap-network/xswapd/internal/interfaces/ws"
	"github.com/xswap-network/xswapd/pkg/hashlock"
	coinbasefeeder "github.com/xswap-network/xswapd/pkg/price-feeder/coinbase"
	"github.com/xswap-network/xswapd/pkg/stats"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("failed to initialize config")
	}

	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	var (
		datadir         = config.GetDatadir()
		dbType          = config.GetString(config.DBTypeKey)
		httpAddress     = fmt.Sprintf(":%d", config.GetInt(config.HTTPListeningPortKey))
		hashFunction    = config.GetString(config.HashFunctionKey)
		chainTimeout    = config.GetDuration(config.ChainRequestTimeoutKey)
		priceSourceURL  = config.GetString(config.PriceSourceURLKey)
		priceTick       = config.GetDuration(config.PriceTickIntervalKey)
		priceFetchRate  = config.GetInt(config.PriceFetchRateKey)
		webhookTimeout  = config.GetDuration(config.WebhookTimeoutKey)
		statsInterval   = config.GetDuration(config.StatsIntervalKey)
		enableMetrics   = config.GetBool(config.EnableMetricsKey)
		wsWriteTimeout  = config.GetDuration(config.ResolverWriteTimeoutKey)
	)

	srcChain, err := newChain(
		"source", config.GetString(config.SrcChainURLKey), chainTimeout, hashFunction,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize source chain")
	}
	dstChain, err := newChain(
		"destination", config.GetString(config.DstChainURLKey), chainTimeout, hashFunction,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize destination chain")
	}

	var priceFeeder ports.PriceFeeder
	if priceSourceURL != "" {
		source, err := coinbasefeeder.NewService(priceSourceURL, chainTimeout)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize price source")
		}
		priceFeeder, err = pricefeederinfra.NewService(source, priceTick, priceFetchRate)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize price feeder")
		}
	}

	appConfig := &application.Config{
		DBType:   dbType,
		DBConfig: config.GetDbDir(),
		GatewayConfig: gateway.Config{
			PriceTickInterval: priceTick,
			BidWindow:         config.GetDuration(config.BidWindowKey),
			HeartbeatInterval: config.GetDuration(config.HeartbeatIntervalKey),
			LivenessTimeout:   config.GetDuration(config.LivenessTimeoutKey),
			OutboundQueueSize: config.GetInt(config.OutboundQueueSizeKey),
			MessageRate:       config.GetFloat(config.MessageRateKey),
			ReferenceGasCost:  config.GetDecimal(config.ReferenceGasCostKey),
		},
		SettlementConfig: settlement.Config{
			TimelockPolicy:       config.GetTimelockPolicy(),
			PollInterval:         config.GetDuration(config.PollIntervalKey),
			ConfirmationTimeout:  config.GetDuration(config.ConfirmationTimeoutKey),
			SecretReleaseMargin:  config.GetDuration(config.SecretReleaseMarginKey),
			RetryMaxAttempts:     uint64(config.GetInt(config.RetryMaxAttemptsKey)),
			RetryInitialInterval: config.GetDuration(config.RetryInitialIntervalKey),
		},
		MinProfitMargin: config.GetDecimal(config.MinProfitMarginKey),
		GasBuffer:       config.GetDecimal(config.GasBufferKey),
		EventReplaySize: config.GetInt(config.EventReplaySizeKey),
		HashFunction:    hashFunction,
		SrcChain:        srcChain,
		DstChain:        dstChain,
		PriceFeederSvc:  priceFeeder,
	}
	if err := appConfig.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	securePubSub, err := pubsubinfra.NewService(
		appConfig.RepoManager().WebhookRepository(), webhookTimeout,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize webhook pubsub")
	}
	appConfig.SecurePubSub = securePubSub
	if err := appConfig.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if statsInterval > 0 {
		stats.EnableMemoryStatistics(ctx, statsInterval, datadir)
	}

	webhookSvc := appConfig.WebhookService()
	webhookSvc.Start()

	coordinator := appConfig.SettlementService()
	if err := coordinator.Resume(ctx); err != nil {
		log.WithError(err).Fatal("failed to resume pending swaps")
	}

	gatewaySvc := appConfig.GatewayService()
	if err := gatewaySvc.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start resolver gateway")
	}

	httpSvc, err := httpinterface.NewService(httpinterface.ServiceOpts{
		Address:         httpAddress,
		EnableMetrics:   enableMetrics,
		GatewaySvc:      gatewaySvc,
		SettlementSvc:   coordinator,
		WebhookSvc:      webhookSvc,
		ResolverHandler: wsinterface.NewHandler(gatewaySvc, wsWriteTimeout),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize http interface")
	}

	log.RegisterExitHandler(func() {
		httpSvc.Stop()
		gatewaySvc.Stop()
		coordinator.Stop()
		webhookSvc.Stop()
		if priceFeeder != nil {
			priceFeeder.Close()
		}
		appConfig.RepoManager().Close()
	})

	if err := httpSvc.Start(); err != nil {
		log.WithError(err).Fatal("failed to start http interface")
	}

	log.Info("xswap daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	<-sigChan

	log.Info("shutting down daemon")
	cancel()
	log.Exit(0)
}

// newChain returns the relay client of the chain at the given url, or a
// simulated ledger if the url is empty.
func newChain(
	name, url string, timeout time.Duration, hashFunction string,
) (ports.Chain, error) {
	if url != "" {
		return httpchain.NewService(name, url, timeout)
	}

	oracle, err := hashlock.NewOracle(hashFunction)
	if err != nil {
		return nil, err
	}
	log.Warnf("no url set for %s chain, using a simulated ledger", name)
	return simulated.NewLedger(name, nil, oracle, 0), nil
}
