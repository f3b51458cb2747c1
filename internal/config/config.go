package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/pkg/hashlock"
)

const (
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// HTTPListeningPortKey is the port where the REST and resolver websocket
	// interfaces listen on
	HTTPListeningPortKey = "HTTP_LISTENING_PORT"
	// EnableMetricsKey exposes the prometheus metrics at /metrics
	EnableMetricsKey = "ENABLE_METRICS"
	// StatsIntervalKey defines interval for printing basic memory statistics.
	// Zero disables them
	StatsIntervalKey = "STATS_INTERVAL"

	// PriceTickIntervalKey is the period of the auction price updates
	PriceTickIntervalKey = "PRICE_TICK_INTERVAL"
	// BidWindowKey is the time after the first bid at which the best bid is
	// accepted automatically. Zero disables auto-acceptance
	BidWindowKey = "BID_WINDOW"
	// HeartbeatIntervalKey is the period of the pings sent to resolvers
	HeartbeatIntervalKey = "HEARTBEAT_INTERVAL"
	// LivenessTimeoutKey is the silence after which a resolver is evicted
	LivenessTimeoutKey = "LIVENESS_TIMEOUT"
	// EventReplaySizeKey is the number of events kept for resolvers resuming
	// their stream
	EventReplaySizeKey = "EVENT_REPLAY_SIZE"
	// OutboundQueueSizeKey bounds the events queued for a single resolver
	OutboundQueueSizeKey = "OUTBOUND_QUEUE_SIZE"
	// MessageRateKey bounds the inbound messages per second of a resolver
	// connection
	MessageRateKey = "MESSAGE_RATE"
	// ResolverWriteTimeoutKey is the deadline of every write to a resolver
	// connection
	ResolverWriteTimeoutKey = "RESOLVER_WRITE_TIMEOUT"

	// MinProfitMarginKey is the minimum expected return for an execution to
	// be deemed profitable
	MinProfitMarginKey = "MIN_PROFIT_MARGIN"
	// GasBufferKey is the fraction added on top of estimated gas costs
	GasBufferKey = "GAS_BUFFER"
	// ReferenceGasCostKey is the gas cost used for the profitability hints
	// streamed to resolvers
	ReferenceGasCostKey = "REFERENCE_GAS_COST"

	// ConfirmationTimeoutKey bounds the wait for an escrow confirmation
	ConfirmationTimeoutKey = "CONFIRMATION_TIMEOUT"
	// PollIntervalKey is the period at which swaps check the chains
	PollIntervalKey = "POLL_INTERVAL"
	// SecretReleaseMarginKey is the minimum time left before the destination
	// cancellation for the secret to be released
	SecretReleaseMarginKey = "SECRET_RELEASE_MARGIN"
	// RetryMaxAttemptsKey bounds the retries of a failing chain call
	RetryMaxAttemptsKey = "RETRY_MAX_ATTEMPTS"
	// RetryInitialIntervalKey is the first backoff interval of chain retries
	RetryInitialIntervalKey = "RETRY_INITIAL_INTERVAL"

	SrcWithdrawalDelayKey         = "SRC_WITHDRAWAL_DELAY"
	SrcPublicWithdrawalDelayKey   = "SRC_PUBLIC_WITHDRAWAL_DELAY"
	SrcCancellationDelayKey       = "SRC_CANCELLATION_DELAY"
	SrcPublicCancellationDelayKey = "SRC_PUBLIC_CANCELLATION_DELAY"
	DstWithdrawalDelayKey         = "DST_WITHDRAWAL_DELAY"
	DstPublicWithdrawalDelayKey   = "DST_PUBLIC_WITHDRAWAL_DELAY"
	DstCancellationDelayKey       = "DST_CANCELLATION_DELAY"

	// HashFunctionKey is the hashlock function, either sha256 or keccak256
	HashFunctionKey = "HASH_FUNCTION"
	// SrcChainURLKey is the endpoint of the source chain relay. If not set, a
	// simulated ledger is used
	SrcChainURLKey = "SRC_CHAIN_URL"
	// DstChainURLKey is the endpoint of the destination chain relay. If not
	// set, a simulated ledger is used
	DstChainURLKey = "DST_CHAIN_URL"
	// ChainRequestTimeoutKey is the timeout of the requests to chain relays
	ChainRequestTimeoutKey = "CHAIN_REQUEST_TIMEOUT"
	// PriceSourceURLKey is the endpoint of the market price source. If not
	// set, no market price is used
	PriceSourceURLKey = "PRICE_SOURCE_URL"
	// PriceFetchRateKey bounds the requests per second to the price source
	PriceFetchRateKey = "PRICE_FETCH_RATE"
	// WebhookTimeoutKey is the timeout of webhook deliveries
	WebhookTimeoutKey = "WEBHOOK_TIMEOUT"

	DbLocation       = "db"
	ProfilerLocation = "stats"

	DBBadger   = "badger"
	DBInMemory = "inmemory"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("xswapd", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("XSWAP")
	vip.AutomaticEnv()

	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(DBTypeKey, DBBadger)
	vip.SetDefault(HTTPListeningPortKey, 9080)
	vip.SetDefault(EnableMetricsKey, false)
	vip.SetDefault(StatsIntervalKey, 0)

	vip.SetDefault(PriceTickIntervalKey, time.Second)
	vip.SetDefault(BidWindowKey, 5*time.Second)
	vip.SetDefault(HeartbeatIntervalKey, 15*time.Second)
	vip.SetDefault(LivenessTimeoutKey, 45*time.Second)
	vip.SetDefault(EventReplaySizeKey, 1024)
	vip.SetDefault(OutboundQueueSizeKey, 256)
	vip.SetDefault(MessageRateKey, 20)
	vip.SetDefault(ResolverWriteTimeoutKey, 10*time.Second)

	vip.SetDefault(MinProfitMarginKey, "0.01")
	vip.SetDefault(GasBufferKey, "0.2")
	vip.SetDefault(ReferenceGasCostKey, "0")

	vip.SetDefault(ConfirmationTimeoutKey, 10*time.Minute)
	vip.SetDefault(PollIntervalKey, 5*time.Second)
	vip.SetDefault(SecretReleaseMarginKey, 5*time.Minute)
	vip.SetDefault(RetryMaxAttemptsKey, 5)
	vip.SetDefault(RetryInitialIntervalKey, time.Second)

	policy := domain.DefaultTimelockPolicy
	vip.SetDefault(SrcWithdrawalDelayKey, policy.SrcWithdrawal)
	vip.SetDefault(SrcPublicWithdrawalDelayKey, policy.SrcPublicWithdrawal)
	vip.SetDefault(SrcCancellationDelayKey, policy.SrcCancellation)
	vip.SetDefault(SrcPublicCancellationDelayKey, policy.SrcPublicCancellation)
	vip.SetDefault(DstWithdrawalDelayKey, policy.DstWithdrawal)
	vip.SetDefault(DstPublicWithdrawalDelayKey, policy.DstPublicWithdrawal)
	vip.SetDefault(DstCancellationDelayKey, policy.DstCancellation)

	vip.SetDefault(HashFunctionKey, hashlock.Sha256)
	vip.SetDefault(ChainRequestTimeoutKey, 10*time.Second)
	vip.SetDefault(PriceFetchRateKey, 5)
	vip.SetDefault(WebhookTimeoutKey, 15*time.Second)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetDecimal returns the value of the key as a decimal. Invalid values are
// caught by validate, so zero is returned for them here.
func GetDecimal(key string) decimal.Decimal {
	d, _ := decimal.NewFromString(vip.GetString(key))
	return d
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetDbDir() string {
	return filepath.Join(GetDatadir(), DbLocation)
}

// GetTimelockPolicy returns the timelock offsets applied to new swaps.
func GetTimelockPolicy() domain.TimelockPolicy {
	return domain.TimelockPolicy{
		SrcWithdrawal:         GetDuration(SrcWithdrawalDelayKey),
		SrcPublicWithdrawal:   GetDuration(SrcPublicWithdrawalDelayKey),
		SrcCancellation:       GetDuration(SrcCancellationDelayKey),
		SrcPublicCancellation: GetDuration(SrcPublicCancellationDelayKey),
		DstWithdrawal:         GetDuration(DstWithdrawalDelayKey),
		DstPublicWithdrawal:   GetDuration(DstPublicWithdrawalDelayKey),
		DstCancellation:       GetDuration(DstCancellationDelayKey),
	}
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	dbType := GetString(DBTypeKey)
	if dbType != DBBadger && dbType != DBInMemory {
		return fmt.Errorf(
			"%s must be one of %s, %s", DBTypeKey, DBBadger, DBInMemory,
		)
	}

	port := GetInt(HTTPListeningPortKey)
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid %s %d", HTTPListeningPortKey, port)
	}

	for _, key := range []string{
		MinProfitMarginKey, GasBufferKey, ReferenceGasCostKey,
	} {
		d, err := decimal.NewFromString(GetString(key))
		if err != nil {
			return fmt.Errorf("invalid %s: %s", key, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	for _, key := range []string{
		PriceTickIntervalKey, HeartbeatIntervalKey, LivenessTimeoutKey,
		ResolverWriteTimeoutKey, ConfirmationTimeoutKey, PollIntervalKey,
		RetryInitialIntervalKey,
	} {
		if GetDuration(key) <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}
	if GetDuration(LivenessTimeoutKey) < GetDuration(HeartbeatIntervalKey) {
		return fmt.Errorf(
			"%s must not be shorter than %s", LivenessTimeoutKey, HeartbeatIntervalKey,
		)
	}
	if GetInt(EventReplaySizeKey) < 0 {
		return fmt.Errorf("%s must not be negative", EventReplaySizeKey)
	}
	if GetInt(OutboundQueueSizeKey) <= 0 {
		return fmt.Errorf("%s must be positive", OutboundQueueSizeKey)
	}
	if GetInt(PriceFetchRateKey) <= 0 {
		return fmt.Errorf("%s must be positive", PriceFetchRateKey)
	}

	if err := GetTimelockPolicy().Resolve(1).Validate(); err != nil {
		return fmt.Errorf("invalid timelock delays: %s", err)
	}

	if _, err := hashlock.NewOracle(GetString(HashFunctionKey)); err != nil {
		return err
	}

	for _, key := range []string{SrcChainURLKey, DstChainURLKey, PriceSourceURLKey} {
		if !vip.IsSet(key) || GetString(key) == "" {
			continue
		}
		if _, err := url.ParseRequestURI(GetString(key)); err != nil {
			return fmt.Errorf("invalid %s: %s", key, err)
		}
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if GetString(DBTypeKey) == DBBadger {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
			return err
		}
	}

	if GetDuration(StatsIntervalKey) > 0 {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
