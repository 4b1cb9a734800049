package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Investorold/KPi-Vault-sub000/internal/config"
	"github.com/Investorold/KPi-Vault-sub000/internal/dedup"
	"github.com/Investorold/KPi-Vault-sub000/internal/delivery"
	"github.com/Investorold/KPi-Vault-sub000/internal/events"
	"github.com/Investorold/KPi-Vault-sub000/internal/ledger"
	"github.com/Investorold/KPi-Vault-sub000/internal/metrics"
	"github.com/Investorold/KPi-Vault-sub000/internal/oracle"
	"github.com/Investorold/KPi-Vault-sub000/internal/rules"
	"github.com/Investorold/KPi-Vault-sub000/internal/worker"
)

// getEnvOrDefault returns the environment variable value or a default if
// not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Local .env is optional; flags and real environment win.
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	cfg := &config.Config{}
	flag.StringVar(&cfg.LedgerRPCURL, "ledger-rpc-url", getEnvOrDefault("LEDGER_RPC_URL", ""), "Ledger RPC websocket endpoint")
	flag.StringVar(&cfg.LedgerContract, "ledger-contract", getEnvOrDefault("LEDGER_CONTRACT", ""), "KPI vault contract address")
	flag.StringVar(&cfg.RuleStoreURL, "rule-store-url", getEnvOrDefault("RULE_STORE_URL", ""), "Rule store base URL")
	flag.StringVar(&cfg.DeliveryURL, "delivery-url", getEnvOrDefault("DELIVERY_URL", ""), "Notification backend base URL")
	flag.StringVar(&cfg.OracleURL, "oracle-url", getEnvOrDefault("ORACLE_URL", ""), "Decryption relayer base URL (empty = listener-only mode)")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnvOrDefault("REDIS_ADDR", ""), "Redis address for metrics and durable dedup (empty = in-memory)")
	flag.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", worker.DefaultHeartbeatInterval, "Liveness heartbeat interval")
	flag.IntVar(&cfg.WorkerCount, "worker-count", worker.DefaultWorkerCount, "Concurrent event handlers")
	flag.Parse()

	// Secrets are environment-only, never flags.
	cfg.WorkerPrivateKey = os.Getenv("WORKER_PRIVATE_KEY")
	cfg.DeliveryKey = os.Getenv("ALERT_WORKER_KEY")

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("Starting alert worker",
		"ledger_rpc_url", cfg.LedgerRPCURL,
		"ledger_contract", cfg.LedgerContract,
		"rule_store_url", cfg.RuleStoreURL,
		"delivery_url", cfg.DeliveryURL,
		"oracle_enabled", !cfg.ListenerOnly(),
		"redis_addr", cfg.RedisAddr,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"worker_count", cfg.WorkerCount,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	workerKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.WorkerPrivateKey, "0x"))
	if err != nil {
		slog.Error("Invalid worker private key", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	contract := common.HexToAddress(cfg.LedgerContract)

	slog.Info("Connecting to ledger", "rpc_url", cfg.LedgerRPCURL)
	ledgerClient, err := ledger.Dial(ctx, cfg.LedgerRPCURL, contract, workerKey)
	if err != nil {
		slog.Error("Failed to connect to ledger", "error", err)
		os.Exit(1)
	}
	defer ledgerClient.Close()
	slog.Info("Connected to ledger", "worker_address", ledgerClient.WorkerAddress().Hex())

	// Redis is optional: without it the gate is in-memory and metrics are
	// not reported.
	var gate dedup.Gate = dedup.NewMemoryGate()
	var recorder metrics.Recorder = metrics.NoOp{}
	var stats func() map[string]uint64
	if cfg.RedisAddr != "" {
		slog.Info("Connecting to Redis", "addr", cfg.RedisAddr)
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		gate = dedup.NewRedisGate(redisClient)

		collector := metrics.NewCollector(redisClient)
		collector.Start(ctx)
		defer collector.Stop()
		recorder = collector
		stats = collector.Counters
		slog.Info("Successfully connected to Redis")
	}

	var decryptor oracle.Decryptor = oracle.Disabled{}
	if !cfg.ListenerOnly() {
		decryptor = oracle.NewClient(cfg.OracleURL, contract, workerKey)
	} else {
		slog.Info("Decryption capability disabled, running in listener-only mode")
	}

	ruleClient := rules.NewClient(cfg.RuleStoreURL)
	deliveryClient := delivery.NewClient(cfg.DeliveryURL, cfg.DeliveryKey, ledgerClient.WorkerAddress())

	w := worker.New(ruleClient, ledgerClient, ledgerClient, deliveryClient, decryptor, gate, recorder)
	w.SetWorkerCount(cfg.WorkerCount)

	go worker.RunHeartbeat(ctx, cfg.HeartbeatInterval, stats)

	sink := make(chan events.MetricEvent, 256)
	go runSubscription(ctx, ledgerClient, sink)

	w.Run(ctx, sink)

	slog.Info("Alert worker stopped")
}

// runSubscription keeps a MetricRecorded subscription alive, resubscribing
// with backoff after failures, until ctx is cancelled.
func runSubscription(ctx context.Context, client *ledger.Client, sink chan<- events.MetricEvent) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		sub, err := client.WatchMetricRecorded(ctx, sink)
		if err != nil {
			slog.Error("Failed to subscribe to ledger events", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		slog.Info("Subscribed to MetricRecorded events")

		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			return
		case err := <-sub.Err():
			slog.Error("Ledger subscription dropped", "error", err)
			sub.Unsubscribe()
		}
	}
}
