// Command orchestrator starts a kernel validating node: state, execution,
// firewall, mempool, consensus, P2P networking, and public RPC, all bound
// to one local database. Blocks are executed in process by package
// orchestrator; this binary neither imports workload nor dials ipc/control.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ioi-foundation/kernel/config"
	"github.com/ioi-foundation/kernel/crypto"
	"github.com/ioi-foundation/kernel/firewall"
	"github.com/ioi-foundation/kernel/orchestrator"
	"github.com/ioi-foundation/kernel/services/agentic"
	"github.com/ioi-foundation/kernel/storage"
	"github.com/ioi-foundation/kernel/types"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	password := os.Getenv("IOI_KERNEL_PASSWORD")
	if password == "" {
		logger.Warn("IOI_KERNEL_PASSWORD not set, keystore will use an empty password")
	}
	privKey, err := crypto.LoadKeystore(*keyPath, password)
	if err != nil {
		logger.Fatal("load validator key", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("mkdir data dir", zap.Error(err))
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	blocks := storage.NewBlockStore(db)
	tip, err := blocks.GetTip()
	if err != nil {
		logger.Fatal("read chain tip", zap.Error(err))
	}

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		logger.Fatal("tls", zap.Error(err))
	}
	if tlsCfg != nil {
		logger.Info("mTLS enabled for P2P")
	}

	orchCfg := orchestrator.Config{
		ChainID:       types.ChainId(cfg.Genesis.ChainID),
		NodeID:        cfg.NodeID,
		P2PAddr:       fmt.Sprintf(":%d", cfg.P2PPort),
		RPCAddr:       fmt.Sprintf(":%d", cfg.RPCPort),
		RPCAuthToken:  cfg.RPCAuthToken,
		TelemetryAddr: cfg.TelemetryAddr,
		MaxBlockTxs:   cfg.MaxBlockTxs,
		NodeCacheSize: cfg.NodeCacheSize,
		Policy:        defaultFirewallPolicy(),
	}

	orch, err := orchestrator.New(orchCfg, db, privKey, tlsCfg, logger)
	if err != nil {
		logger.Fatal("assemble orchestrator", zap.Error(err))
	}

	if tip == "" {
		if err := orch.SeedGenesis(cfg); err != nil {
			logger.Fatal("genesis", zap.Error(err))
		}
		logger.Info("genesis block committed")
	}

	if err := orch.Start(); err != nil {
		logger.Fatal("start orchestrator", zap.Error(err))
	}
	logger.Info("orchestrator listening", zap.String("p2p", orchCfg.P2PAddr), zap.String("rpc", orchCfg.RPCAddr))

	for _, sp := range cfg.SeedPeers {
		if err := orch.ConnectSeedPeer(sp.ID, sp.Addr); err != nil {
			logger.Warn("seed peer connect", zap.String("id", sp.ID), zap.Error(err))
			continue
		}
		logger.Info("connected to seed peer", zap.String("id", sp.ID), zap.String("addr", sp.Addr))
	}

	done := make(chan struct{})
	go orch.Run(2*time.Second, done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	close(done)
	if err := orch.Stop(); err != nil {
		logger.Warn("stop orchestrator", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// defaultFirewallPolicy is the node-wide agent-class policy: deny by
// default, with session bookkeeping (start/close) allowed outright since
// those carry no side effects beyond the agentic service's own budget
// tracking. Every other agent-class call falls through to DenyAll.
// Calls to non-agent-class services never reach this policy: the firewall
// allows them without policy evaluation. The rule set is fixed in this
// binary; no config option overrides it.
func defaultFirewallPolicy() firewall.Policy {
	return firewall.Policy{
		Defaults: firewall.DenyAll,
		Rules: []firewall.Rule{
			{ServiceID: agentic.ServiceID, Method: "start_agent", Verdict: types.VerdictAllow},
			{ServiceID: agentic.ServiceID, Method: "close_agent", Verdict: types.VerdictAllow},
		},
	}
}
