// Command ubinode is the node's CLI entrypoint: `solo` runs a single-node
// devnet over an in-memory store for development and testing; `run` is
// the full-node form that serves the RPC surface against a persistent
// store.
package main

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/burstubi/node/block"
	"github.com/burstubi/node/brn"
	"github.com/burstubi/node/consensus/active"
	"github.com/burstubi/node/consensus/onlineweight"
	"github.com/burstubi/node/governance"
	"github.com/burstubi/node/ledger"
	"github.com/burstubi/node/store"
	"github.com/burstubi/node/telemetry"
	"github.com/burstubi/node/trst"
	"github.com/burstubi/node/verification"
	"github.com/burstubi/node/walletaddr"

	nodeapi "github.com/burstubi/node/api"
)

var log = log15.New("pkg", "main")

func main() {
	app := cli.App{
		Name:    "ubinode",
		Usage:   "human-verification proof-of-personhood block-lattice node",
		Version: "0.1.0",
		Commands: []cli.Command{
			soloCommand,
			runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var apiAddrFlag = cli.StringFlag{
	Name:  "api-addr",
	Value: "localhost:8669",
	Usage: "RPC listen address",
}

var dataDirFlag = cli.StringFlag{
	Name:  "data-dir",
	Value: "",
	Usage: "persistent store directory (run only)",
}

var metricsFlag = cli.BoolFlag{
	Name:  "metrics",
	Usage: "enable Prometheus telemetry",
}

var soloCommand = cli.Command{
	Name:  "solo",
	Usage: "run a single-node devnet over an in-memory store",
	Flags: []cli.Flag{apiAddrFlag, metricsFlag},
	Action: func(ctx *cli.Context) error {
		return serve(ctx, store.OpenMem())
	},
}

var runCommand = cli.Command{
	Name:  "run",
	Usage: "run a full node against a persistent store",
	Flags: []cli.Flag{apiAddrFlag, dataDirFlag, metricsFlag},
	Action: func(ctx *cli.Context) error {
		dir := ctx.String(dataDirFlag.Name)
		if dir == "" {
			return fmt.Errorf("run: --data-dir is required")
		}
		st, err := store.Open(dir)
		if err != nil {
			return err
		}
		return serve(ctx, st)
	},
}

func serve(ctx *cli.Context, st *store.Store) error {
	if ctx.Bool(metricsFlag.Name) {
		telemetry.Enable("ubinode")
	}

	genesisWallet := walletaddr.WalletAddress{0x01}

	frontier := ledger.NewDagFrontier()
	brnEngine := brn.NewEngine()
	trstEngine := trst.NewEngine(30 * 24 * 3600)
	minDifficulty := func(block.Kind) uint64 { return 0 }
	processor := ledger.NewProcessor(frontier, brnEngine, trstEngine, nil, minDifficulty, 30*24*3600)

	govEngine := governance.NewEngine(governance.Params{
		ProposalDurationSecs:       7 * 24 * 3600,
		ExplorationDurationSecs:    7 * 24 * 3600,
		CooldownDurationSecs:       2 * 24 * 3600,
		PromotionDurationSecs:      7 * 24 * 3600,
		PropagationBufferSecs:      24 * 3600,
		EndorsementThreshold:       10,
		ProposalCostBrn:            1000,
		MaxRounds:                  3,
		BaseQuorumBps:              2000,
		GovernanceSupermajorityBps: 8000,
		ConstiSupermajorityBps:     9000,
		EmergencySupermajorityBps:  9500,
	})

	orch := verification.NewOrchestrator(verification.Params{
		NumVerifiers:               5,
		VerifierStakeAmount:        100,
		VerificationThresholdBps:   6000,
		MaxRevotes:                 2,
		NeitherRatioThresholdBps:   5000,
		MinAssignmentsForPenalty:   3,
		NeitherPenaltyCooldownSecs: 7 * 24 * 3600,
		EndorsementThreshold:       3,
		ChallengeStakeAmount:       500,
		ChallengeTimeoutSecs:       3 * 24 * 3600,
		EndorserRewardBps:          500,
		BootstrapExitThreshold:     25,
	}, genesisWallet)

	sampler := onlineweight.New(0)
	if raw, err := st.Meta(onlineWeightMetaKey); err == nil && len(raw) == 8 {
		sampler.Restore(binary.BigEndian.Uint64(raw))
	}
	elections := active.NewRegistry(1024)
	elections.SetOnlineWeight(sampler.Effective(0))

	handler := nodeapi.New(nodeapi.Deps{
		Frontier:     frontier,
		Processor:    processor,
		Store:        st,
		Trst:         trstEngine,
		Brn:          brnEngine,
		Governance:   govEngine,
		Verification: orch,
		OnlineWeight: sampler,
		OnlineReps:   make(map[walletaddr.WalletAddress]bool),
	})

	addr := ctx.String(apiAddrFlag.Name)
	server := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	log.Info("serving RPC", "addr", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		persistOnlineWeight(st, sampler)
		st.Close()
		return nil
	}
}

// onlineWeightMetaKey is where the online-weight sampler's EMA survives
// a restart.
const onlineWeightMetaKey = "online_weight_ema"

func persistOnlineWeight(st *store.Store, sampler *onlineweight.Sampler) {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], sampler.EMA())
	wb := st.NewWriteBatch()
	defer wb.Abort()
	wb.PutMeta(onlineWeightMetaKey, raw[:])
	if err := wb.Commit(); err != nil {
		log.Warn("failed to persist online weight EMA", "err", err)
	}
}
