package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/urfave/cli"

	"github.com/sputn1ck/sweepbridge"
	"github.com/sputn1ck/sweepbridge/bridgedb"
)

func main() {
	app := cli.NewApp()
	app.Name = "bridged"
	app.Usage = "deposit reveal and sweep proof reconciliation"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "dbfile",
			Usage: "path to the deposit registry database",
			Value: "bridge.db",
		},
		cli.StringFlag{
			Name:  "network",
			Usage: "the bitcoin network (mainnet, testnet, regtest)",
			Value: "mainnet",
		},
		cli.Int64Flag{
			Name:  "difficultyfactor",
			Usage: "required accumulated difficulty factor",
			Value: 6,
		},
		cli.StringFlag{
			Name:  "currentdifficulty",
			Usage: "relay reported current epoch difficulty",
		},
		cli.StringFlag{
			Name:  "previousdifficulty",
			Usage: "relay reported previous epoch difficulty",
		},
	}
	app.Commands = []cli.Command{
		revealCommand,
		sweepCommand,
		chainStateCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// chainParams maps the network flag onto chain parameters.
func chainParams(ctx *cli.Context) (*chaincfg.Params, error) {
	switch network := ctx.GlobalString("network"); network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %v", network)
	}
}

// getBridge sets up the engine over the configured sqlite store. The relay
// difficulties are taken from flags; a deployment replaces this with the
// on-chain relay client.
func getBridge(ctx *cli.Context) (*sweepbridge.Bridge, bridgedb.Store, func(), error) {
	params, err := chainParams(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := bridgedb.NewSqliteStore(&bridgedb.SqliteConfig{
		DatabaseFileName: ctx.GlobalString("dbfile"),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() { _ = store.Close() }

	relay, err := flagRelayFromContext(ctx)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	cfg := sweepbridge.Config{
		ChainParams:             params,
		TxProofDifficultyFactor: ctx.GlobalInt64("difficultyfactor"),
	}

	bridge := sweepbridge.NewBridge(cfg, store, relay, &printLedger{})

	return bridge, store, cleanup, nil
}

// flagRelay serves fixed difficulties parsed from the command line.
type flagRelay struct {
	current  *big.Int
	previous *big.Int
}

func flagRelayFromContext(ctx *cli.Context) (*flagRelay, error) {
	parse := func(name string) (*big.Int, error) {
		raw := ctx.GlobalString(name)
		if raw == "" {
			return new(big.Int), nil
		}
		value, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("invalid %v: %v", name, raw)
		}
		return value, nil
	}

	current, err := parse("currentdifficulty")
	if err != nil {
		return nil, err
	}
	previous, err := parse("previousdifficulty")
	if err != nil {
		return nil, err
	}

	return &flagRelay{current: current, previous: previous}, nil
}

func (r *flagRelay) CurrentEpochDifficulty(_ context.Context) (
	*big.Int, error) {

	return r.current, nil
}

func (r *flagRelay) PreviousEpochDifficulty(_ context.Context) (
	*big.Int, error) {

	return r.previous, nil
}

// printLedger prints credit instructions instead of applying them; the
// destination ledger lives outside this binary.
type printLedger struct{}

func (l *printLedger) Credit(_ context.Context, depositor [20]byte,
	amount btcutil.Amount) error {

	fmt.Printf("credit %x with %v\n", depositor, amount)
	return nil
}

func printRespJSON(resp interface{}) {
	encoded, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fmt.Println("unable to encode response:", err)
		return
	}

	fmt.Println(string(encoded))
}
