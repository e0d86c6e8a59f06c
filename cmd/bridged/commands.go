package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli"

	"github.com/sputn1ck/sweepbridge"
	"github.com/sputn1ck/sweepbridge/btctx"
)

var revealCommand = cli.Command{
	Name:      "reveal",
	ShortName: "r",
	Usage:     "reveal a deposit to the registry",
	Description: `
	Declares a deposit's parameters for a funding transaction whose
	output locks funds into the deposit script. The raw transaction
	fields are supplied as hex strings.
	`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "version",
			Usage: "raw 4 byte transaction version (hex)",
			Value: "01000000",
		},
		cli.StringFlag{
			Name:  "inputs",
			Usage: "raw input vector (hex)",
		},
		cli.StringFlag{
			Name:  "outputs",
			Usage: "raw output vector (hex)",
		},
		cli.StringFlag{
			Name:  "locktime",
			Usage: "raw 4 byte locktime (hex)",
			Value: "00000000",
		},
		cli.UintFlag{
			Name:  "index",
			Usage: "funding output index",
		},
		cli.StringFlag{
			Name:  "depositor",
			Usage: "20 byte depositor identity (hex)",
		},
		cli.StringFlag{
			Name:  "blinding",
			Usage: "8 byte blinding factor (hex)",
		},
		cli.StringFlag{
			Name:  "walletpkh",
			Usage: "20 byte wallet public key hash (hex)",
		},
		cli.StringFlag{
			Name:  "refundpkh",
			Usage: "20 byte refund public key hash (hex)",
		},
		cli.StringFlag{
			Name:  "refundlocktime",
			Usage: "raw 4 byte refund locktime (hex)",
		},
		cli.StringFlag{
			Name:  "vault",
			Usage: "20 byte vault identity (hex)",
		},
	},
	Action: revealDeposit,
}

var sweepCommand = cli.Command{
	Name:      "sweep",
	ShortName: "s",
	Usage:     "submit a sweep transaction proof",
	Description: `
	Verifies a sweep transaction's SPV proof and reconciles its inputs
	against the deposit registry. On success every consolidated deposit
	is marked swept and a credit instruction is printed per deposit.
	`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "version",
			Usage: "raw 4 byte transaction version (hex)",
			Value: "01000000",
		},
		cli.StringFlag{
			Name:  "inputs",
			Usage: "raw input vector (hex)",
		},
		cli.StringFlag{
			Name:  "outputs",
			Usage: "raw output vector (hex)",
		},
		cli.StringFlag{
			Name:  "locktime",
			Usage: "raw 4 byte locktime (hex)",
			Value: "00000000",
		},
		cli.StringFlag{
			Name:  "merkleproof",
			Usage: "concatenated 32 byte merkle siblings (hex)",
		},
		cli.UintFlag{
			Name:  "txindex",
			Usage: "transaction index in block",
		},
		cli.StringFlag{
			Name:  "headers",
			Usage: "concatenated 80 byte block headers (hex)",
		},
	},
	Action: submitSweep,
}

var chainStateCommand = cli.Command{
	Name:      "chainstate",
	ShortName: "c",
	Usage:     "show the sweep chain state",
	Action:    showChainState,
}

// txFromFlags assembles the raw transaction view from command flags.
func txFromFlags(ctx *cli.Context) (*btctx.TxInfo, error) {
	version, err := fixedBytes4(ctx.String("version"))
	if err != nil {
		return nil, fmt.Errorf("version: %v", err)
	}
	locktime, err := fixedBytes4(ctx.String("locktime"))
	if err != nil {
		return nil, fmt.Errorf("locktime: %v", err)
	}

	inputs, err := hex.DecodeString(ctx.String("inputs"))
	if err != nil {
		return nil, fmt.Errorf("inputs: %v", err)
	}
	outputs, err := hex.DecodeString(ctx.String("outputs"))
	if err != nil {
		return nil, fmt.Errorf("outputs: %v", err)
	}

	return &btctx.TxInfo{
		Version:      version,
		InputVector:  inputs,
		OutputVector: outputs,
		Locktime:     locktime,
	}, nil
}

func fixedBytes4(raw string) ([4]byte, error) {
	var out [4]byte
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return out, err
	}
	if len(decoded) != 4 {
		return out, fmt.Errorf("want 4 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func fixedBytes8(raw string) ([8]byte, error) {
	var out [8]byte
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return out, err
	}
	if len(decoded) != 8 {
		return out, fmt.Errorf("want 8 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func fixedBytes20(raw string) ([20]byte, error) {
	var out [20]byte
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return out, err
	}
	if len(decoded) != 20 {
		return out, fmt.Errorf("want 20 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func revealDeposit(ctx *cli.Context) error {
	bridge, _, cleanup, err := getBridge(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	fundingTx, err := txFromFlags(ctx)
	if err != nil {
		return err
	}

	reveal := &sweepbridge.RevealParams{
		FundingOutputIndex: uint32(ctx.Uint("index")),
	}
	if reveal.Depositor, err = fixedBytes20(ctx.String("depositor")); err != nil {
		return fmt.Errorf("depositor: %v", err)
	}
	if reveal.BlindingFactor, err = fixedBytes8(ctx.String("blinding")); err != nil {
		return fmt.Errorf("blinding: %v", err)
	}
	if reveal.WalletPubKeyHash, err = fixedBytes20(ctx.String("walletpkh")); err != nil {
		return fmt.Errorf("walletpkh: %v", err)
	}
	if reveal.RefundPubKeyHash, err = fixedBytes20(ctx.String("refundpkh")); err != nil {
		return fmt.Errorf("refundpkh: %v", err)
	}
	if reveal.RefundLocktime, err = fixedBytes4(ctx.String("refundlocktime")); err != nil {
		return fmt.Errorf("refundlocktime: %v", err)
	}
	if vault := ctx.String("vault"); vault != "" {
		if reveal.Vault, err = fixedBytes20(vault); err != nil {
			return fmt.Errorf("vault: %v", err)
		}
	}

	key, err := bridge.RevealDeposit(context.Background(), fundingTx, reveal)
	if err != nil {
		return fmt.Errorf("reveal rejected (%v): %v",
			sweepbridge.Classify(err), err)
	}

	printRespJSON(struct {
		DepositKey    string `json:"deposit_key"`
		FundingTxHash string `json:"funding_tx_hash"`
	}{
		DepositKey:    hex.EncodeToString(key[:]),
		FundingTxHash: fundingTx.Hash().String(),
	})

	return nil
}

func submitSweep(ctx *cli.Context) error {
	bridge, _, cleanup, err := getBridge(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sweepTx, err := txFromFlags(ctx)
	if err != nil {
		return err
	}

	merkleProof, err := hex.DecodeString(ctx.String("merkleproof"))
	if err != nil {
		return fmt.Errorf("merkleproof: %v", err)
	}
	headers, err := hex.DecodeString(ctx.String("headers"))
	if err != nil {
		return fmt.Errorf("headers: %v", err)
	}

	result, err := bridge.SubmitSweepProof(
		context.Background(), sweepTx, &sweepbridge.SweepProof{
			MerkleProof:    merkleProof,
			TxIndexInBlock: uint32(ctx.Uint("txindex")),
			BitcoinHeaders: headers,
		},
	)
	if err != nil {
		return fmt.Errorf("sweep rejected (%v): %v",
			sweepbridge.Classify(err), err)
	}

	printRespJSON(struct {
		SweepTxHash string `json:"sweep_tx_hash"`
		TotalSwept  int64  `json:"total_swept_sat"`
		Credits     int    `json:"credits"`
	}{
		SweepTxHash: result.SweepTxHash.String(),
		TotalSwept:  int64(result.TotalSwept),
		Credits:     len(result.Credits),
	})

	return nil
}

func showChainState(ctx *cli.Context) error {
	_, store, cleanup, err := getBridge(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	state, err := store.ChainState(context.Background())
	if err != nil {
		return err
	}

	printRespJSON(struct {
		PrevSweepHash  string `json:"prev_sweep_hash"`
		PrevSweepValue uint64 `json:"prev_sweep_value_sat"`
	}{
		PrevSweepHash:  state.PrevSweepHash.String(),
		PrevSweepValue: btctx.LeBytesToU64(state.PrevSweepValueLE),
	})

	return nil
}
