// Command dscctl is a command-line client for the dscd API. It signs
// state-changing requests with the caller's key.
//
// Usage:
//
//	dscctl [global flags] <command> [command flags]
//
// Amounts are given in whole tokens ("1.5") and converted with -decimals.
package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/dscengine/internal/crypto"
)

const usage = `usage: dscctl [global flags] <command> [flags]

commands:
  keygen        create a key (sealed with -password when -out is set)
  seal-key      seal the -key into a password-protected key file
  deposit       deposit collateral            -asset -amount
  redeem        redeem collateral             -asset -amount
  deposit-mint  deposit and mint in one call  -asset -collateral -dsc
  redeem-burn   burn and redeem in one call   -asset -collateral -dsc
  mint          mint DSC                      -amount
  burn          burn DSC                      -amount
  liquidate     liquidate a user              -asset -user -debt
  approve       approve a spender             -token -amount [-spender]
  faucet        mint dev collateral           -token -amount
  account       show an account               [-address]

global flags:
`

type globals struct {
	api      string
	apiKey   string
	key      string
	keyFile  string
	password string
	decimals int
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "dscctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var g globals
	fs := flag.NewFlagSet("dscctl", flag.ContinueOnError)
	fs.StringVar(&g.api, "api", envOr("DSC_API", "http://localhost:8000"), "dscd base URL")
	fs.StringVar(&g.apiKey, "api-key", os.Getenv("DSC_API_KEY"), "API key")
	fs.StringVar(&g.key, "key", os.Getenv("DSC_PRIVATE_KEY"), "hex private key")
	fs.StringVar(&g.keyFile, "keyfile", os.Getenv("DSC_KEY_FILE"), "sealed key file")
	fs.StringVar(&g.password, "password", os.Getenv("DSC_KEY_PASSWORD"), "key file password")
	fs.IntVar(&g.decimals, "decimals", 18, "token decimals used to convert amounts")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "keygen":
		return keygen(rest, g, out)
	case "seal-key":
		return sealKey(rest, g, out)
	case "account":
		return account(ctx, rest, g, out)
	}

	op, ok := operations[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	key, err := crypto.ResolveKey(crypto.KeySource{Hex: g.key, File: g.keyFile, Password: g.password})
	if err != nil {
		return err
	}
	c := newClient(g.api, g.apiKey, crypto.NewRequestSigner(key))
	path, body, err := op(rest, int32(g.decimals))
	if err != nil {
		return err
	}
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	return printJSON(out, resp)
}

// operation parses command flags into a signed POST.
type operation func(args []string, decimals int32) (path string, body any, err error)

var operations = map[string]operation{
	"deposit":      collateralOp("/api/collateral/deposit"),
	"redeem":       collateralOp("/api/collateral/redeem"),
	"deposit-mint": positionOp("/api/collateral/deposit-and-mint"),
	"redeem-burn":  positionOp("/api/collateral/redeem-for-dsc"),
	"mint":         amountOp("/api/dsc/mint"),
	"burn":         amountOp("/api/dsc/burn"),
	"liquidate":    liquidateOp,
	"approve":      approveOp,
	"faucet":       faucetOp,
}

func collateralOp(path string) operation {
	return func(args []string, decimals int32) (string, any, error) {
		fs := flag.NewFlagSet(path, flag.ContinueOnError)
		asset := fs.String("asset", "", "collateral token address")
		amount := fs.String("amount", "", "collateral amount")
		if err := fs.Parse(args); err != nil {
			return "", nil, err
		}
		if err := requireAddress("asset", *asset); err != nil {
			return "", nil, err
		}
		units, err := toBaseUnits(*amount, decimals)
		if err != nil {
			return "", nil, err
		}
		return path, map[string]string{"asset": *asset, "amount": units}, nil
	}
}

func positionOp(path string) operation {
	return func(args []string, decimals int32) (string, any, error) {
		fs := flag.NewFlagSet(path, flag.ContinueOnError)
		asset := fs.String("asset", "", "collateral token address")
		collateral := fs.String("collateral", "", "collateral amount")
		dsc := fs.String("dsc", "", "DSC amount")
		if err := fs.Parse(args); err != nil {
			return "", nil, err
		}
		if err := requireAddress("asset", *asset); err != nil {
			return "", nil, err
		}
		col, err := toBaseUnits(*collateral, decimals)
		if err != nil {
			return "", nil, err
		}
		debt, err := toBaseUnits(*dsc, 18)
		if err != nil {
			return "", nil, err
		}
		return path, map[string]string{"asset": *asset, "amount_collateral": col, "amount_dsc": debt}, nil
	}
}

func amountOp(path string) operation {
	return func(args []string, _ int32) (string, any, error) {
		fs := flag.NewFlagSet(path, flag.ContinueOnError)
		amount := fs.String("amount", "", "DSC amount")
		if err := fs.Parse(args); err != nil {
			return "", nil, err
		}
		units, err := toBaseUnits(*amount, 18)
		if err != nil {
			return "", nil, err
		}
		return path, map[string]string{"amount": units}, nil
	}
}

func liquidateOp(args []string, _ int32) (string, any, error) {
	fs := flag.NewFlagSet("liquidate", flag.ContinueOnError)
	asset := fs.String("asset", "", "collateral to seize")
	user := fs.String("user", "", "account to liquidate")
	debt := fs.String("debt", "", "DSC debt to cover")
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	if err := requireAddress("asset", *asset); err != nil {
		return "", nil, err
	}
	if err := requireAddress("user", *user); err != nil {
		return "", nil, err
	}
	units, err := toBaseUnits(*debt, 18)
	if err != nil {
		return "", nil, err
	}
	return "/api/liquidations", map[string]string{"asset": *asset, "user": *user, "debt_to_cover": units}, nil
}

func approveOp(args []string, decimals int32) (string, any, error) {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	token := fs.String("token", "", "token symbol or address")
	amount := fs.String("amount", "", "allowance")
	spender := fs.String("spender", "", "spender (defaults to the engine custody account)")
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	if *token == "" {
		return "", nil, errors.New("-token is required")
	}
	units, err := toBaseUnits(*amount, decimals)
	if err != nil {
		return "", nil, err
	}
	body := map[string]string{"amount": units}
	if *spender != "" {
		if err := requireAddress("spender", *spender); err != nil {
			return "", nil, err
		}
		body["spender"] = *spender
	}
	return "/api/tokens/" + *token + "/approve", body, nil
}

func faucetOp(args []string, decimals int32) (string, any, error) {
	fs := flag.NewFlagSet("faucet", flag.ContinueOnError)
	token := fs.String("token", "", "collateral token symbol or address")
	amount := fs.String("amount", "", "amount to mint")
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	if *token == "" {
		return "", nil, errors.New("-token is required")
	}
	units, err := toBaseUnits(*amount, decimals)
	if err != nil {
		return "", nil, err
	}
	return "/api/tokens/" + *token + "/faucet", map[string]string{"amount": units}, nil
}

func account(ctx context.Context, args []string, g globals, out io.Writer) error {
	fs := flag.NewFlagSet("account", flag.ContinueOnError)
	address := fs.String("address", "", "account (defaults to the signing key's)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *address == "" {
		key, err := crypto.ResolveKey(crypto.KeySource{Hex: g.key, File: g.keyFile, Password: g.password})
		if err != nil {
			return fmt.Errorf("-address or a key is required: %w", err)
		}
		*address = ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	}
	if err := requireAddress("address", *address); err != nil {
		return err
	}
	resp, err := newClient(g.api, g.apiKey, nil).get(ctx, "/api/accounts/"+*address)
	if err != nil {
		return err
	}
	return printJSON(out, resp)
}

func keygen(args []string, g globals, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	file := fs.String("out", "", "write a sealed key file instead of printing the key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if *file == "" {
		fmt.Fprintf(out, "address: %s\nkey:     %s\n",
			ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
			hexutil.Encode(ethcrypto.FromECDSA(key)))
		return nil
	}
	return writeKeyFile(key, *file, g.password, out)
}

func sealKey(args []string, g globals, out io.Writer) error {
	fs := flag.NewFlagSet("seal-key", flag.ContinueOnError)
	file := fs.String("out", "", "key file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-out is required")
	}
	key, err := crypto.ParseKey(g.key)
	if err != nil {
		return err
	}
	return writeKeyFile(key, *file, g.password, out)
}

func writeKeyFile(key *ecdsa.PrivateKey, path, password string, out io.Writer) error {
	if password == "" {
		return errors.New("a -password is required to seal a key")
	}
	sealed, err := crypto.SealKey(key, password, crypto.DefaultIterations)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	fmt.Fprintf(out, "address: %s\nwrote:   %s\n", ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), path)
	return nil
}

func requireAddress(field, s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("-%s: %q is not an address", field, s)
	}
	return nil
}

func printJSON(out io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = out.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
