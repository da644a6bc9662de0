package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// aggregatorV3ABI is the subset of AggregatorV3Interface the feed calls.
const aggregatorV3ABI = `[
 {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"latestRoundData","outputs":[
  {"internalType":"uint80","name":"roundId","type":"uint80"},
  {"internalType":"int256","name":"answer","type":"int256"},
  {"internalType":"uint256","name":"startedAt","type":"uint256"},
  {"internalType":"uint256","name":"updatedAt","type":"uint256"},
  {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
  "stateMutability":"view","type":"function"}
]`

var aggregatorABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABI))
	if err != nil {
		panic(fmt.Sprintf("oracle: parse aggregator abi: %v", err))
	}
	return parsed
}()

// ChainlinkFeed reads an AggregatorV3 contract through eth_call.
// *ethclient.Client satisfies ethereum.ContractCaller.
type ChainlinkFeed struct {
	caller  ethereum.ContractCaller
	address common.Address
}

// NewChainlinkFeed creates a feed for the aggregator deployed at address.
func NewChainlinkFeed(caller ethereum.ContractCaller, address common.Address) *ChainlinkFeed {
	return &ChainlinkFeed{caller: caller, address: address}
}

// Address returns the aggregator contract address.
func (f *ChainlinkFeed) Address() common.Address { return f.address }

// LatestRoundData implements domain.PriceFeed.
func (f *ChainlinkFeed) LatestRoundData(ctx context.Context) (domain.RoundData, error) {
	vals, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return domain.RoundData{}, err
	}
	if len(vals) != 5 {
		return domain.RoundData{}, fmt.Errorf("chainlink: latestRoundData: expected 5 outputs, got %d", len(vals))
	}

	ints := make([]*big.Int, len(vals))
	for i, v := range vals {
		n, ok := v.(*big.Int)
		if !ok {
			return domain.RoundData{}, fmt.Errorf("chainlink: latestRoundData: output %d has type %T", i, v)
		}
		ints[i] = n
	}

	return domain.RoundData{
		RoundID:         ints[0],
		Answer:          ints[1],
		StartedAt:       time.Unix(ints[2].Int64(), 0).UTC(),
		UpdatedAt:       time.Unix(ints[3].Int64(), 0).UTC(),
		AnsweredInRound: ints[4],
	}, nil
}

// Decimals returns the number of decimals the aggregator reports answers in.
func (f *ChainlinkFeed) Decimals(ctx context.Context) (uint8, error) {
	vals, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("chainlink: decimals: expected 1 output, got %d", len(vals))
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chainlink: decimals: output has type %T", vals[0])
	}
	return d, nil
}

func (f *ChainlinkFeed) call(ctx context.Context, method string) ([]any, error) {
	input, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("chainlink: pack %s: %w", method, err)
	}
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &f.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainlink: call %s on %s: %w", method, f.address.Hex(), err)
	}
	vals, err := aggregatorABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chainlink: unpack %s: %w", method, err)
	}
	return vals, nil
}

var _ domain.PriceFeed = (*ChainlinkFeed)(nil)
