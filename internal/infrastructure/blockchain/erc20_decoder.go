package blockchain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"crypto-flow-forensics/internal/domain/entity"
	"crypto-flow-forensics/internal/domain/service"
	"crypto-flow-forensics/internal/infrastructure/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	NativeCurrency  = "ETH"
	DefaultDecimals = 18
)

const erc20ABIJSON = `[
	{
		"constant": false,
		"inputs": [
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_from", "type": "address"},
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transferFrom",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid ERC20 ABI: %v", err))
	}
	return parsed
}

// ErrInvalidAddress is returned for events whose sender is not a hex address
var ErrInvalidAddress = errors.New("invalid address")

// EthereumTransferDecoder turns raw Ethereum transactions into ledger
// transfers: the native value moved, plus a token transfer when the calldata
// is an ERC20 transfer or transferFrom call.
type EthereumTransferDecoder struct {
	mu       sync.RWMutex
	decimals map[string]int32 // token contract -> decimals
	logger   *logger.Logger
}

// NewEthereumTransferDecoder creates a decoder assuming 18 decimals for unregistered tokens
func NewEthereumTransferDecoder(logger *logger.Logger) *EthereumTransferDecoder {
	return &EthereumTransferDecoder{
		decimals: make(map[string]int32),
		logger:   logger.WithComponent("transfer-decoder"),
	}
}

var _ service.TransferDecoder = (*EthereumTransferDecoder)(nil)

// RegisterToken records the decimals of a token contract
func (d *EthereumTransferDecoder) RegisterToken(contract string, decimals int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decimals[normalizeAddress(contract)] = decimals
}

// Decode returns the transfers carried by tx
func (d *EthereumTransferDecoder) Decode(tx *entity.ChainTransaction) ([]entity.Transaction, error) {
	if !common.IsHexAddress(tx.From) {
		return nil, fmt.Errorf("%w: from %q in tx %s", ErrInvalidAddress, tx.From, tx.Hash)
	}
	from := normalizeAddress(tx.From)

	var transfers []entity.Transaction

	if tx.To != "" && common.IsHexAddress(tx.To) {
		value, err := parseValue(tx.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse value of tx %s: %w", tx.Hash, err)
		}
		if value.Sign() > 0 {
			transfers = append(transfers, entity.Transaction{
				ID:          tx.Hash,
				Timestamp:   tx.Timestamp.UTC(),
				FromAddress: from,
				ToAddress:   normalizeAddress(tx.To),
				Amount:      toAmount(value, DefaultDecimals),
				Currency:    NativeCurrency,
				Kind:        entity.TransactionKindNative,
				Chain:       tx.Network,
			})
		}
	}

	token, ok, err := d.decodeTokenTransfer(tx, from)
	if err != nil {
		d.logger.Debug("Calldata is not a decodable ERC20 transfer",
			zap.String("tx_hash", tx.Hash),
			zap.Error(err))
	} else if ok {
		transfers = append(transfers, token)
	}

	return transfers, nil
}

// decodeTokenTransfer unpacks transfer/transferFrom calldata with the ERC20 ABI.
// ok is false for calldata that calls anything else.
func (d *EthereumTransferDecoder) decodeTokenTransfer(tx *entity.ChainTransaction, sender string) (entity.Transaction, bool, error) {
	if tx.Data == "" || tx.Data == "0x" || !common.IsHexAddress(tx.To) {
		return entity.Transaction{}, false, nil
	}

	data, err := hexutil.Decode(tx.Data)
	if err != nil {
		return entity.Transaction{}, false, fmt.Errorf("failed to decode calldata: %w", err)
	}
	if len(data) < 4 {
		return entity.Transaction{}, false, nil
	}

	method, err := erc20ABI.MethodById(data[:4])
	if err != nil {
		return entity.Transaction{}, false, nil
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return entity.Transaction{}, false, fmt.Errorf("failed to unpack %s arguments: %w", method.Name, err)
	}

	from := sender
	var to common.Address
	var value *big.Int
	switch method.Name {
	case "transfer":
		to, _ = args[0].(common.Address)
		value, _ = args[1].(*big.Int)
	case "transferFrom":
		holder, _ := args[0].(common.Address)
		from = normalizeAddress(holder.Hex())
		to, _ = args[1].(common.Address)
		value, _ = args[2].(*big.Int)
	}
	if value == nil {
		return entity.Transaction{}, false, fmt.Errorf("%s call has no value", method.Name)
	}

	contract := normalizeAddress(tx.To)
	return entity.Transaction{
		ID:          tx.Hash + ":erc20",
		Timestamp:   tx.Timestamp.UTC(),
		FromAddress: from,
		ToAddress:   normalizeAddress(to.Hex()),
		Amount:      toAmount(value, d.tokenDecimals(contract)),
		Currency:    contract,
		Kind:        entity.TransactionKindERC20,
		Chain:       tx.Network,
	}, true, nil
}

func (d *EthereumTransferDecoder) tokenDecimals(contract string) int32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if decimals, ok := d.decimals[contract]; ok {
		return decimals
	}
	return DefaultDecimals
}

// parseValue accepts decimal or 0x-prefixed hex wei; empty means zero
func parseValue(value string) (*big.Int, error) {
	switch {
	case value == "":
		return new(big.Int), nil
	case strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X"):
		return hexutil.DecodeBig(value)
	default:
		v, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("not a number: %q", value)
		}
		return v, nil
	}
}

// toAmount converts base units to a float amount
func toAmount(value *big.Int, decimals int32) float64 {
	amount, _ := decimal.NewFromBigInt(value, 0).Shift(-decimals).Float64()
	return amount
}

func normalizeAddress(address string) string {
	return strings.ToLower(common.HexToAddress(address).Hex())
}
