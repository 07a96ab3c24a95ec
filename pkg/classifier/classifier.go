// Package classifier turns a confirmed transaction plus its logs into an
// ordered sequence of Operations. Create operations are matched positionally
// against their logs; system-initiated deletes and extensions are recovered
// by walking the housekeeping transaction's log set.
package classifier

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/golembase/indexer/pkg/eventabi"
	"github.com/golembase/indexer/pkg/indexererr"
	"github.com/golembase/indexer/pkg/storagetx"
	"github.com/golembase/indexer/pkg/types"
)

// Log is the minimal shape of an event log the classifier needs: its topics
// and ABI-encoded data, positioned within the block.
type Log struct {
	Topics []common.Hash
	Data   []byte
	Index  uint64
}

// ConfirmedTx is a confirmed transaction together with the logs its receipt
// carries, as read from the upstream chain-ingestor tables.
type ConfirmedTx struct {
	Hash           common.Hash
	From           common.Address
	To             *common.Address
	BlockNumber    uint64
	BlockHash      common.Hash
	BlockTimestamp time.Time
	TxIndex        uint64
	Input          []byte
	Logs           []Log
}

// ClassifyStorageTx decodes a user storage transaction and emits operations
// in the order creates, updates, deletes, extensions, change_owners,
// assigning op_index sequentially starting at nextOpIndex.
func ClassifyStorageTx(tx ConfirmedTx, nextOpIndex int64) ([]types.Operation, error) {
	if tx.To == nil || !eventabi.IsStorageTx(tx.To) {
		return nil, fmt.Errorf("%w: recipient is not the storage processor", indexererr.ErrMalformedInput)
	}

	decoded, err := storagetx.Decode(tx.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", indexererr.ErrMalformedInput, err)
	}

	createdLogs := filterLogs(tx.Logs, eventabi.ArkivEntityCreated)
	if len(createdLogs) < len(decoded.Creates) {
		return nil, fmt.Errorf("%w: expected %d EntityCreated logs, found %d",
			indexererr.ErrMalformedInput, len(decoded.Creates), len(createdLogs))
	}

	ops := make([]types.Operation, 0, len(decoded.Creates)+len(decoded.Updates)+
		len(decoded.Deletes)+len(decoded.Extends)+len(decoded.ChangeOwners))
	opIndex := nextOpIndex

	for i, c := range decoded.Creates {
		key := common.Hash(createdLogs[i].Topics[1])
		expiresAt := tx.BlockNumber + c.BTL
		if len(createdLogs[i].Data) >= 32 {
			expiresAt = expiresAtFromLog(createdLogs[i].Data[:32], expiresAt)
		}

		btl := c.BTL
		ops = append(ops, types.Operation{
			OpIndex:              opIndex,
			Kind:                 types.OperationCreate,
			EntityKey:            key,
			Sender:               tx.From,
			Recipient:            *tx.To,
			Owner:                &tx.From,
			BlockNumber:          tx.BlockNumber,
			BlockHash:            tx.BlockHash,
			TransactionHash:      tx.Hash,
			TxIndex:              tx.TxIndex,
			BlockTimestamp:       tx.BlockTimestamp,
			ContentType:          c.ContentType,
			Data:                 c.Payload,
			BTL:                  &btl,
			StringAnnotations:    c.StringAnnotations,
			NumericAnnotations:   c.NumericAnnotations,
			ExpiresAtBlockNumber: expiresAt,
		})
		opIndex++
	}

	for _, u := range decoded.Updates {
		expiresAt := tx.BlockNumber + u.BTL
		btl := u.BTL
		ops = append(ops, types.Operation{
			OpIndex:              opIndex,
			Kind:                 types.OperationUpdate,
			EntityKey:            u.EntityKey,
			Sender:               tx.From,
			Recipient:            *tx.To,
			Owner:                &tx.From,
			BlockNumber:          tx.BlockNumber,
			BlockHash:            tx.BlockHash,
			TransactionHash:      tx.Hash,
			TxIndex:              tx.TxIndex,
			BlockTimestamp:       tx.BlockTimestamp,
			ContentType:          u.ContentType,
			Data:                 u.Payload,
			BTL:                  &btl,
			StringAnnotations:    u.StringAnnotations,
			NumericAnnotations:   u.NumericAnnotations,
			ExpiresAtBlockNumber: expiresAt,
		})
		opIndex++
	}

	for _, d := range decoded.Deletes {
		ops = append(ops, types.Operation{
			OpIndex:         opIndex,
			Kind:            types.OperationDelete,
			EntityKey:       d,
			Sender:          tx.From,
			Recipient:       *tx.To,
			Owner:           &tx.From,
			BlockNumber:     tx.BlockNumber,
			BlockHash:       tx.BlockHash,
			TransactionHash: tx.Hash,
			TxIndex:         tx.TxIndex,
			BlockTimestamp:  tx.BlockTimestamp,
		})
		opIndex++
	}

	for _, e := range decoded.Extends {
		ops = append(ops, types.Operation{
			OpIndex:         opIndex,
			Kind:            types.OperationExtend,
			EntityKey:       e.EntityKey,
			Sender:          tx.From,
			Recipient:       *tx.To,
			Owner:           &tx.From,
			BlockNumber:     tx.BlockNumber,
			BlockHash:       tx.BlockHash,
			TransactionHash: tx.Hash,
			TxIndex:         tx.TxIndex,
			BlockTimestamp:  tx.BlockTimestamp,
			NumberOfBlocks:  e.NumberOfBlocks,
		})
		opIndex++
	}

	for _, co := range decoded.ChangeOwners {
		ops = append(ops, types.Operation{
			OpIndex:         opIndex,
			Kind:            types.OperationChangeOwner,
			EntityKey:       co.EntityKey,
			Sender:          tx.From,
			Recipient:       *tx.To,
			Owner:           &co.NewOwner,
			BlockNumber:     tx.BlockNumber,
			BlockHash:       tx.BlockHash,
			TransactionHash: tx.Hash,
			TxIndex:         tx.TxIndex,
			BlockTimestamp:  tx.BlockTimestamp,
			NewOwner:        co.NewOwner,
		})
		opIndex++
	}

	return ops, nil
}

// ClassifyHousekeepingLogs walks the logs of the per-block housekeeping
// transaction, producing a system-initiated delete for every EntityDeleted
// (or ArkivEntityExpired) topic and an extend for every BTLExtended topic
// emitted without a corresponding storage-tx.
func ClassifyHousekeepingLogs(tx ConfirmedTx, nextOpIndex int64) ([]types.Operation, error) {
	if tx.To == nil || !eventabi.IsHousekeepingTx(tx.From, *tx.To) {
		return nil, fmt.Errorf("%w: not a housekeeping transaction", indexererr.ErrMalformedInput)
	}

	ops := make([]types.Operation, 0, len(tx.Logs))
	opIndex := nextOpIndex

	for _, l := range tx.Logs {
		if len(l.Topics) == 0 {
			continue
		}

		switch l.Topics[0] {
		case eventabi.EntityDeleted, eventabi.ArkivEntityExpired:
			if len(l.Topics) < 2 {
				continue
			}
			ops = append(ops, types.Operation{
				OpIndex:         opIndex,
				Kind:            types.OperationDelete,
				EntityKey:       l.Topics[1],
				Sender:          tx.From,
				BlockNumber:     tx.BlockNumber,
				BlockHash:       tx.BlockHash,
				TransactionHash: tx.Hash,
				TxIndex:         tx.TxIndex,
				BlockTimestamp:  tx.BlockTimestamp,
			})
			opIndex++

		case eventabi.EntityBTLExtended, eventabi.ArkivEntityBTLExtended:
			if len(l.Topics) < 2 || len(l.Data) < 64 {
				continue
			}
			oldExpires := expiresAtFromLog(l.Data[:32], 0)
			newExpires := expiresAtFromLog(l.Data[32:64], 0)
			ops = append(ops, types.Operation{
				OpIndex:              opIndex,
				Kind:                 types.OperationExtend,
				EntityKey:            l.Topics[1],
				Sender:               tx.From,
				BlockNumber:          tx.BlockNumber,
				BlockHash:            tx.BlockHash,
				TransactionHash:      tx.Hash,
				TxIndex:              tx.TxIndex,
				BlockTimestamp:       tx.BlockTimestamp,
				NumberOfBlocks:       newExpires - oldExpires,
				ExpiresAtBlockNumber: newExpires,
			})
			opIndex++
		}
	}

	return ops, nil
}

func filterLogs(logs []Log, topic common.Hash) []Log {
	var out []Log
	for _, l := range logs {
		if len(l.Topics) > 0 && l.Topics[0] == topic {
			out = append(out, l)
		}
	}
	return out
}

func expiresAtFromLog(data []byte, fallback uint64) uint64 {
	v := new(big.Int).SetBytes(data)
	if !v.IsUint64() {
		return fallback
	}
	return v.Uint64()
}
