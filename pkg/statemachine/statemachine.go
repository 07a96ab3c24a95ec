// Package statemachine applies a single classified Operation to an
// entity's current state, producing the new entity row, a history row and
// the replacement annotation set. Every transition writes prev/new pairs
// onto the history row and handles the stale-update and
// annotation-deactivation edge cases alongside the steady-state path.
package statemachine

import (
	"fmt"
	"math/big"

	"github.com/golembase/indexer/pkg/indexererr"
	"github.com/golembase/indexer/pkg/types"
)

// Result bundles everything one operation produces: the entity's new row,
// the history entry to append, and the replacement annotation sets.
// ReplaceAnnotations marks whether StringAnnotations/NumericAnnotations are a
// real replacement set to persist, even an empty one; it is false for
// operations that leave the existing annotations untouched, and for a stale
// or frozen update that must not disturb them.
type Result struct {
	Entity             types.Entity
	History            types.EntityHistory
	StringAnnotations  []types.StringAnnotation
	NumericAnnotations []types.NumericAnnotation
	ReplaceAnnotations bool
}

// Apply transitions current (nil if no row exists yet) through op: create
// requires that no active entity exists under the key; update, delete,
// extend and change_owner require that the entity exists. An update that is
// out of order or arrives after the entity's expiration is recorded without
// changing data. Extend and change_owner do not check the entity's status,
// so they also apply to an expired or deleted entity.
func Apply(current *types.Entity, op types.Operation) (Result, error) {
	switch op.Kind {
	case types.OperationCreate:
		return applyCreate(current, op)
	case types.OperationUpdate:
		return applyUpdate(current, op)
	case types.OperationDelete:
		return applyDelete(current, op)
	case types.OperationExtend:
		return applyExtend(current, op)
	case types.OperationChangeOwner:
		return applyChangeOwner(current, op)
	default:
		return Result{}, fmt.Errorf("%w: unknown operation kind %q", indexererr.ErrMalformedInput, op.Kind)
	}
}

func applyCreate(current *types.Entity, op types.Operation) (Result, error) {
	if current != nil && current.Status == types.EntityStatusActive {
		return Result{}, fmt.Errorf("%w: create on already-active entity %s", indexererr.ErrStateViolation, op.EntityKey.Hex())
	}

	var btl uint64
	if op.BTL != nil {
		btl = *op.BTL
	}

	entity := types.Entity{
		Key:                  op.EntityKey,
		Owner:                op.Owner,
		Creator:              op.Sender,
		Data:                 op.Data,
		ContentType:          op.ContentType,
		Status:               types.EntityStatusActive,
		ExpiresAtBlockNumber: op.ExpiresAtBlockNumber,
		CreatedAtTxHash:      op.TransactionHash,
		CreatedAtOpIndex:     op.OpIndex,
		CreatedAtBlock:       op.BlockNumber,
		CreatedAtTimestamp:   op.BlockTimestamp,
		UpdatedAtTxHash:      op.TransactionHash,
		UpdatedAtOpIndex:     op.OpIndex,
		UpdatedAtBlock:       op.BlockNumber,
		UpdatedAtTimestamp:   op.BlockTimestamp,
		Cost:                 costOrZero(op.TotalCost),
	}

	hist := types.EntityHistory{
		EntityKey:            op.EntityKey,
		OpIndex:              op.OpIndex,
		Operation:            types.OperationCreate,
		Sender:               op.Sender,
		Owner:                op.Owner,
		BlockNumber:          op.BlockNumber,
		BlockHash:            op.BlockHash,
		TransactionHash:      op.TransactionHash,
		TxIndex:              op.TxIndex,
		BlockTimestamp:       op.BlockTimestamp,
		BTL:                  &btl,
		Data:                 op.Data,
		Status:               types.EntityStatusActive,
		ContentType:          op.ContentType,
		ExpiresAtBlockNumber: op.ExpiresAtBlockNumber,
		TotalCost:            costOrZero(op.TotalCost),
	}

	return Result{
		Entity:             entity,
		History:            hist,
		StringAnnotations:  op.StringAnnotations,
		NumericAnnotations: op.NumericAnnotations,
		ReplaceAnnotations: true,
	}, nil
}

func applyUpdate(current *types.Entity, op types.Operation) (Result, error) {
	if current == nil {
		return Result{}, fmt.Errorf("%w: update on absent entity %s", indexererr.ErrStateViolation, op.EntityKey.Hex())
	}

	hist := baseHistory(current, op, types.OperationUpdate)

	// Two distinct conditions freeze data/content-type instead of applying
	// the update normally: the update arrived out of order for a block
	// earlier than the entity's last modification, or the entity is already
	// past its expiration at op.BlockNumber even though the scheduler
	// hasn't yet materialized that expiry in this row (it runs after the
	// queues drain for the same block). Either way expires_at still moves
	// forward if the update's own extension would push it further out.
	outOfOrder := op.BlockNumber < current.UpdatedAtBlock
	expiredAtApply := current.ExpiresAtBlockNumber < op.BlockNumber
	if outOfOrder || expiredAtApply {
		next := *current
		next.UpdatedAtTxHash = op.TransactionHash
		next.UpdatedAtOpIndex = op.OpIndex
		next.UpdatedAtBlock = op.BlockNumber
		next.UpdatedAtTimestamp = op.BlockTimestamp
		next.Cost = addCost(current.Cost, op.TotalCost)
		if op.ExpiresAtBlockNumber > next.ExpiresAtBlockNumber {
			next.ExpiresAtBlockNumber = op.ExpiresAtBlockNumber
		}

		hist.Data = nil
		hist.Status = current.Status
		hist.ContentType = current.ContentType
		hist.ExpiresAtBlockNumber = next.ExpiresAtBlockNumber
		hist.TotalCost = costOrZero(op.TotalCost)

		return Result{Entity: next, History: hist}, nil
	}

	var btl uint64
	if op.BTL != nil {
		btl = *op.BTL
	}
	hist.BTL = &btl

	next := *current
	next.Data = op.Data
	next.ContentType = op.ContentType
	next.Status = types.EntityStatusActive
	next.ExpiresAtBlockNumber = op.ExpiresAtBlockNumber
	next.UpdatedAtTxHash = op.TransactionHash
	next.UpdatedAtOpIndex = op.OpIndex
	next.UpdatedAtBlock = op.BlockNumber
	next.UpdatedAtTimestamp = op.BlockTimestamp
	next.Cost = addCost(current.Cost, op.TotalCost)

	hist.Data = op.Data
	hist.Status = types.EntityStatusActive
	hist.ContentType = op.ContentType
	hist.ExpiresAtBlockNumber = op.ExpiresAtBlockNumber
	hist.TotalCost = costOrZero(op.TotalCost)

	return Result{
		Entity:             next,
		History:            hist,
		StringAnnotations:  op.StringAnnotations,
		NumericAnnotations: op.NumericAnnotations,
		ReplaceAnnotations: true,
	}, nil
}

func applyDelete(current *types.Entity, op types.Operation) (Result, error) {
	if current == nil {
		return Result{}, fmt.Errorf("%w: delete on absent entity %s", indexererr.ErrStateViolation, op.EntityKey.Hex())
	}

	// A nil op.Owner marks a system-initiated delete (housekeeping-log
	// match or scheduler-synthesized expiry), which lands the entity in
	// "expired" rather than the "deleted" a user-submitted delete produces.
	// The history row's owner is the entity's prior owner for a system
	// delete, since there is no new owner to record.
	status := types.EntityStatusDeleted
	histOwner := op.Owner
	if op.Owner == nil {
		status = types.EntityStatusExpired
		histOwner = current.Owner
	}

	hist := baseHistory(current, op, types.OperationDelete)
	hist.Owner = histOwner
	hist.Data = nil
	hist.Status = status
	hist.ExpiresAtBlockNumber = current.ExpiresAtBlockNumber

	next := *current
	next.Data = nil
	next.Status = status
	if op.Owner == nil {
		next.Owner = nil
	}
	next.UpdatedAtTxHash = op.TransactionHash
	next.UpdatedAtOpIndex = op.OpIndex
	next.UpdatedAtBlock = op.BlockNumber
	next.UpdatedAtTimestamp = op.BlockTimestamp

	// An empty replacement set deactivates every active annotation.
	return Result{Entity: next, History: hist, ReplaceAnnotations: true}, nil
}

func applyExtend(current *types.Entity, op types.Operation) (Result, error) {
	if current == nil {
		return Result{}, fmt.Errorf("%w: extend on absent entity %s", indexererr.ErrStateViolation, op.EntityKey.Hex())
	}

	// A user extend carries only NumberOfBlocks; housekeeping extends and
	// replayed history rows carry the resulting expiration directly.
	newExpires := op.ExpiresAtBlockNumber
	if newExpires == 0 {
		newExpires = current.ExpiresAtBlockNumber + op.NumberOfBlocks
	}

	hist := baseHistory(current, op, types.OperationExtend)
	hist.ExpiresAtBlockNumber = newExpires

	next := *current
	next.ExpiresAtBlockNumber = newExpires
	next.UpdatedAtTxHash = op.TransactionHash
	next.UpdatedAtOpIndex = op.OpIndex
	next.UpdatedAtBlock = op.BlockNumber
	next.UpdatedAtTimestamp = op.BlockTimestamp
	next.Cost = addCost(current.Cost, op.TotalCost)

	hist.TotalCost = costOrZero(op.TotalCost)

	return Result{Entity: next, History: hist}, nil
}

func applyChangeOwner(current *types.Entity, op types.Operation) (Result, error) {
	if current == nil {
		return Result{}, fmt.Errorf("%w: change_owner on absent entity %s", indexererr.ErrStateViolation, op.EntityKey.Hex())
	}

	hist := baseHistory(current, op, types.OperationChangeOwner)
	hist.ExpiresAtBlockNumber = current.ExpiresAtBlockNumber

	newOwner := op.NewOwner
	next := *current
	next.Owner = &newOwner
	next.UpdatedAtTxHash = op.TransactionHash
	next.UpdatedAtOpIndex = op.OpIndex
	next.UpdatedAtBlock = op.BlockNumber
	next.UpdatedAtTimestamp = op.BlockTimestamp
	next.Cost = addCost(current.Cost, op.TotalCost)

	hist.TotalCost = costOrZero(op.TotalCost)

	return Result{Entity: next, History: hist}, nil
}

// baseHistory seeds a history row's prev_* columns from the entity's
// current values; callers fill in the new-value columns.
func baseHistory(current *types.Entity, op types.Operation, kind types.OperationKind) types.EntityHistory {
	return types.EntityHistory{
		EntityKey:                op.EntityKey,
		OpIndex:                  op.OpIndex,
		Operation:                kind,
		Sender:                   op.Sender,
		Owner:                    op.Owner,
		BlockNumber:              op.BlockNumber,
		BlockHash:                op.BlockHash,
		TransactionHash:          op.TransactionHash,
		TxIndex:                  op.TxIndex,
		BlockTimestamp:           op.BlockTimestamp,
		PrevData:                 current.Data,
		PrevStatus:               current.Status,
		PrevContentType:          current.ContentType,
		PrevExpiresAtBlockNumber: current.ExpiresAtBlockNumber,
	}
}

func costOrZero(cost *big.Int) *big.Int {
	if cost == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(cost)
}

func addCost(base, delta *big.Int) *big.Int {
	sum := costOrZero(base)
	if delta != nil {
		sum.Add(sum, delta)
	}
	return sum
}
