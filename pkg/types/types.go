// Package types holds the shared domain model for the Golem Base / Arkiv
// entity indexer: entities, their history, operations and annotations.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EntityKey is the 32-byte identifier of a storage entity.
type EntityKey = common.Hash

// EntityStatus is the lifecycle state of an entity.
type EntityStatus string

const (
	EntityStatusActive  EntityStatus = "active"
	EntityStatusExpired EntityStatus = "expired"
	EntityStatusDeleted EntityStatus = "deleted"
)

// Entity is the current, materialized state of a storage object.
type Entity struct {
	Key                 EntityKey
	Owner               *common.Address // nil when deleted by the system
	Creator             common.Address
	Data                []byte // nil when expired or deleted
	ContentType         string
	Status              EntityStatus
	ExpiresAtBlockNumber uint64

	CreatedAtTxHash     common.Hash
	CreatedAtOpIndex    int64
	CreatedAtBlock      uint64
	CreatedAtTimestamp  time.Time

	UpdatedAtTxHash    common.Hash
	UpdatedAtOpIndex   int64
	UpdatedAtBlock     uint64
	UpdatedAtTimestamp time.Time

	Cost *big.Int // cumulative wei-scale cost, precision 100
}

// OperationKind tags the logical effect of one operation.
type OperationKind string

const (
	OperationCreate      OperationKind = "create"
	OperationUpdate      OperationKind = "update"
	OperationDelete      OperationKind = "delete"
	OperationExtend      OperationKind = "extend"
	OperationChangeOwner OperationKind = "change_owner"
)

// EntityHistory is one append-only row in an entity's immutable log,
// keyed by (entity_key, op_index).
type EntityHistory struct {
	EntityKey EntityKey
	OpIndex   int64

	Operation OperationKind
	Sender    common.Address
	Owner     *common.Address // nil for system-initiated extends; a system delete records the prior owner

	BlockNumber     uint64
	BlockHash       common.Hash
	TransactionHash common.Hash
	TxIndex         uint64
	BlockTimestamp  time.Time

	BTL *uint64

	Data     []byte
	PrevData []byte

	Status     EntityStatus
	PrevStatus EntityStatus

	ContentType     string
	PrevContentType string

	ExpiresAtBlockNumber     uint64
	PrevExpiresAtBlockNumber uint64

	TotalCost *big.Int
}

// StringAnnotation is a string-valued key/value pair bound to an operation.
type StringAnnotation struct {
	EntityKey EntityKey
	OpIndex   int64
	Key       string
	Value     string
	Active    bool
}

// NumericAnnotation is a numeric-valued key/value pair bound to an operation.
type NumericAnnotation struct {
	EntityKey EntityKey
	OpIndex   int64
	Key       string
	Value     uint64
	Active    bool
}

// CreatePayload carries the fields of a create operation decoded from a
// storage transaction.
type CreatePayload struct {
	BTL                uint64
	ContentType        string
	Payload            []byte
	StringAnnotations  []StringAnnotation
	NumericAnnotations []NumericAnnotation
}

// UpdatePayload extends CreatePayload with the target entity key.
type UpdatePayload struct {
	EntityKey EntityKey
	CreatePayload
}

// ExtendPayload carries a BTL-extension request.
type ExtendPayload struct {
	EntityKey      EntityKey
	NumberOfBlocks uint64
}

// ChangeOwnerPayload carries an ownership transfer request.
type ChangeOwnerPayload struct {
	EntityKey EntityKey
	NewOwner  common.Address
}

// StorageTransaction is the decoded operation batch carried by the input of
// a transaction addressed to the storage-processor contract.
type StorageTransaction struct {
	Creates      []CreatePayload
	Updates      []UpdatePayload
	Deletes      []EntityKey
	Extends      []ExtendPayload
	ChangeOwners []ChangeOwnerPayload
}

// Operation is one logical effect classified out of a confirmed transaction,
// with full block/tx context and an assigned global op_index.
type Operation struct {
	OpIndex         int64
	Kind            OperationKind
	EntityKey       EntityKey
	Sender          common.Address
	Recipient       common.Address
	Owner           *common.Address // nil for system-initiated delete
	BlockNumber     uint64
	BlockHash       common.Hash
	TransactionHash common.Hash
	TxIndex         uint64
	BlockTimestamp  time.Time

	ContentType string
	Data        []byte
	BTL         *uint64

	StringAnnotations  []StringAnnotation
	NumericAnnotations []NumericAnnotation

	// ExpiresAtBlockNumber is the new expiration for create and update
	// operations (a create takes it from its EntityCreated log when the log
	// carries one) and for housekeeping extends. A user extend leaves it
	// zero and carries NumberOfBlocks instead.
	ExpiresAtBlockNumber uint64

	// NewOwner is set for change_owner operations.
	NewOwner common.Address

	// NumberOfBlocks is set for extend operations.
	NumberOfBlocks uint64

	TotalCost *big.Int
}

// PendingTxOp references a confirmed transaction awaiting classification.
type PendingTxOp struct {
	BlockHash       common.Hash
	BlockNumber     uint64
	TransactionHash common.Hash
	TxIndex         uint64
}

// PendingLogOp references a housekeeping-transaction log awaiting
// reconciliation.
type PendingLogOp struct {
	BlockHash       common.Hash
	BlockNumber     uint64
	TransactionHash common.Hash
	LogIndex        uint64
}
