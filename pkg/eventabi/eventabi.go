// Package eventabi holds the well-known addresses and event-log topic
// hashes the classifier matches decoded operations against, deriving each
// topic hash from its event signature via crypto.Keccak256Hash.
package eventabi

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// L1BlockContractAddress receives the housekeeping transaction every
	// block carries.
	L1BlockContractAddress = common.HexToAddress("0x4200000000000000000000000000000000000015")

	// StorageProcessorAddress is the address storage transactions must be
	// sent to for their operations to be classified.
	StorageProcessorAddress = common.HexToAddress("0x0000000000000000000000000000000060138453")

	// HousekeepingSender is the privileged sender of the housekeeping
	// transaction that carries system-initiated expirations.
	HousekeepingSender = common.HexToAddress("0xdeaddeaddeaddeaddeaddeaddeaddeaddead0001")
)

// Topic hashes of the events emitted by the storage processor: the legacy
// GolemBase forms, keyed by a uint256 entity key, and the Arkiv forms, keyed
// by a bytes32 entity key, mirroring the dual log emission in the
// contract's Run().
var (
	EntityCreated     = crypto.Keccak256Hash([]byte("GolemBaseStorageEntityCreated(uint256,uint256)"))
	EntityUpdated     = crypto.Keccak256Hash([]byte("GolemBaseStorageEntityUpdated(uint256,uint256)"))
	EntityDeleted     = crypto.Keccak256Hash([]byte("GolemBaseStorageEntityDeleted(uint256)"))
	EntityBTLExtended = crypto.Keccak256Hash([]byte("GolemBaseStorageEntityBTLExtended(uint256,uint256,uint256)"))

	ArkivEntityCreated      = crypto.Keccak256Hash([]byte("ArkivEntityCreated(bytes32,address)"))
	ArkivEntityUpdated      = crypto.Keccak256Hash([]byte("ArkivEntityUpdated(bytes32,address)"))
	ArkivEntityDeleted      = crypto.Keccak256Hash([]byte("ArkivEntityDeleted(bytes32,address)"))
	ArkivEntityExpired      = crypto.Keccak256Hash([]byte("ArkivEntityExpired(bytes32,address)"))
	ArkivEntityBTLExtended  = crypto.Keccak256Hash([]byte("ArkivEntityBTLExtended(bytes32,uint256,uint256)"))
	ArkivEntityOwnerChanged = crypto.Keccak256Hash([]byte("ArkivEntityOwnerChanged(bytes32,address,address)"))
)

// AddressToTopic left-pads an address to a 32-byte log topic, matching how
// an indexed address parameter is encoded.
func AddressToTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// IsHousekeepingTx reports whether a transaction is the per-block
// housekeeping transaction that carries system-initiated expirations.
func IsHousekeepingTx(from, to common.Address) bool {
	return from == HousekeepingSender && to == L1BlockContractAddress
}

// IsStorageTx reports whether a transaction's recipient is the storage
// processor and its operations should be decoded and classified.
func IsStorageTx(to *common.Address) bool {
	return to != nil && *to == StorageProcessorAddress
}
