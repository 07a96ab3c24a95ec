package eventabi

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestTopicsAreDistinct(t *testing.T) {
	topics := []common.Hash{
		EntityCreated, EntityUpdated, EntityDeleted, EntityBTLExtended,
		ArkivEntityCreated, ArkivEntityUpdated, ArkivEntityDeleted,
		ArkivEntityExpired, ArkivEntityBTLExtended, ArkivEntityOwnerChanged,
	}

	seen := make(map[common.Hash]bool, len(topics))
	for _, topic := range topics {
		assert.False(t, seen[topic], "topic %s collides with another", topic.Hex())
		seen[topic] = true
	}
}

func TestIsHousekeepingTx(t *testing.T) {
	assert.True(t, IsHousekeepingTx(HousekeepingSender, L1BlockContractAddress))
	assert.False(t, IsHousekeepingTx(common.Address{}, L1BlockContractAddress))
	assert.False(t, IsHousekeepingTx(HousekeepingSender, common.Address{}))
}

func TestIsStorageTx(t *testing.T) {
	assert.True(t, IsStorageTx(&StorageProcessorAddress))

	other := common.HexToAddress("0x1")
	assert.False(t, IsStorageTx(&other))
	assert.False(t, IsStorageTx(nil))
}

func TestAddressToTopic(t *testing.T) {
	addr := common.HexToAddress("0xabcdef0000000000000000000000000000000a")
	topic := AddressToTopic(addr)

	assert.Equal(t, addr.Bytes(), topic.Bytes()[12:])
	for _, b := range topic.Bytes()[:12] {
		assert.Equal(t, byte(0), b)
	}
}
