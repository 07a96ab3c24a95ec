package classifier

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golembase/indexer/pkg/eventabi"
	"github.com/golembase/indexer/pkg/storagetx"
	"github.com/golembase/indexer/pkg/types"
)

func expiresAtLogData(expiresAt uint64) []byte {
	data := make([]byte, 32)
	big.NewInt(int64(expiresAt)).FillBytes(data)
	return data
}

func TestClassifyStorageTxOrdersOperations(t *testing.T) {
	sender := common.HexToAddress("0x1")
	recipient := eventabi.StorageProcessorAddress
	entityKey := common.HexToHash("0xcafe")

	tx := storagetx.Encode
	input, err := tx(&types.StorageTransaction{
		Creates: []types.CreatePayload{{BTL: 100, ContentType: "text/plain", Payload: []byte("hi")}},
		Updates: []types.UpdatePayload{
			{EntityKey: entityKey, CreatePayload: types.CreatePayload{BTL: 50, Payload: []byte("bye")}},
		},
		Deletes: []types.EntityKey{common.HexToHash("0xdead")},
		Extends: []types.ExtendPayload{{EntityKey: entityKey, NumberOfBlocks: 10}},
		ChangeOwners: []types.ChangeOwnerPayload{
			{EntityKey: entityKey, NewOwner: common.HexToAddress("0x2")},
		},
	})
	require.NoError(t, err)

	createdKey := common.HexToHash("0xbeef")
	confirmed := ConfirmedTx{
		Hash:           common.HexToHash("0x99"),
		From:           sender,
		To:             &recipient,
		BlockNumber:    42,
		BlockHash:      common.HexToHash("0x42"),
		BlockTimestamp: time.Unix(1000, 0),
		TxIndex:        3,
		Input:          input,
		Logs: []Log{
			{Topics: []common.Hash{eventabi.ArkivEntityCreated, createdKey, common.Hash{}}, Data: expiresAtLogData(142)},
		},
	}

	ops, err := ClassifyStorageTx(confirmed, 7)
	require.NoError(t, err)
	require.Len(t, ops, 5)

	kinds := make([]types.OperationKind, len(ops))
	for i, op := range ops {
		kinds[i] = op.Kind
	}
	assert.Equal(t, []types.OperationKind{
		types.OperationCreate, types.OperationUpdate, types.OperationDelete,
		types.OperationExtend, types.OperationChangeOwner,
	}, kinds)

	assert.Equal(t, int64(7), ops[0].OpIndex)
	assert.Equal(t, int64(11), ops[4].OpIndex)
	assert.Equal(t, createdKey, ops[0].EntityKey)
	assert.Equal(t, uint64(142), ops[0].ExpiresAtBlockNumber)
	assert.Equal(t, entityKey, ops[1].EntityKey)
	assert.Equal(t, common.HexToHash("0xdead"), ops[2].EntityKey)
	assert.Equal(t, uint64(10), ops[3].NumberOfBlocks)
	assert.Equal(t, common.HexToAddress("0x2"), ops[4].NewOwner)
}

func TestClassifyStorageTxRejectsWrongRecipient(t *testing.T) {
	other := common.HexToAddress("0x1234")
	_, err := ClassifyStorageTx(ConfirmedTx{To: &other}, 0)
	assert.Error(t, err)
}

func TestClassifyStorageTxRequiresMatchingCreatedLogs(t *testing.T) {
	recipient := eventabi.StorageProcessorAddress
	input, err := storagetx.Encode(&types.StorageTransaction{
		Creates: []types.CreatePayload{{BTL: 1}},
	})
	require.NoError(t, err)

	_, err = ClassifyStorageTx(ConfirmedTx{To: &recipient, Input: input}, 0)
	assert.ErrorContains(t, err, "EntityCreated")
}

func TestClassifyHousekeepingLogs(t *testing.T) {
	tx := ConfirmedTx{
		From:        eventabi.HousekeepingSender,
		To:          &eventabi.L1BlockContractAddress,
		BlockNumber: 100,
		Logs: []Log{
			{Topics: []common.Hash{eventabi.ArkivEntityExpired, common.HexToHash("0xaaa")}},
			{
				Topics: []common.Hash{eventabi.ArkivEntityBTLExtended, common.HexToHash("0xbbb")},
				Data:   append(expiresAtLogData(100), expiresAtLogData(200)...),
			},
		},
	}

	ops, err := ClassifyHousekeepingLogs(tx, 5)
	require.NoError(t, err)
	require.Len(t, ops, 2)

	assert.Equal(t, types.OperationDelete, ops[0].Kind)
	assert.Equal(t, common.HexToHash("0xaaa"), ops[0].EntityKey)
	assert.Equal(t, int64(5), ops[0].OpIndex)

	assert.Equal(t, types.OperationExtend, ops[1].Kind)
	assert.Equal(t, uint64(100), ops[1].NumberOfBlocks)
	assert.Equal(t, uint64(200), ops[1].ExpiresAtBlockNumber)
}

func TestClassifyHousekeepingLogsRejectsNonHousekeepingSender(t *testing.T) {
	other := common.HexToAddress("0x1")
	_, err := ClassifyHousekeepingLogs(ConfirmedTx{From: other, To: &eventabi.L1BlockContractAddress}, 0)
	assert.Error(t, err)
}
