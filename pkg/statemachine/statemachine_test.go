package statemachine

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golembase/indexer/pkg/types"
)

var (
	sender = common.HexToAddress("0x1")
	key    = common.HexToHash("0xabc")
)

func TestApplyCreate(t *testing.T) {
	btl := uint64(100)
	op := types.Operation{
		OpIndex:              1,
		Kind:                 types.OperationCreate,
		EntityKey:            key,
		Sender:               sender,
		Owner:                &sender,
		BlockNumber:          10,
		BlockTimestamp:       time.Unix(10, 0),
		BTL:                  &btl,
		ContentType:          "text/plain",
		Data:                 []byte("hello"),
		ExpiresAtBlockNumber: 110,
		StringAnnotations:    []types.StringAnnotation{{Key: "tag", Value: "a"}},
	}

	result, err := Apply(nil, op)
	require.NoError(t, err)

	assert.Equal(t, types.EntityStatusActive, result.Entity.Status)
	assert.Equal(t, []byte("hello"), result.Entity.Data)
	assert.Equal(t, uint64(110), result.Entity.ExpiresAtBlockNumber)
	assert.Equal(t, sender, result.Entity.Creator)
	assert.Equal(t, types.OperationCreate, result.History.Operation)
	assert.Empty(t, result.History.PrevStatus)
	assert.Len(t, result.StringAnnotations, 1)
	assert.True(t, result.ReplaceAnnotations)
}

func TestApplyCreateRejectsExistingActive(t *testing.T) {
	current := &types.Entity{Key: key, Status: types.EntityStatusActive}
	_, err := Apply(current, types.Operation{Kind: types.OperationCreate, EntityKey: key})
	assert.Error(t, err)
}

func TestApplyUpdate(t *testing.T) {
	current := &types.Entity{
		Key:                key,
		Status:             types.EntityStatusActive,
		Data:               []byte("old"),
		ContentType:        "text/plain",
		UpdatedAtBlock:     10,
		ExpiresAtBlockNumber: 110,
	}

	btl := uint64(50)
	op := types.Operation{
		OpIndex:              2,
		Kind:                 types.OperationUpdate,
		EntityKey:            key,
		BlockNumber:          20,
		BTL:                  &btl,
		Data:                 []byte("new"),
		ContentType:          "application/json",
		ExpiresAtBlockNumber: 70,
	}

	result, err := Apply(current, op)
	require.NoError(t, err)

	assert.Equal(t, []byte("new"), result.Entity.Data)
	assert.Equal(t, "application/json", result.Entity.ContentType)
	assert.Equal(t, uint64(70), result.Entity.ExpiresAtBlockNumber)
	assert.Equal(t, []byte("old"), result.History.PrevData)
	assert.Equal(t, uint64(110), result.History.PrevExpiresAtBlockNumber)
	assert.True(t, result.ReplaceAnnotations)
}

// TestApplyUpdateStaleFreezesData asserts that an update whose block
// precedes the entity's last-modified block must not change data or content
// type, and leaves an expiration that is later than the update's own in
// place, though it is still recorded in history.
func TestApplyUpdateStaleFreezesData(t *testing.T) {
	current := &types.Entity{
		Key:                  key,
		Status:               types.EntityStatusDeleted,
		Data:                 nil,
		ContentType:          "text/plain",
		UpdatedAtBlock:       2,
		ExpiresAtBlockNumber: 2,
	}

	op := types.Operation{
		OpIndex:     5,
		Kind:        types.OperationUpdate,
		EntityKey:   key,
		BlockNumber: 1,
		Data:        []byte("asd"),
	}

	result, err := Apply(current, op)
	require.NoError(t, err)

	assert.Nil(t, result.Entity.Data)
	assert.Equal(t, types.EntityStatusDeleted, result.Entity.Status)
	assert.Equal(t, uint64(2), result.Entity.ExpiresAtBlockNumber)
	assert.Nil(t, result.History.Data)
	assert.Equal(t, types.OperationUpdate, result.History.Operation)
	assert.False(t, result.ReplaceAnnotations)
}

// TestApplyUpdateExpiredAtApplyFreezesData asserts that an in-order update
// arriving after the entity's recorded expiration freezes data the same way
// a stale out-of-order update does, since the scheduler hasn't yet
// materialized the expiry for this block.
func TestApplyUpdateExpiredAtApplyFreezesData(t *testing.T) {
	current := &types.Entity{
		Key:                  key,
		Status:               types.EntityStatusActive,
		Data:                 []byte("old"),
		ContentType:          "text/plain",
		UpdatedAtBlock:       10,
		ExpiresAtBlockNumber: 15,
	}

	op := types.Operation{
		OpIndex:              6,
		Kind:                 types.OperationUpdate,
		EntityKey:            key,
		BlockNumber:          20,
		Data:                 []byte("new"),
		ExpiresAtBlockNumber: 25,
	}

	result, err := Apply(current, op)
	require.NoError(t, err)

	assert.Equal(t, []byte("old"), result.Entity.Data)
	assert.Equal(t, "text/plain", result.Entity.ContentType)
	assert.Equal(t, uint64(25), result.Entity.ExpiresAtBlockNumber, "expires_at still extends even while data stays frozen")
	assert.Nil(t, result.History.Data)
	assert.False(t, result.ReplaceAnnotations)
}

func TestApplyUpdateRejectsAbsentEntity(t *testing.T) {
	_, err := Apply(nil, types.Operation{Kind: types.OperationUpdate, EntityKey: key})
	assert.Error(t, err)
}

func TestApplyDeleteByUserSetsDeletedStatus(t *testing.T) {
	current := &types.Entity{
		Key:    key,
		Status: types.EntityStatusActive,
		Data:   []byte("data"),
		Owner:  &sender,
	}

	op := types.Operation{Kind: types.OperationDelete, EntityKey: key, BlockNumber: 30, Owner: &sender}
	result, err := Apply(current, op)
	require.NoError(t, err)

	assert.Equal(t, types.EntityStatusDeleted, result.Entity.Status)
	assert.Nil(t, result.Entity.Data)
	assert.Equal(t, &sender, result.History.Owner)
	assert.Equal(t, []byte("data"), result.History.PrevData)
}

func TestApplyDeleteBySystemSetsExpiredStatus(t *testing.T) {
	current := &types.Entity{
		Key:    key,
		Status: types.EntityStatusActive,
		Data:   []byte("data"),
		Owner:  &sender,
	}

	op := types.Operation{Kind: types.OperationDelete, EntityKey: key, BlockNumber: 30}
	result, err := Apply(current, op)
	require.NoError(t, err)

	assert.Equal(t, types.EntityStatusExpired, result.Entity.Status)
	assert.Nil(t, result.Entity.Data)
	assert.Equal(t, &sender, result.History.Owner, "system delete records the entity's prior owner on the history row")
	assert.Equal(t, []byte("data"), result.History.PrevData)
}

func TestApplyExtend(t *testing.T) {
	current := &types.Entity{Key: key, Status: types.EntityStatusActive, ExpiresAtBlockNumber: 100}
	op := types.Operation{Kind: types.OperationExtend, EntityKey: key, ExpiresAtBlockNumber: 200}

	result, err := Apply(current, op)
	require.NoError(t, err)

	assert.Equal(t, uint64(200), result.Entity.ExpiresAtBlockNumber)
	assert.Equal(t, uint64(100), result.History.PrevExpiresAtBlockNumber)
}

func TestApplyChangeOwner(t *testing.T) {
	newOwner := common.HexToAddress("0x2")
	current := &types.Entity{Key: key, Status: types.EntityStatusActive, Owner: &sender}
	op := types.Operation{Kind: types.OperationChangeOwner, EntityKey: key, NewOwner: newOwner}

	result, err := Apply(current, op)
	require.NoError(t, err)

	require.NotNil(t, result.Entity.Owner)
	assert.Equal(t, newOwner, *result.Entity.Owner)
}

func TestApplyUnknownKind(t *testing.T) {
	_, err := Apply(&types.Entity{Key: key}, types.Operation{Kind: "bogus", EntityKey: key})
	assert.Error(t, err)
}
