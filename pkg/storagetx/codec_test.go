package storagetx

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golembase/indexer/pkg/types"
)

func sampleTransaction() *types.StorageTransaction {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")

	return &types.StorageTransaction{
		Creates: []types.CreatePayload{
			{
				BTL:         100,
				ContentType: "application/json",
				Payload:     []byte(`{"hello":"world"}`),
				StringAnnotations: []types.StringAnnotation{
					{Key: "owner_tag", Value: "alice"},
				},
				NumericAnnotations: []types.NumericAnnotation{
					{Key: "version", Value: 1},
				},
			},
			{
				BTL: 50,
			},
		},
		Updates: []types.UpdatePayload{
			{
				EntityKey: common.HexToHash("0xaaaa"),
				CreatePayload: types.CreatePayload{
					BTL:         200,
					ContentType: "text/plain",
					Payload:     []byte("updated"),
				},
			},
		},
		Deletes: []types.EntityKey{common.HexToHash("0xbbbb")},
		Extends: []types.ExtendPayload{
			{EntityKey: common.HexToHash("0xcccc"), NumberOfBlocks: 1000},
		},
		ChangeOwners: []types.ChangeOwnerPayload{
			{EntityKey: common.HexToHash("0xdddd"), NewOwner: owner},
		},
	}
}

// TestEncodeDecodeRoundTrip checks the codec's round-trip property: decoding
// an encoded transaction must yield back the original operation batch.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleTransaction()

	encoded, err := Encode(original)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, original, decoded)
}

// TestDecodeEmptyTransaction checks that a transaction with no operations at
// all decodes to empty, non-nil slices rather than erroring.
func TestDecodeEmptyTransaction(t *testing.T) {
	empty := &types.StorageTransaction{}

	encoded, err := Encode(empty)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.Empty(t, decoded.Creates)
	assert.Empty(t, decoded.Updates)
	assert.Empty(t, decoded.Deletes)
	assert.Empty(t, decoded.Extends)
	assert.Empty(t, decoded.ChangeOwners)
}

// TestDecodeOmitsTrailingOptionalFields mirrors an older storage transaction
// that stops at the BTL field, leaving content type and annotations unset.
func TestDecodeOmitsTrailingOptionalFields(t *testing.T) {
	tx := &types.StorageTransaction{
		Creates: []types.CreatePayload{{BTL: 10}},
	}

	encoded, err := Encode(tx)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	require.Len(t, decoded.Creates, 1)
	assert.Equal(t, uint64(10), decoded.Creates[0].BTL)
	assert.Empty(t, decoded.Creates[0].ContentType)
	assert.Empty(t, decoded.Creates[0].Payload)
}

// TestDecodeRejectsOversizedPayload checks the decompression guard against a
// payload that claims to inflate past the size cap.
func TestDecodeRejectsOversizedPayload(t *testing.T) {
	huge := &types.StorageTransaction{
		Creates: []types.CreatePayload{
			{BTL: 1, Payload: make([]byte, maxDecompressedSize+1)},
		},
	}

	encoded, err := Encode(huge)
	require.NoError(t, err)

	_, err = Decode(encoded)
	assert.Error(t, err)
}

// TestDecodeRejectsGarbage checks that non-brotli, non-RLP input is reported
// as a decode error rather than panicking.
func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not a valid storage transaction"))
	assert.Error(t, err)
}

func TestEncodeLargeBatch(t *testing.T) {
	tx := &types.StorageTransaction{}
	for i := 0; i < 64; i++ {
		tx.Creates = append(tx.Creates, types.CreatePayload{
			BTL:         uint64(i + 1),
			ContentType: "application/octet-stream",
			Payload:     big.NewInt(int64(i)).Bytes(),
		})
	}

	encoded, err := Encode(tx)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Len(t, decoded.Creates, 64)
}
