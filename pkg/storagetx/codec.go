// Package storagetx decodes and encodes the storage-transaction wire
// format carried in the input of transactions addressed to the
// storage-processor contract: brotli-compressed, RLP-encoded operation
// batches.
package storagetx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/golembase/indexer/pkg/types"
)

// maxDecompressedSize bounds the brotli output so a hostile or corrupt
// payload cannot exhaust memory during decode.
const maxDecompressedSize = 20 * 1024 * 1024

// wireStringAnnotation and wireNumericAnnotation are the RLP shapes of
// annotation key/value pairs; they carry no "active" bit, which is a
// repository-side concept applied once an operation is classified.
type wireStringAnnotation struct {
	Key   string
	Value string
}

type wireNumericAnnotation struct {
	Key   string
	Value uint64
}

// wireCreate mirrors Create's documented RLP trailing-optional semantics:
// older transactions may omit content type and annotation lists.
type wireCreate struct {
	BTL                uint64
	ContentType        string                  `rlp:"optional"`
	Payload            []byte                  `rlp:"optional"`
	StringAnnotations  []wireStringAnnotation  `rlp:"optional"`
	NumericAnnotations []wireNumericAnnotation `rlp:"optional"`
}

// wireUpdate extends wireCreate with the target entity key.
type wireUpdate struct {
	EntityKey          common.Hash
	BTL                uint64
	ContentType        string                  `rlp:"optional"`
	Payload            []byte                  `rlp:"optional"`
	StringAnnotations  []wireStringAnnotation  `rlp:"optional"`
	NumericAnnotations []wireNumericAnnotation `rlp:"optional"`
}

type wireExtend struct {
	EntityKey      common.Hash
	NumberOfBlocks uint64
}

type wireChangeOwner struct {
	EntityKey common.Hash
	NewOwner  common.Address
}

// wireTransaction is the exact RLP shape of a storage transaction:
// {creates[], updates[], deletes[], extensions[], change_owners[]}.
type wireTransaction struct {
	Creates      []wireCreate
	Updates      []wireUpdate
	Deletes      []common.Hash
	Extends      []wireExtend
	ChangeOwners []wireChangeOwner
}

// Decode reverses the wire format: brotli-decompress, then RLP-decode into
// a typed operation batch.
func Decode(input []byte) (*types.StorageTransaction, error) {
	reader := brotli.NewReader(bytes.NewReader(input))
	decompressed, err := io.ReadAll(io.LimitReader(reader, maxDecompressedSize))
	if err != nil {
		return nil, fmt.Errorf("brotli decompress: %w", err)
	}

	var wire wireTransaction
	if err := rlp.DecodeBytes(decompressed, &wire); err != nil {
		return nil, fmt.Errorf("rlp decode: %w", err)
	}

	return fromWire(&wire), nil
}

// Encode is Decode's inverse: RLP-encode then brotli-compress.
func Encode(tx *types.StorageTransaction) ([]byte, error) {
	wire := toWire(tx)

	rlpBytes, err := rlp.EncodeToBytes(wire)
	if err != nil {
		return nil, fmt.Errorf("rlp encode: %w", err)
	}

	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(rlpBytes); err != nil {
		return nil, fmt.Errorf("brotli compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli compress: %w", err)
	}

	return buf.Bytes(), nil
}

func fromWire(wire *wireTransaction) *types.StorageTransaction {
	tx := &types.StorageTransaction{
		Creates:      make([]types.CreatePayload, len(wire.Creates)),
		Updates:      make([]types.UpdatePayload, len(wire.Updates)),
		Deletes:      make([]types.EntityKey, len(wire.Deletes)),
		Extends:      make([]types.ExtendPayload, len(wire.Extends)),
		ChangeOwners: make([]types.ChangeOwnerPayload, len(wire.ChangeOwners)),
	}

	for i, c := range wire.Creates {
		tx.Creates[i] = types.CreatePayload{
			BTL:                c.BTL,
			ContentType:        c.ContentType,
			Payload:            c.Payload,
			StringAnnotations:  fromWireStringAnnotations(c.StringAnnotations),
			NumericAnnotations: fromWireNumericAnnotations(c.NumericAnnotations),
		}
	}

	for i, u := range wire.Updates {
		tx.Updates[i] = types.UpdatePayload{
			EntityKey: u.EntityKey,
			CreatePayload: types.CreatePayload{
				BTL:                u.BTL,
				ContentType:        u.ContentType,
				Payload:            u.Payload,
				StringAnnotations:  fromWireStringAnnotations(u.StringAnnotations),
				NumericAnnotations: fromWireNumericAnnotations(u.NumericAnnotations),
			},
		}
	}

	copy(tx.Deletes, wire.Deletes)

	for i, e := range wire.Extends {
		tx.Extends[i] = types.ExtendPayload{
			EntityKey:      e.EntityKey,
			NumberOfBlocks: e.NumberOfBlocks,
		}
	}

	for i, co := range wire.ChangeOwners {
		tx.ChangeOwners[i] = types.ChangeOwnerPayload{
			EntityKey: co.EntityKey,
			NewOwner:  co.NewOwner,
		}
	}

	return tx
}

func toWire(tx *types.StorageTransaction) *wireTransaction {
	wire := &wireTransaction{
		Creates:      make([]wireCreate, len(tx.Creates)),
		Updates:      make([]wireUpdate, len(tx.Updates)),
		Deletes:      make([]common.Hash, len(tx.Deletes)),
		Extends:      make([]wireExtend, len(tx.Extends)),
		ChangeOwners: make([]wireChangeOwner, len(tx.ChangeOwners)),
	}

	for i, c := range tx.Creates {
		wire.Creates[i] = wireCreate{
			BTL:                c.BTL,
			ContentType:        c.ContentType,
			Payload:            c.Payload,
			StringAnnotations:  toWireStringAnnotations(c.StringAnnotations),
			NumericAnnotations: toWireNumericAnnotations(c.NumericAnnotations),
		}
	}

	for i, u := range tx.Updates {
		wire.Updates[i] = wireUpdate{
			EntityKey:          u.EntityKey,
			BTL:                u.BTL,
			ContentType:        u.ContentType,
			Payload:            u.Payload,
			StringAnnotations:  toWireStringAnnotations(u.StringAnnotations),
			NumericAnnotations: toWireNumericAnnotations(u.NumericAnnotations),
		}
	}

	copy(wire.Deletes, tx.Deletes)

	for i, e := range tx.Extends {
		wire.Extends[i] = wireExtend{EntityKey: e.EntityKey, NumberOfBlocks: e.NumberOfBlocks}
	}

	for i, co := range tx.ChangeOwners {
		wire.ChangeOwners[i] = wireChangeOwner{EntityKey: co.EntityKey, NewOwner: co.NewOwner}
	}

	return wire
}

func fromWireStringAnnotations(in []wireStringAnnotation) []types.StringAnnotation {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.StringAnnotation, len(in))
	for i, a := range in {
		out[i] = types.StringAnnotation{Key: a.Key, Value: a.Value}
	}
	return out
}

func toWireStringAnnotations(in []types.StringAnnotation) []wireStringAnnotation {
	if len(in) == 0 {
		return nil
	}
	out := make([]wireStringAnnotation, len(in))
	for i, a := range in {
		out[i] = wireStringAnnotation{Key: a.Key, Value: a.Value}
	}
	return out
}

func fromWireNumericAnnotations(in []wireNumericAnnotation) []types.NumericAnnotation {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.NumericAnnotation, len(in))
	for i, a := range in {
		out[i] = types.NumericAnnotation{Key: a.Key, Value: a.Value}
	}
	return out
}

func toWireNumericAnnotations(in []types.NumericAnnotation) []wireNumericAnnotation {
	if len(in) == 0 {
		return nil
	}
	out := make([]wireNumericAnnotation, len(in))
	for i, a := range in {
		out[i] = wireNumericAnnotation{Key: a.Key, Value: a.Value}
	}
	return out
}
