package wal

import (
	"encoding/base64"
	"fmt"

	"github.com/bobboyms/docdb/pkg/crypto"
	"github.com/bobboyms/docdb/pkg/dberrors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// wireEntry is the structural (BSON) body of an Entry, framed with a
// trailing CRC32 so a reader can tell truncation/bit-rot apart from a
// broken chain pointer.
type wireEntry struct {
	Action    string `bson:"action"`
	Target    string `bson:"target"`
	Value     string `bson:"value,omitempty"`
	OldKey    string `bson:"oldKey,omitempty"`
	Member    string `bson:"member,omitempty"`
	Timestamp int64  `bson:"ts"`
	TxnID     string `bson:"txnId,omitempty"`
}

// encodeBody renders an Entry into the base64 text that goes in the
// `body` field of a WAL line. When key is non-nil the plaintext body is
// sealed with it first, per spec.md §4.3.
func encodeBody(e Entry, key []byte) (string, error) {
	w := wireEntry{
		Action:    string(e.Action),
		Target:    e.Target,
		Value:     e.Value,
		OldKey:    e.OldKey,
		Member:    e.Member,
		Timestamp: e.Timestamp,
		TxnID:     e.TxnID,
	}

	plain, err := bson.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("wal: marshal entry body: %w", err)
	}

	checksum := CalculateCRC32(plain)
	framed := make([]byte, 0, len(plain)+4)
	framed = append(framed, plain...)
	framed = append(framed, byte(checksum), byte(checksum>>8), byte(checksum>>16), byte(checksum>>24))

	payload := framed
	if key != nil {
		sealed, err := crypto.Encrypt(key, framed, nil)
		if err != nil {
			return "", err
		}
		payload = sealed
	}

	return base64.StdEncoding.EncodeToString(payload), nil
}

// decodeBody reverses encodeBody. key must match what encodeBody used, or
// decryption fails with AuthenticationError.
func decodeBody(body string, key []byte) (Entry, error) {
	payload, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Entry{}, fmt.Errorf("wal: malformed base64 body: %w", err)
	}

	framed := payload
	if key != nil {
		opened, err := crypto.Decrypt(key, payload, nil)
		if err != nil {
			return Entry{}, err
		}
		framed = opened
	}

	if len(framed) < 4 {
		return Entry{}, &dberrors.CorruptionError{Reason: "entry body shorter than its CRC trailer"}
	}
	plain := framed[:len(framed)-4]
	trailer := framed[len(framed)-4:]
	checksum := uint32(trailer[0]) | uint32(trailer[1])<<8 | uint32(trailer[2])<<16 | uint32(trailer[3])<<24
	if !ValidateCRC32(plain, checksum) {
		return Entry{}, &dberrors.CorruptionError{Reason: "entry body failed CRC32 check"}
	}

	var w wireEntry
	if err := bson.Unmarshal(plain, &w); err != nil {
		return Entry{}, fmt.Errorf("wal: unmarshal entry body: %w", err)
	}

	return Entry{
		Action:    Action(w.Action),
		Target:    w.Target,
		Value:     w.Value,
		OldKey:    w.OldKey,
		Member:    w.Member,
		Timestamp: w.Timestamp,
		TxnID:     w.TxnID,
	}, nil
}
