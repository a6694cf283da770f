package repositories

import (
	"circles/errors"
	"encoding/json"
	goerrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Keyspace. Ids are zero padded to 19 digits so lexicographic order is numeric order.
const (
	userPrefix     = "user:"
	usernamePrefix = "username:"
	convPrefix     = "conv:"
	partPrefix     = "part:"
	memberPrefix   = "member:"
	pairPrefix     = "pair:"
	msgPrefix      = "msg:"
	clientIDPrefix = "cid:"

	userSequence         = "seq:users"
	conversationSequence = "seq:conversations"
	messageSequence      = "seq:messages"

	sequenceBandwidth = 100
	maxTxnAttempts    = 5
	maxPaddedID       = "9999999999999999999"
)

func userKey(id int64) []byte         { return []byte(fmt.Sprintf("%s%019d", userPrefix, id)) }
func usernameKey(name string) []byte  { return []byte(usernamePrefix + name) }
func conversationKey(id int64) []byte { return []byte(fmt.Sprintf("%s%019d", convPrefix, id)) }
func pairKey(pair string) []byte      { return []byte(pairPrefix + pair) }

func participantPrefix(conversationID int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:", partPrefix, conversationID))
}

func participantKey(conversationID, userID int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:%019d", partPrefix, conversationID, userID))
}

func membershipPrefix(userID int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:", memberPrefix, userID))
}

func membershipKey(userID, conversationID int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:%019d", memberPrefix, userID, conversationID))
}

func messagePrefix(conversationID int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:", msgPrefix, conversationID))
}

func messageKey(conversationID, messageID int64) []byte {
	return []byte(fmt.Sprintf("%s%019d:%019d", msgPrefix, conversationID, messageID))
}

func clientIDKey(conversationID, senderID int64, clientID string) []byte {
	return []byte(fmt.Sprintf("%s%019d:%019d:%s", clientIDPrefix, conversationID, senderID, clientID))
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, data)
}

// getJSON maps a missing key to errors.ErrNotFound.
func getJSON(txn *badger.Txn, key []byte, value any) error {
	item, err := txn.Get(key)
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, value)
	})
}

// update retries transactions that lost an optimistic conflict.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		err = db.Update(fn)
		if !goerrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// nextID hands out ids starting at 1.
func nextID(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}
