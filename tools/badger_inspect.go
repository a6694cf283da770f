package main

import (
	"circles/repositories"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// row is one printed key of the store.
type row struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Detail    string
}

func main() {
	dbPath := flag.String("db", "data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (user:, conv:, part:, msg:, pair:, cid:)")
	limit := flag.Int("limit", 200, "Maximum number of rows")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes) && count < *limit; it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				r := describe(key, v)
				table.Append([]string{r.Key, r.Type, r.Timestamp, r.EntityID, r.Detail})
				return nil
			})
			if err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("%d rows\n", count)
}

// describe decodes a value according to its key family.
// Values that fail to decode are shown raw instead of stopping the scan.
func describe(key string, val []byte) row {
	r := row{Key: key}
	family, _, _ := strings.Cut(key, ":")
	switch family {
	case "user":
		var u repositories.DiskUser
		if json.Unmarshal(val, &u) != nil {
			return raw(r, val)
		}
		r.Type, r.Timestamp, r.EntityID = "USER", clock(u.CreatedAt), fmt.Sprint(u.ID)
		r.Detail = "@" + u.Username
	case "conv":
		var c repositories.DiskConversation
		if json.Unmarshal(val, &c) != nil {
			return raw(r, val)
		}
		r.Type, r.Timestamp, r.EntityID = "CONVERSATION", clock(c.UpdatedAt), fmt.Sprint(c.ID)
		r.Detail = "pair " + c.PairKey
	case "part":
		var p repositories.DiskParticipant
		if json.Unmarshal(val, &p) != nil {
			return raw(r, val)
		}
		r.Type, r.Timestamp, r.EntityID = "PARTICIPANT", clock(p.LastReadAt), fmt.Sprint(p.UserID)
		r.Detail = fmt.Sprintf("conversation %d, read at %s", p.ConversationID, clock(p.LastReadAt))
	case "msg":
		var m repositories.DiskMessage
		if json.Unmarshal(val, &m) != nil {
			return raw(r, val)
		}
		content := []rune(m.Content)
		if len(content) > 40 {
			content = append(content[:39], '…')
		}
		r.Type, r.Timestamp, r.EntityID = "MESSAGE", clock(m.CreatedAt), fmt.Sprint(m.ID)
		r.Detail = fmt.Sprintf("from %d: %s", m.SenderID, string(content))
	default:
		return raw(r, val)
	}
	return r
}

func raw(r row, val []byte) row {
	r.Type = "RAW"
	r.Detail = string(val)
	return r
}

func clock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A store closed uncleanly needs one writable open to truncate its log
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
