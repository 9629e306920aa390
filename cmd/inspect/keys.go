package main

import (
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Count keys and value sizes per prefix",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		type usage struct {
			count int
			bytes int64
		}
		prefixes := make(map[string]*usage)
		err = db.View(func(txn *badger.Txn) error {
			options := badger.DefaultIteratorOptions
			options.PrefetchValues = false
			it := txn.NewIterator(options)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				key := string(it.Item().Key())
				prefix, _, _ := strings.Cut(key, ":")
				u, ok := prefixes[prefix]
				if !ok {
					u = &usage{}
					prefixes[prefix] = u
				}
				u.count++
				u.bytes += it.Item().ValueSize()
			}
			return nil
		})
		if err != nil {
			return err
		}

		names := make([]string, 0, len(prefixes))
		for name := range prefixes {
			names = append(names, name)
		}
		sort.Strings(names)

		title("Keys in " + dbPath)
		table := newTable("Prefix", "Keys", "Values")
		total := 0
		for _, name := range names {
			u := prefixes[name]
			total += u.count
			table.Append([]string{name + ":", humanize.Comma(int64(u.count)), humanize.Bytes(uint64(u.bytes))})
		}
		table.Render()
		footer("%s keys", humanize.Comma(int64(total)))
		return nil
	},
}
