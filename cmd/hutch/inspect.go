package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cuemby/hutch/pkg/arena"
	"github.com/cuemby/hutch/pkg/kv"
	"github.com/cuemby/hutch/pkg/stride"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List collections with cardinality and size estimates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		db, err := kv.Open(opts)
		if err != nil {
			return err
		}
		defer db.Close()

		ids, names, err := db.Collections()
		if err != nil {
			return err
		}

		a := arena.New()
		estimates, err := db.Measure(kv.MeasureTasks{
			Collections: stride.Over(ids),
			MinKeys:     stride.Repeat(kv.Key(0)),
			MaxKeys:     stride.Repeat(kv.KeyUnknown),
			Count:       len(ids),
		}, a)
		if err != nil {
			return err
		}

		fmt.Printf("%-24s %-10s %12s %12s\n", "COLLECTION", "ID", "ENTRIES", "BYTES")
		for i, id := range ids {
			name := names[i]
			if name == "" {
				name = "(main)"
			}
			fmt.Printf("%-24s %-10d %12d %12s\n",
				name, id,
				estimates[i].CardinalityMin,
				humanize.Bytes(estimates[i].BytesValuesMin),
			)
		}
		return nil
	},
}
