package main

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/hutch/pkg/kv"
	"github.com/cuemby/hutch/pkg/stride"
)

var (
	benchWriters   int
	benchBatches   int
	benchBatchSize int
	benchValueSize int
)

func init() {
	benchCmd.Flags().IntVar(&benchWriters, "writers", 4, "Concurrent writer goroutines")
	benchCmd.Flags().IntVar(&benchBatches, "batches", 100, "Write batches per writer")
	benchCmd.Flags().IntVar(&benchBatchSize, "batch-size", 256, "Tasks per batch")
	benchCmd.Flags().IntVar(&benchValueSize, "value-size", 64, "Value bytes per task")
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a concurrent write load against a database",
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

		value := make([]byte, benchValueSize)
		if _, err := rand.Read(value); err != nil {
			return err
		}

		start := time.Now()
		var g errgroup.Group
		for w := 0; w < benchWriters; w++ {
			base := uint64(w) << 32
			g.Go(func() error {
				keys := make([]kv.Key, benchBatchSize)
				for b := 0; b < benchBatches; b++ {
					for i := range keys {
						keys[i] = base + uint64(b*benchBatchSize+i)
					}
					err := db.Write(kv.WriteTasks{
						Collections: stride.Repeat(kv.Main),
						Keys:        stride.Over(keys),
						Values:      stride.RepeatBytes(value),
						Count:       len(keys),
					}, kv.WriteOptions{})
					if err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		elapsed := time.Since(start)
		total := benchWriters * benchBatches * benchBatchSize
		bytes := uint64(total) * uint64(benchValueSize)
		fmt.Printf("wrote %d entries (%s) in %s: %.0f ops/s, %s/s\n",
			total,
			humanize.Bytes(bytes),
			elapsed.Round(time.Millisecond),
			float64(total)/elapsed.Seconds(),
			humanize.Bytes(uint64(float64(bytes)/elapsed.Seconds())),
		)
		return nil
	},
}
