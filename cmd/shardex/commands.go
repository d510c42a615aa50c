package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/shardex/internal/rows"
	"github.com/hupe1980/shardex/store"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <index>",
	Short: "Cross-check an index's identity bookkeeping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, closeFn, err := newVerifier()
		if err != nil {
			return err
		}
		defer closeFn()

		found, err := v.Verify(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(found) == 0 {
			fmt.Println("ok: lookup and reuse rows agree")

			return nil
		}

		for _, inc := range found {
			fmt.Println(inc)
		}

		return fmt.Errorf("%d inconsistencies found", len(found))
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair <index>",
	Short: "Verify an index and reclaim orphaned bookkeeping entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, closeFn, err := newVerifier()
		if err != nil {
			return err
		}
		defer closeFn()

		found, err := v.Verify(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(found) == 0 {
			fmt.Println("ok: nothing to repair")

			return nil
		}

		if err := v.Repair(cmd.Context(), args[0], found); err != nil {
			return err
		}

		fmt.Printf("repaired %d entries\n", len(found))

		return nil
	},
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <index>",
	Short: "Write a cache invalidation marker for every shard of an index",
	Long: `Forces readers to drop their caches for the named index, for example
after a repair or an out-of-band bulk load.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		now := time.Now()
		shards := viper.GetInt("shards")

		muts := make([]store.Mutation, 0, shards)
		for shard := 0; shard < shards; shard++ {
			muts = append(muts, store.Put(rows.Cache(rows.Shard(args[0], shard)), rows.CacheColumn, nil, now))
		}

		if err := st.Apply(cmd.Context(), store.Quorum, muts...); err != nil {
			return fmt.Errorf("write invalidation markers: %w", err)
		}

		fmt.Printf("invalidated %d shards\n", shards)

		return nil
	},
}
