package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/hupe1980/shardex/store"
	"github.com/hupe1980/shardex/store/badgerstore"
	"github.com/hupe1980/shardex/store/dynamo"
)

// openStore builds the configured store backend. The returned closer is
// a no-op for backends without local state.
func openStore() (store.Store, func() error, error) {
	switch backend := viper.GetString("store"); backend {
	case "badger":
		st, err := badgerstore.Open(viper.GetString("path"))
		if err != nil {
			return nil, nil, fmt.Errorf("open badger store: %w", err)
		}

		return st, st.Close, nil
	case "dynamo":
		table := viper.GetString("table")
		if table == "" {
			return nil, nil, fmt.Errorf("dynamo backend requires a table name")
		}

		st, err := dynamo.NewFromDefaultConfig(context.Background(), table)
		if err != nil {
			return nil, nil, fmt.Errorf("configure dynamodb store: %w", err)
		}

		return st, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
