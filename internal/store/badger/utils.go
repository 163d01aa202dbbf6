package badgerdb

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
)

const maxRetries = 5

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
					if logger != nil {
						logger.Errorf("%s", err)
					}
				}
			}
		}()
	}

	return db, nil
}

// retry reruns fn while badger reports a transaction conflict.
func retry(fn func() error) error {
	err := fn()
	for attempts := 1; err != nil && attempts <= maxRetries; attempts++ {
		if !isConflict(err) {
			return err
		}
		time.Sleep(100 * time.Millisecond)
		err = fn()
	}
	return err
}

func isConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}
