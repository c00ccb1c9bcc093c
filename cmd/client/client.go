// Example client allocating a batch of identifiers from a widgen server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	serverAddr = flag.String("address", "localhost:6380", "widgen server address")
	key        = flag.String("key", "wid", "counter key to allocate from")
	count      = flag.Int("n", 10, "number of identifiers to allocate")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run() error {
	rdb := redis.NewClient(&redis.Options{
		Addr:        *serverAddr,
		DialTimeout: 3 * time.Second,
	})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping failed")
	}

	res, err := rdb.Do(ctx, "NEXTN", *key, strconv.Itoa(*count)).StringSlice()
	if err != nil {
		return errors.Wrap(err, "allocation failed")
	}
	for _, id := range res {
		fmt.Println(id)
	}

	st, err := rdb.Do(ctx, "STATE", *key).Int64Slice()
	if err != nil {
		return errors.Wrap(err, "state read failed")
	}
	fmt.Printf("state: tick=%d seq=%d\n", st[0], st[1])
	return nil
}
