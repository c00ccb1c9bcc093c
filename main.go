package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/widlabs/widgen/adapter"
	"github.com/widlabs/widgen/alloc"
	"github.com/widlabs/widgen/store"
	"github.com/widlabs/widgen/wid"
)

var (
	listenAddr     = flag.String("address", "localhost:6380", "TCP host+port to serve RESP on")
	backend        = flag.String("backend", "memory", "state store backend: memory, bolt, redis or dynamo")
	boltPath       = flag.String("bolt_path", "data/wid_state.db", "Database file for the bolt backend")
	redisAddr      = flag.String("redis_address", "localhost:6379", "TCP host+port for the redis backend")
	dynamoTable    = flag.String("dynamo_table", "wid_state", "Table name for the dynamo backend")
	dynamoRegion   = flag.String("dynamo_region", "us-west-2", "Region for the dynamo backend")
	dynamoEndpoint = flag.String("dynamo_endpoint", "", "Endpoint override for the dynamo backend (local testing)")
	prefix         = flag.String("prefix", "wid", "Key namespace prefix for state rows")
	seqWidth       = flag.Int("w", 4, "Counter digit width W")
	padLen         = flag.Int("z", 6, "Random suffix length Z")
	timeUnit       = flag.String("time_unit", "sec", "Time unit: sec or ms")
	hlcMode        = flag.Bool("hlc", false, "Allocate HLC-WIDs instead of WIDs")
	node           = flag.String("node", "", "HLC node token; derived from hostname/pid when empty")
	maxRetries     = flag.Int("max_retries", alloc.DefaultMaxRetries, "CAS retry budget per allocation")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	unit, err := wid.ParseTimeUnit(*timeUnit)
	if err != nil {
		log.Fatalf("invalid --time_unit %q: %v", *timeUnit, err)
	}

	st, err := buildStore(ctx, storeConfig{
		backend:        *backend,
		prefix:         *prefix,
		boltPath:       *boltPath,
		redisAddr:      *redisAddr,
		dynamoTable:    *dynamoTable,
		dynamoRegion:   *dynamoRegion,
		dynamoEndpoint: *dynamoEndpoint,
	})
	if err != nil {
		log.Fatalf("failed to open %s store: %v", *backend, err)
	}
	defer func() {
		_ = st.Close()
	}()

	opts := alloc.Options{
		W:          *seqWidth,
		Z:          *padLen,
		TimeUnit:   unit,
		MaxRetries: *maxRetries,
	}
	if *hlcMode {
		opts.Node = *node
		if opts.Node == "" {
			opts.Node = wid.DefaultNode()
		}
	}

	allocator, err := alloc.New(st, opts)
	if err != nil {
		log.Fatalf("failed to build allocator: %v", err)
	}

	sock, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *listenAddr, err)
	}

	srv := adapter.NewRedisServer(sock, allocator, st, *hlcMode)

	eg := errgroup.Group{}
	eg.Go(func() error {
		return srv.Run()
	})
	eg.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		return nil
	})

	log.Printf("widgen serving on %s (backend=%s hlc=%v)", *listenAddr, st.Name(), *hlcMode)
	if err := eg.Wait(); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

type storeConfig struct {
	backend        string
	prefix         string
	boltPath       string
	redisAddr      string
	dynamoTable    string
	dynamoRegion   string
	dynamoEndpoint string
}

func buildStore(ctx context.Context, c storeConfig) (store.CASStore, error) {
	switch c.backend {
	case "memory":
		return store.NewMemoryStore(c.prefix), nil
	case "bolt":
		return store.NewBoltStore(c.boltPath, c.prefix)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.redisAddr})
		return store.NewRedisStore(client, c.prefix), nil
	case "dynamo":
		optFns := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(c.dynamoRegion),
		}
		if c.dynamoEndpoint != "" {
			optFns = append(optFns,
				awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")),
			)
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if c.dynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(c.dynamoEndpoint)
			}
		})
		return store.NewDynamoStore(client, c.dynamoTable, c.prefix), nil
	default:
		return nil, errors.Newf("unknown backend: %s", c.backend)
	}
}
