// Package adapter exposes the allocator to remote callers over the Redis
// serialization protocol. Any RESP client can allocate identifiers from the
// shared counter without linking this module.
package adapter

import (
	"context"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/redcon"
	"github.com/widlabs/widgen/alloc"
	"github.com/widlabs/widgen/internal"
	"github.com/widlabs/widgen/store"
	"github.com/widlabs/widgen/wid"
)

//nolint:mnd
var argsLen = map[string]int{
	"PING":    1,
	"NEXT":    2,
	"NEXTN":   3,
	"STATE":   2,
	"RESTORE": 4,
	"OBSERVE": 4,
	"KEYS":    2,
}

// RedisServer serves allocation commands over RESP:
//
//	NEXT <key>                  allocate one identifier
//	NEXTN <key> <n>             allocate n identifiers
//	STATE <key>                 read the stored (tick, seq) pair
//	RESTORE <key> <tick> <seq>  force the stored pair (operator use)
//	OBSERVE <key> <pt> <lc>     merge a remote HLC reading (HLC mode only)
//	KEYS <pattern>              list counter keys (scan-capable stores)
type RedisServer struct {
	listen    net.Listener
	allocator *alloc.Allocator
	store     store.CASStore
	hlcMode   bool

	route map[string]func(conn redcon.Conn, cmd redcon.Command)
	log   *slog.Logger
}

// NewRedisServer creates a server over the allocator and its backing store.
func NewRedisServer(listen net.Listener, allocator *alloc.Allocator, st store.CASStore, hlcMode bool) *RedisServer {
	r := &RedisServer{
		listen:    listen,
		allocator: allocator,
		store:     st,
		hlcMode:   hlcMode,
		log: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
	}

	r.route = map[string]func(conn redcon.Conn, cmd redcon.Command){
		"PING":    r.ping,
		"NEXT":    r.next,
		"NEXTN":   r.nextN,
		"STATE":   r.state,
		"RESTORE": r.restore,
		"OBSERVE": r.observe,
		"KEYS":    r.keys,
	}

	return r
}

// Run serves until the listener closes.
func (r *RedisServer) Run() error {
	err := redcon.Serve(r.listen,
		func(conn redcon.Conn, cmd redcon.Command) {
			f, ok := r.route[strings.ToUpper(string(cmd.Args[0]))]
			if !ok {
				conn.WriteError("ERR unsupported command '" + string(cmd.Args[0]) + "'")
				return
			}

			if err := r.validateCmd(cmd); err != nil {
				conn.WriteError(err.Error())
				return
			}

			f(conn, cmd)
		},
		func(conn redcon.Conn) bool {
			return true
		},
		func(conn redcon.Conn, err error) {
		})

	return errors.WithStack(err)
}

// Stop closes the listener, which unblocks Run.
func (r *RedisServer) Stop() {
	_ = r.listen.Close()
}

func (r *RedisServer) validateCmd(cmd redcon.Command) error {
	name := strings.ToUpper(string(cmd.Args[0]))
	expected, ok := argsLen[name]
	if !ok {
		return nil
	}
	if len(cmd.Args) != expected {
		//nolint:wrapcheck
		return errors.WithStack(errors.Newf("ERR wrong number of arguments for '%s' command", string(cmd.Args[0])))
	}
	return nil
}

func (r *RedisServer) ping(conn redcon.Conn, _ redcon.Command) {
	conn.WriteString("PONG")
}

func (r *RedisServer) next(conn redcon.Conn, cmd redcon.Command) {
	id, err := r.allocator.Allocate(context.Background(), string(cmd.Args[1]))
	if err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	conn.WriteBulkString(id)
}

func (r *RedisServer) nextN(conn redcon.Conn, cmd redcon.Command) {
	n, err := internal.ParseCount(cmd.Args[2])
	if err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	ids, err := r.allocator.AllocateN(context.Background(), string(cmd.Args[1]), n)
	if err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	conn.WriteArray(len(ids))
	for _, id := range ids {
		conn.WriteBulkString(id)
	}
}

func (r *RedisServer) state(conn redcon.Conn, cmd redcon.Command) {
	st, err := r.store.Load(context.Background(), string(cmd.Args[1]))
	if err != nil {
		if errors.Is(err, wid.ErrStateNotFound) {
			conn.WriteNull()
			return
		}
		conn.WriteError(errPrefix(err))
		return
	}
	conn.WriteArray(2)
	conn.WriteInt64(st.Tick)
	conn.WriteInt64(st.Seq)
}

func (r *RedisServer) restore(conn redcon.Conn, cmd redcon.Command) {
	tick, err := internal.ParseInt64(cmd.Args[2])
	if err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	seq, err := internal.ParseInt64(cmd.Args[3])
	if err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	// the HLC pair has no "before epoch" sentinel, both fields are >= 0
	minSeq := int64(-1)
	if r.hlcMode {
		minSeq = 0
	}
	if tick < 0 || seq < minSeq {
		conn.WriteError(errPrefix(wid.ErrInvalidState))
		return
	}
	err = r.store.Save(context.Background(), string(cmd.Args[1]), wid.State{Tick: tick, Seq: seq})
	if err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	conn.WriteString("OK")
}

func (r *RedisServer) observe(conn redcon.Conn, cmd redcon.Command) {
	if !r.hlcMode {
		conn.WriteError("ERR OBSERVE requires an HLC allocator")
		return
	}
	pt, err := internal.ParseInt64(cmd.Args[2])
	if err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	lc, err := internal.ParseInt64(cmd.Args[3])
	if err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	if err := r.allocator.Observe(context.Background(), string(cmd.Args[1]), pt, lc); err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	conn.WriteString("OK")
}

func (r *RedisServer) keys(conn redcon.Conn, cmd redcon.Command) {
	scanner, ok := r.store.(store.Scanner)
	if !ok {
		conn.WriteError("ERR KEYS is not supported by the " + r.store.Name() + " store")
		return
	}
	keys, err := scanner.Keys(context.Background(), string(cmd.Args[1]))
	if err != nil {
		conn.WriteError(errPrefix(err))
		return
	}
	conn.WriteArray(len(keys))
	for _, k := range keys {
		conn.WriteBulkString(k)
	}
}

func errPrefix(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "ERR ") {
		return msg
	}
	return "ERR " + msg
}
