package respserver

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/solask/emberdb/internal/core/value"
	"github.com/solask/emberdb/internal/pubsub"
	"github.com/solask/emberdb/internal/storage"
	"github.com/solask/emberdb/internal/store"
	"github.com/solask/emberdb/internal/telemetry/metric"
)

const serverVersion = "1.0.0"

// Canonical protocol error strings.
const (
	errWrongType  = "WRONGTYPE Operation against a key holding the wrong kind of value"
	errNotInteger = "ERR value is not an integer or out of range"
	errNoAuth     = "NOAUTH Authentication required."
	errOOM        = "OOM command not allowed when used memory > 'maxmemory'"
)

func errWrongArgs(cmd string) string {
	return "ERR wrong number of arguments for '" + cmd + "' command"
}

// commandHandler executes parsed commands against the engine and broker.
type commandHandler struct {
	srv     *Server
	engine  *storage.Engine
	broker  *pubsub.Broker
	metrics *metric.Registry
	logger  *slog.Logger
	limiter *ipLimiter

	// passwordHash is the sha256 of the configured password, nil when
	// authentication is disabled.
	passwordHash []byte
	startedAt    time.Time
}

func newCommandHandler(srv *Server, engine *storage.Engine, broker *pubsub.Broker, metrics *metric.Registry, cfg *Config, logger *slog.Logger) *commandHandler {
	h := &commandHandler{
		srv:       srv,
		engine:    engine,
		broker:    broker,
		metrics:   metrics,
		logger:    logger,
		startedAt: time.Now(),
	}
	if cfg.Password != "" {
		sum := sha256.Sum256([]byte(cfg.Password))
		h.passwordHash = sum[:]
	}
	if cfg.RateLimit > 0 {
		h.limiter = newIPLimiter(cfg.RateLimit)
	}
	return h
}

// handle dispatches one command. The caller holds the connection's
// write lock and flushes after we return.
func (h *commandHandler) handle(c *Conn, args [][]byte) {
	cmd := normalizeCommandName(args[0])
	ok := h.dispatch(c, cmd, args)
	if h.metrics != nil {
		status := "ok"
		if !ok {
			status = "error"
		}
		h.metrics.CommandsTotal.WithLabelValues(cmd, status).Inc()
	}
}

// dispatch returns false when an error reply was written.
func (h *commandHandler) dispatch(c *Conn, cmd string, args [][]byte) bool {
	// Commands usable before AUTH and in any mode.
	switch cmd {
	case "PING":
		return h.cmdPing(c, args)
	case "AUTH":
		return h.cmdAuth(c, args)
	case "QUIT":
		_ = WriteSimpleString(c.bw, "OK")
		_ = c.bw.Flush()
		_ = c.Close()
		return true
	}

	if h.passwordHash != nil && !c.authenticated.Load() {
		_ = WriteError(c.bw, errNoAuth)
		return false
	}

	if h.limiter != nil {
		ip := c.RemoteAddr().String()
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if !h.limiter.allow(ip) {
			_ = WriteError(c.bw, "ERR rate limit exceeded")
			return false
		}
	}

	// In subscriber mode only subscription management is allowed.
	if c.sub != nil && h.broker.Count(c.sub) > 0 {
		switch cmd {
		case "SUBSCRIBE", "UNSUBSCRIBE", "PSUBSCRIBE", "PUNSUBSCRIBE":
		default:
			_ = WriteError(c.bw, "ERR only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT allowed in this context")
			return false
		}
	}

	switch cmd {
	case "GET":
		return h.cmdGet(c, args)
	case "SET":
		return h.cmdSet(c, args)
	case "SETEX":
		return h.cmdSetEx(c, args)
	case "DEL":
		return h.cmdDel(c, args)
	case "EXISTS":
		return h.cmdExists(c, args)
	case "INCR":
		return h.cmdIncrBy(c, args, 1)
	case "DECR":
		return h.cmdIncrBy(c, args, -1)
	case "LPUSH":
		return h.cmdPush(c, args, true)
	case "RPUSH":
		return h.cmdPush(c, args, false)
	case "LPOP":
		return h.cmdPop(c, args, true)
	case "RPOP":
		return h.cmdPop(c, args, false)
	case "LLEN":
		return h.cmdLLen(c, args)
	case "LRANGE":
		return h.cmdLRange(c, args)
	case "SADD":
		return h.cmdSAdd(c, args)
	case "SREM":
		return h.cmdSRem(c, args)
	case "SMEMBERS":
		return h.cmdSMembers(c, args)
	case "SCARD":
		return h.cmdSCard(c, args)
	case "SISMEMBER":
		return h.cmdSIsMember(c, args)
	case "HSET":
		return h.cmdHSet(c, args)
	case "HGET":
		return h.cmdHGet(c, args)
	case "HDEL":
		return h.cmdHDel(c, args)
	case "HGETALL":
		return h.cmdHGetAll(c, args)
	case "HKEYS":
		return h.cmdHKeys(c, args)
	case "HVALS":
		return h.cmdHVals(c, args)
	case "HLEN":
		return h.cmdHLen(c, args)
	case "KEYS":
		return h.cmdKeys(c, args)
	case "TYPE":
		return h.cmdType(c, args)
	case "EXPIRE":
		return h.cmdExpire(c, args)
	case "TTL":
		return h.cmdTTL(c, args)
	case "PERSIST":
		return h.cmdPersist(c, args)
	case "FLUSHALL":
		h.engine.Clear()
		_ = WriteSimpleString(c.bw, "OK")
		return true
	case "DBSIZE":
		_ = WriteInteger(c.bw, int64(h.engine.Size()))
		return true
	case "ECHO":
		if len(args) != 2 {
			_ = WriteError(c.bw, errWrongArgs("ECHO"))
			return false
		}
		_ = WriteBulk(c.bw, args[1])
		return true
	case "INFO":
		return h.cmdInfo(c)
	case "MEMORY":
		return h.cmdMemory(c)
	case "SAVE":
		return h.cmdSave(c)
	case "BGSAVE":
		return h.cmdBGSave(c)
	case "SUBSCRIBE":
		return h.cmdSubscribe(c, args, false)
	case "PSUBSCRIBE":
		return h.cmdSubscribe(c, args, true)
	case "UNSUBSCRIBE":
		return h.cmdUnsubscribe(c, args, false)
	case "PUNSUBSCRIBE":
		return h.cmdUnsubscribe(c, args, true)
	case "PUBLISH":
		return h.cmdPublish(c, args)
	default:
		_ = WriteError(c.bw, "ERR unknown command '"+cmd+"'")
		return false
	}
}

// writeStoreError maps engine errors onto protocol error strings.
func writeStoreError(c *Conn, err error) {
	switch {
	case errors.Is(err, store.ErrWrongType):
		_ = WriteError(c.bw, errWrongType)
	case errors.Is(err, store.ErrOutOfMemory):
		_ = WriteError(c.bw, errOOM)
	default:
		_ = WriteError(c.bw, "ERR "+err.Error())
	}
}

func (h *commandHandler) cmdPing(c *Conn, args [][]byte) bool {
	// Inside subscriber mode PING replies as a push-style array.
	if c.sub != nil && h.broker.Count(c.sub) > 0 {
		_ = WriteArrayHeader(c.bw, 2)
		_ = WriteBulkString(c.bw, "pong")
		if len(args) > 1 {
			_ = WriteBulk(c.bw, args[1])
		} else {
			_ = WriteBulkString(c.bw, "")
		}
		return true
	}
	if len(args) > 1 {
		_ = WriteBulk(c.bw, args[1])
		return true
	}
	_ = WriteSimpleString(c.bw, "PONG")
	return true
}

func (h *commandHandler) cmdAuth(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("AUTH"))
		return false
	}
	if h.passwordHash == nil {
		_ = WriteError(c.bw, "ERR Client sent AUTH, but no password is set")
		return false
	}
	sum := sha256.Sum256(args[1])
	if subtle.ConstantTimeCompare(sum[:], h.passwordHash) != 1 {
		_ = WriteError(c.bw, "ERR invalid password")
		return false
	}
	c.authenticated.Store(true)
	_ = WriteSimpleString(c.bw, "OK")
	return true
}

// GET <key>
func (h *commandHandler) cmdGet(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("GET"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteNullBulk(c.bw)
		return true
	}
	switch v.Kind {
	case value.KindString:
		_ = WriteBulkString(c.bw, v.Str)
	case value.KindInteger:
		_ = WriteBulkString(c.bw, strconv.FormatInt(v.Int, 10))
	default:
		_ = WriteError(c.bw, errWrongType)
		return false
	}
	return true
}

// SET <key> <value>
func (h *commandHandler) cmdSet(c *Conn, args [][]byte) bool {
	if len(args) != 3 {
		_ = WriteError(c.bw, errWrongArgs("SET"))
		return false
	}
	if err := h.engine.Set(string(args[1]), value.String(string(args[2]))); err != nil {
		writeStoreError(c, err)
		return false
	}
	_ = WriteSimpleString(c.bw, "OK")
	return true
}

// SETEX <key> <seconds> <value>
func (h *commandHandler) cmdSetEx(c *Conn, args [][]byte) bool {
	if len(args) != 4 {
		_ = WriteError(c.bw, errWrongArgs("SETEX"))
		return false
	}
	secs, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil || secs <= 0 {
		_ = WriteError(c.bw, errNotInteger)
		return false
	}
	if err := h.engine.SetWithTTL(string(args[1]), value.String(string(args[3])), time.Duration(secs)*time.Second); err != nil {
		writeStoreError(c, err)
		return false
	}
	_ = WriteSimpleString(c.bw, "OK")
	return true
}

// DEL <key> [key ...]
func (h *commandHandler) cmdDel(c *Conn, args [][]byte) bool {
	if len(args) < 2 {
		_ = WriteError(c.bw, errWrongArgs("DEL"))
		return false
	}
	deleted := int64(0)
	for _, key := range args[1:] {
		if h.engine.Delete(string(key)) {
			deleted++
		}
	}
	_ = WriteInteger(c.bw, deleted)
	return true
}

// EXISTS <key> [key ...]
func (h *commandHandler) cmdExists(c *Conn, args [][]byte) bool {
	if len(args) < 2 {
		_ = WriteError(c.bw, errWrongArgs("EXISTS"))
		return false
	}
	found := int64(0)
	for _, key := range args[1:] {
		if h.engine.Exists(string(key)) {
			found++
		}
	}
	_ = WriteInteger(c.bw, found)
	return true
}

// INCR/DECR <key>. Integer values adjust in place; numeric strings are
// converted; a missing key starts from zero.
func (h *commandHandler) cmdIncrBy(c *Conn, args [][]byte, delta int64) bool {
	if len(args) != 2 {
		cmd := "INCR"
		if delta < 0 {
			cmd = "DECR"
		}
		_ = WriteError(c.bw, errWrongArgs(cmd))
		return false
	}

	out, err := h.engine.Upsert(string(args[1]), value.Integer(0), func(v *value.Value) error {
		switch v.Kind {
		case value.KindInteger:
			v.Int += delta
			return nil
		case value.KindString:
			n, err := strconv.ParseInt(v.Str, 10, 64)
			if err != nil {
				return errors.New(errNotInteger)
			}
			*v = value.Integer(n + delta)
			return nil
		default:
			return store.ErrWrongType
		}
	})
	if err != nil {
		if err.Error() == errNotInteger {
			_ = WriteError(c.bw, errNotInteger)
		} else {
			writeStoreError(c, err)
		}
		return false
	}
	_ = WriteInteger(c.bw, out.Int)
	return true
}

// LPUSH/RPUSH <key> <value> [value ...]
func (h *commandHandler) cmdPush(c *Conn, args [][]byte, front bool) bool {
	cmd := "RPUSH"
	if front {
		cmd = "LPUSH"
	}
	if len(args) < 3 {
		_ = WriteError(c.bw, errWrongArgs(cmd))
		return false
	}

	out, err := h.engine.Upsert(string(args[1]), value.List(), func(v *value.Value) error {
		if v.Kind != value.KindList {
			return store.ErrWrongType
		}
		for _, raw := range args[2:] {
			if front {
				v.List = append([]string{string(raw)}, v.List...)
			} else {
				v.List = append(v.List, string(raw))
			}
		}
		return nil
	})
	if err != nil {
		writeStoreError(c, err)
		return false
	}
	_ = WriteInteger(c.bw, int64(len(out.List)))
	return true
}

// LPOP/RPOP <key>
func (h *commandHandler) cmdPop(c *Conn, args [][]byte, front bool) bool {
	cmd := "RPOP"
	if front {
		cmd = "LPOP"
	}
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs(cmd))
		return false
	}
	key := string(args[1])

	var popped string
	out, existed, err := h.engine.Update(key, func(v *value.Value) error {
		if v.Kind != value.KindList {
			return store.ErrWrongType
		}
		if len(v.List) == 0 {
			return errEmptyList
		}
		if front {
			popped = v.List[0]
			v.List = v.List[1:]
		} else {
			popped = v.List[len(v.List)-1]
			v.List = v.List[:len(v.List)-1]
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errEmptyList) {
			_ = WriteNullBulk(c.bw)
			return true
		}
		writeStoreError(c, err)
		return false
	}
	if !existed {
		_ = WriteNullBulk(c.bw)
		return true
	}
	// An emptied list vanishes with its key.
	if len(out.List) == 0 {
		h.engine.Delete(key)
	}
	_ = WriteBulkString(c.bw, popped)
	return true
}

var errEmptyList = errors.New("respserver: empty list")

// LLEN <key>
func (h *commandHandler) cmdLLen(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("LLEN"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteInteger(c.bw, 0)
		return true
	}
	if v.Kind != value.KindList {
		_ = WriteError(c.bw, errWrongType)
		return false
	}
	_ = WriteInteger(c.bw, int64(len(v.List)))
	return true
}

// LRANGE <key> <start> <stop>, with Redis negative-index semantics.
func (h *commandHandler) cmdLRange(c *Conn, args [][]byte) bool {
	if len(args) != 4 {
		_ = WriteError(c.bw, errWrongArgs("LRANGE"))
		return false
	}
	start, err1 := strconv.Atoi(string(args[2]))
	stop, err2 := strconv.Atoi(string(args[3]))
	if err1 != nil || err2 != nil {
		_ = WriteError(c.bw, errNotInteger)
		return false
	}

	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteArrayHeader(c.bw, 0)
		return true
	}
	if v.Kind != value.KindList {
		_ = WriteError(c.bw, errWrongType)
		return false
	}

	n := len(v.List)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		_ = WriteArrayHeader(c.bw, 0)
		return true
	}
	_ = WriteStringArray(c.bw, v.List[start:stop+1])
	return true
}

// SADD <key> <member> [member ...]
func (h *commandHandler) cmdSAdd(c *Conn, args [][]byte) bool {
	if len(args) < 3 {
		_ = WriteError(c.bw, errWrongArgs("SADD"))
		return false
	}

	added := int64(0)
	_, err := h.engine.Upsert(string(args[1]), value.Set(), func(v *value.Value) error {
		if v.Kind != value.KindSet {
			return store.ErrWrongType
		}
		for _, raw := range args[2:] {
			m := string(raw)
			if _, ok := v.Set[m]; !ok {
				v.Set[m] = struct{}{}
				added++
			}
		}
		return nil
	})
	if err != nil {
		writeStoreError(c, err)
		return false
	}
	_ = WriteInteger(c.bw, added)
	return true
}

// SREM <key> <member> [member ...]
func (h *commandHandler) cmdSRem(c *Conn, args [][]byte) bool {
	if len(args) < 3 {
		_ = WriteError(c.bw, errWrongArgs("SREM"))
		return false
	}
	key := string(args[1])

	removed := int64(0)
	out, existed, err := h.engine.Update(key, func(v *value.Value) error {
		if v.Kind != value.KindSet {
			return store.ErrWrongType
		}
		for _, raw := range args[2:] {
			m := string(raw)
			if _, ok := v.Set[m]; ok {
				delete(v.Set, m)
				removed++
			}
		}
		return nil
	})
	if err != nil {
		writeStoreError(c, err)
		return false
	}
	if existed && len(out.Set) == 0 {
		h.engine.Delete(key)
	}
	_ = WriteInteger(c.bw, removed)
	return true
}

// SMEMBERS <key>
func (h *commandHandler) cmdSMembers(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("SMEMBERS"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteArrayHeader(c.bw, 0)
		return true
	}
	if v.Kind != value.KindSet {
		_ = WriteError(c.bw, errWrongType)
		return false
	}
	_ = WriteStringArray(c.bw, v.Members())
	return true
}

// SCARD <key>
func (h *commandHandler) cmdSCard(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("SCARD"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteInteger(c.bw, 0)
		return true
	}
	if v.Kind != value.KindSet {
		_ = WriteError(c.bw, errWrongType)
		return false
	}
	_ = WriteInteger(c.bw, int64(len(v.Set)))
	return true
}

// SISMEMBER <key> <member>
func (h *commandHandler) cmdSIsMember(c *Conn, args [][]byte) bool {
	if len(args) != 3 {
		_ = WriteError(c.bw, errWrongArgs("SISMEMBER"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteInteger(c.bw, 0)
		return true
	}
	if v.Kind != value.KindSet {
		_ = WriteError(c.bw, errWrongType)
		return false
	}
	if _, member := v.Set[string(args[2])]; member {
		_ = WriteInteger(c.bw, 1)
	} else {
		_ = WriteInteger(c.bw, 0)
	}
	return true
}

// HSET <key> <field> <value> [field value ...]
func (h *commandHandler) cmdHSet(c *Conn, args [][]byte) bool {
	if len(args) < 4 || len(args)%2 != 0 {
		_ = WriteError(c.bw, errWrongArgs("HSET"))
		return false
	}

	created := int64(0)
	_, err := h.engine.Upsert(string(args[1]), value.Hash(nil), func(v *value.Value) error {
		if v.Kind != value.KindHash {
			return store.ErrWrongType
		}
		for i := 2; i < len(args); i += 2 {
			field := string(args[i])
			if _, ok := v.Hash[field]; !ok {
				created++
			}
			v.Hash[field] = string(args[i+1])
		}
		return nil
	})
	if err != nil {
		writeStoreError(c, err)
		return false
	}
	_ = WriteInteger(c.bw, created)
	return true
}

// HGET <key> <field>
func (h *commandHandler) cmdHGet(c *Conn, args [][]byte) bool {
	if len(args) != 3 {
		_ = WriteError(c.bw, errWrongArgs("HGET"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteNullBulk(c.bw)
		return true
	}
	if v.Kind != value.KindHash {
		_ = WriteError(c.bw, errWrongType)
		return false
	}
	val, ok := v.Hash[string(args[2])]
	if !ok {
		_ = WriteNullBulk(c.bw)
		return true
	}
	_ = WriteBulkString(c.bw, val)
	return true
}

// HDEL <key> <field> [field ...]
func (h *commandHandler) cmdHDel(c *Conn, args [][]byte) bool {
	if len(args) < 3 {
		_ = WriteError(c.bw, errWrongArgs("HDEL"))
		return false
	}
	key := string(args[1])

	removed := int64(0)
	out, existed, err := h.engine.Update(key, func(v *value.Value) error {
		if v.Kind != value.KindHash {
			return store.ErrWrongType
		}
		for _, raw := range args[2:] {
			field := string(raw)
			if _, ok := v.Hash[field]; ok {
				delete(v.Hash, field)
				removed++
			}
		}
		return nil
	})
	if err != nil {
		writeStoreError(c, err)
		return false
	}
	if existed && len(out.Hash) == 0 {
		h.engine.Delete(key)
	}
	_ = WriteInteger(c.bw, removed)
	return true
}

// HGETALL <key>
func (h *commandHandler) cmdHGetAll(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("HGETALL"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteArrayHeader(c.bw, 0)
		return true
	}
	if v.Kind != value.KindHash {
		_ = WriteError(c.bw, errWrongType)
		return false
	}

	fields := hashFields(v)
	_ = WriteArrayHeader(c.bw, len(fields)*2)
	for _, f := range fields {
		_ = WriteBulkString(c.bw, f)
		_ = WriteBulkString(c.bw, v.Hash[f])
	}
	return true
}

// HKEYS <key>
func (h *commandHandler) cmdHKeys(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("HKEYS"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteArrayHeader(c.bw, 0)
		return true
	}
	if v.Kind != value.KindHash {
		_ = WriteError(c.bw, errWrongType)
		return false
	}
	_ = WriteStringArray(c.bw, hashFields(v))
	return true
}

// HVALS <key>
func (h *commandHandler) cmdHVals(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("HVALS"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteArrayHeader(c.bw, 0)
		return true
	}
	if v.Kind != value.KindHash {
		_ = WriteError(c.bw, errWrongType)
		return false
	}
	fields := hashFields(v)
	vals := make([]string, 0, len(fields))
	for _, f := range fields {
		vals = append(vals, v.Hash[f])
	}
	_ = WriteStringArray(c.bw, vals)
	return true
}

// HLEN <key>
func (h *commandHandler) cmdHLen(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("HLEN"))
		return false
	}
	v, ok := h.engine.Get(string(args[1]))
	if !ok {
		_ = WriteInteger(c.bw, 0)
		return true
	}
	if v.Kind != value.KindHash {
		_ = WriteError(c.bw, errWrongType)
		return false
	}
	_ = WriteInteger(c.bw, int64(len(v.Hash)))
	return true
}

// hashFields returns the field names sorted, for stable reply ordering.
func hashFields(v value.Value) []string {
	fields := make([]string, 0, len(v.Hash))
	for f := range v.Hash {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// KEYS <pattern>
func (h *commandHandler) cmdKeys(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("KEYS"))
		return false
	}
	pattern := string(args[1])

	keys := h.engine.Keys()
	matched := make([]string, 0, len(keys))
	for _, key := range keys {
		if pubsub.MatchGlob(pattern, key) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	_ = WriteStringArray(c.bw, matched)
	return true
}

// TYPE <key>
func (h *commandHandler) cmdType(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("TYPE"))
		return false
	}
	kind, ok := h.engine.Type(string(args[1]))
	if !ok {
		_ = WriteSimpleString(c.bw, "none")
		return true
	}
	_ = WriteSimpleString(c.bw, kind.String())
	return true
}

// EXPIRE <key> <seconds>
func (h *commandHandler) cmdExpire(c *Conn, args [][]byte) bool {
	if len(args) != 3 {
		_ = WriteError(c.bw, errWrongArgs("EXPIRE"))
		return false
	}
	secs, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		_ = WriteError(c.bw, errNotInteger)
		return false
	}
	if secs <= 0 {
		// A non-positive TTL deletes immediately, as if expired.
		if h.engine.Delete(string(args[1])) {
			_ = WriteInteger(c.bw, 1)
		} else {
			_ = WriteInteger(c.bw, 0)
		}
		return true
	}
	if h.engine.Expire(string(args[1]), time.Duration(secs)*time.Second) {
		_ = WriteInteger(c.bw, 1)
	} else {
		_ = WriteInteger(c.bw, 0)
	}
	return true
}

// TTL <key>: -2 when missing, -1 when persistent, else remaining
// seconds rounded up.
func (h *commandHandler) cmdTTL(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("TTL"))
		return false
	}
	ttl, status := h.engine.TTL(string(args[1]))
	switch status {
	case store.TTLMissing:
		_ = WriteInteger(c.bw, -2)
	case store.TTLPersistent:
		_ = WriteInteger(c.bw, -1)
	default:
		_ = WriteInteger(c.bw, int64((ttl+time.Second-1)/time.Second))
	}
	return true
}

// PERSIST <key>
func (h *commandHandler) cmdPersist(c *Conn, args [][]byte) bool {
	if len(args) != 2 {
		_ = WriteError(c.bw, errWrongArgs("PERSIST"))
		return false
	}
	if h.engine.Persist(string(args[1])) {
		_ = WriteInteger(c.bw, 1)
	} else {
		_ = WriteInteger(c.bw, 0)
	}
	return true
}

func (h *commandHandler) cmdInfo(c *Conn) bool {
	budget, policy := h.engine.MemoryBudget()
	used := h.engine.MemoryUsage()

	var b strings.Builder
	fmt.Fprintf(&b, "# Server\r\n")
	fmt.Fprintf(&b, "emberdb_version:%s\r\n", serverVersion)
	fmt.Fprintf(&b, "mode:standalone\r\n")
	fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(h.startedAt).Seconds()))
	fmt.Fprintf(&b, "\r\n# Clients\r\n")
	fmt.Fprintf(&b, "connected_clients:%d\r\n", h.srv.ConnCount())
	fmt.Fprintf(&b, "\r\n# Memory\r\n")
	fmt.Fprintf(&b, "used_memory:%d\r\n", used)
	fmt.Fprintf(&b, "used_memory_human:%s\r\n", formatBytes(used))
	fmt.Fprintf(&b, "maxmemory:%d\r\n", budget)
	fmt.Fprintf(&b, "maxmemory_policy:%s\r\n", policy)
	fmt.Fprintf(&b, "evicted_keys:%d\r\n", h.engine.Evictions())
	fmt.Fprintf(&b, "\r\n# Persistence\r\n")
	fmt.Fprintf(&b, "rdb_last_save_time:%d\r\n", h.engine.LastSave())
	fmt.Fprintf(&b, "\r\n# Runtime\r\n")
	fmt.Fprintf(&b, "goroutines:%d\r\n", runtime.NumGoroutine())
	fmt.Fprintf(&b, "\r\n# Keyspace\r\n")
	fmt.Fprintf(&b, "db0:keys=%d\r\n", h.engine.Size())

	_ = WriteBulkString(c.bw, b.String())
	return true
}

func (h *commandHandler) cmdMemory(c *Conn) bool {
	used := h.engine.MemoryUsage()
	budget, policy := h.engine.MemoryBudget()

	var b strings.Builder
	fmt.Fprintf(&b, "used_memory:%d\r\n", used)
	fmt.Fprintf(&b, "used_memory_human:%s\r\n", formatBytes(used))
	fmt.Fprintf(&b, "maxmemory:%d\r\n", budget)
	fmt.Fprintf(&b, "maxmemory_policy:%s\r\n", policy)
	fmt.Fprintf(&b, "evicted_keys:%d\r\n", h.engine.Evictions())

	_ = WriteBulkString(c.bw, b.String())
	return true
}

func (h *commandHandler) cmdSave(c *Conn) bool {
	if err := h.snapshotTimed(); err != nil {
		_ = WriteError(c.bw, "ERR "+err.Error())
		return false
	}
	_ = WriteSimpleString(c.bw, "OK")
	return true
}

func (h *commandHandler) cmdBGSave(c *Conn) bool {
	go func() {
		if err := h.snapshotTimed(); err != nil {
			h.logger.Error("background save failed", "error", err)
		}
	}()
	_ = WriteSimpleString(c.bw, "Background saving started")
	return true
}

func (h *commandHandler) snapshotTimed() error {
	start := time.Now()
	err := h.engine.TriggerSnapshot()
	if h.metrics != nil {
		h.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		h.metrics.SnapshotsTotal.WithLabelValues(status).Inc()
	}
	return err
}

// formatBytes renders a byte count with binary-unit suffixes.
func formatBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.0f%s", size, units[i])
	}
	return fmt.Sprintf("%.2f%s", size, units[i])
}
