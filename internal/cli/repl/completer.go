package repl

import "strings"

// Completer suggests command names for a typed prefix.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over the server command surface.
func NewCompleter() *Completer {
	return &Completer{
		commands: []string{
			"GET", "SET", "SETEX", "DEL", "EXISTS", "INCR", "DECR",
			"LPUSH", "RPUSH", "LPOP", "RPOP", "LLEN", "LRANGE",
			"SADD", "SREM", "SMEMBERS", "SCARD", "SISMEMBER",
			"HSET", "HGET", "HDEL", "HGETALL", "HKEYS", "HVALS", "HLEN",
			"KEYS", "TYPE", "EXPIRE", "TTL", "PERSIST", "FLUSHALL", "DBSIZE",
			"PING", "ECHO", "AUTH", "INFO", "MEMORY", "QUIT",
			"SUBSCRIBE", "UNSUBSCRIBE", "PSUBSCRIBE", "PUNSUBSCRIBE", "PUBLISH",
			"SAVE", "BGSAVE",
		},
	}
}

// Commands returns all known command names.
func (c *Completer) Commands() []string {
	return c.commands
}

// Complete returns command names matching the prefix, case-insensitive.
func (c *Completer) Complete(prefix string) []string {
	upper := strings.ToUpper(prefix)
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, upper) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
