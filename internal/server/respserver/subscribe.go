package respserver

// Subscription command handlers. The subscriber object and its delivery
// pump are created lazily on the first SUBSCRIBE or PSUBSCRIBE.

func (h *commandHandler) ensureSubscriber(c *Conn) {
	if c.sub != nil {
		return
	}
	c.sub = h.broker.CreateSubscriber()
	h.srv.startPump(c)
}

// SUBSCRIBE <channel> [channel ...] / PSUBSCRIBE <pattern> [pattern ...]
func (h *commandHandler) cmdSubscribe(c *Conn, args [][]byte, patterns bool) bool {
	cmd := "SUBSCRIBE"
	if patterns {
		cmd = "PSUBSCRIBE"
	}
	if len(args) < 2 {
		_ = WriteError(c.bw, errWrongArgs(cmd))
		return false
	}
	h.ensureSubscriber(c)

	for _, raw := range args[1:] {
		name := string(raw)
		var count int
		if patterns {
			n, err := h.broker.PSubscribe(c.sub, name)
			if err != nil {
				_ = WriteError(c.bw, "ERR invalid pattern")
				return false
			}
			count = n
		} else {
			count = h.broker.Subscribe(c.sub, name)
		}
		writeSubscribeReply(c, subscribeVerb(cmd), name, count)
	}
	return true
}

// UNSUBSCRIBE [channel ...] / PUNSUBSCRIBE [pattern ...]. With no
// arguments, all current subscriptions of that flavor are dropped.
func (h *commandHandler) cmdUnsubscribe(c *Conn, args [][]byte, patterns bool) bool {
	verb := "unsubscribe"
	if patterns {
		verb = "punsubscribe"
	}
	if c.sub == nil {
		// Never subscribed; reply once with a nil channel.
		writeSubscribeReplyNil(c, verb, 0)
		return true
	}

	names := make([]string, 0, len(args)-1)
	for _, raw := range args[1:] {
		names = append(names, string(raw))
	}
	if len(names) == 0 {
		if patterns {
			names = h.broker.Patterns(c.sub)
		} else {
			names = h.broker.Channels(c.sub)
		}
	}
	if len(names) == 0 {
		writeSubscribeReplyNil(c, verb, h.broker.Count(c.sub))
		return true
	}

	for _, name := range names {
		var count int
		if patterns {
			count = h.broker.PUnsubscribe(c.sub, name)
		} else {
			count = h.broker.Unsubscribe(c.sub, name)
		}
		writeSubscribeReply(c, verb, name, count)
	}
	return true
}

// PUBLISH <channel> <message>
func (h *commandHandler) cmdPublish(c *Conn, args [][]byte) bool {
	if len(args) != 3 {
		_ = WriteError(c.bw, errWrongArgs("PUBLISH"))
		return false
	}
	delivered := h.broker.Publish(string(args[1]), string(args[2]))
	if h.metrics != nil && delivered > 0 {
		h.metrics.PubSubDeliveries.Add(float64(delivered))
	}
	_ = WriteInteger(c.bw, int64(delivered))
	return true
}

func subscribeVerb(cmd string) string {
	if cmd == "PSUBSCRIBE" {
		return "psubscribe"
	}
	return "subscribe"
}

func writeSubscribeReply(c *Conn, verb, name string, count int) {
	_ = WriteArrayHeader(c.bw, 3)
	_ = WriteBulkString(c.bw, verb)
	_ = WriteBulkString(c.bw, name)
	_ = WriteInteger(c.bw, int64(count))
}

func writeSubscribeReplyNil(c *Conn, verb string, count int) {
	_ = WriteArrayHeader(c.bw, 3)
	_ = WriteBulkString(c.bw, verb)
	_ = WriteNullBulk(c.bw)
	_ = WriteInteger(c.bw, int64(count))
}
