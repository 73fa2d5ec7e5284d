package cache

import "fmt"

type Prefix string

const (
	// SentMessages indexes provider sends by provider message id.
	SentMessages Prefix = "sent_messages"
	// Stats holds cached dashboard statistics.
	Stats Prefix = "stats"
	// Counters holds monotonic counters.
	Counters Prefix = "counters"
)

func (p Prefix) Key(id string) string {
	return fmt.Sprintf("%s:%s", p, id)
}

// Well-known keys.
var (
	StatsKey        = Stats.Key("messages")
	SendAttemptsKey = Counters.Key("send_attempts")
)
