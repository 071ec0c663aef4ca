package ratelimit

import "time"

// Bucket is a named admission policy: at most MaxRequests per Window for
// each caller.
type Bucket struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

var (
	Auth    = Bucket{Name: "auth", MaxRequests: 5, Window: 15 * time.Minute}
	Payment = Bucket{Name: "payment", MaxRequests: 10, Window: time.Minute}
	AI      = Bucket{Name: "ai", MaxRequests: 10, Window: time.Minute}
	API     = Bucket{Name: "api", MaxRequests: 100, Window: time.Minute}
	Webhook = Bucket{Name: "webhook", MaxRequests: 100, Window: time.Minute}
	Cron    = Bucket{Name: "cron", MaxRequests: 5, Window: time.Minute}
)

func Buckets() []Bucket {
	return []Bucket{Auth, Payment, AI, API, Webhook, Cron}
}

func (b Bucket) key(identifier string) string {
	return b.Name + ":" + identifier
}
