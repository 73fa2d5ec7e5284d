package service

import "time"

// MaxRetryLimit caps Policy.MaxRetries.
const MaxRetryLimit = 5

// DefaultFollowupTemplate is sent to recipients who stayed silent.
const DefaultFollowupTemplate = "Hi {name}, just a quick follow-up - any questions about our program?"

// Policy holds the time and count limits of the reconciliation engine.
type Policy struct {
	MaxRetries       int
	RetryBackoff     time.Duration
	ReplyWindow      time.Duration
	FollowupDelay    time.Duration
	FollowupTemplate string
}

// DefaultPolicy returns the standard limits: 5 retries one minute apart, replies
// checked for one hour after sending, a follow-up after ten minutes of silence.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:       MaxRetryLimit,
		RetryBackoff:     time.Minute,
		ReplyWindow:      time.Hour,
		FollowupDelay:    10 * time.Minute,
		FollowupTemplate: DefaultFollowupTemplate,
	}
}

// withDefaults fills every zero field from DefaultPolicy and caps MaxRetries
// at MaxRetryLimit.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.MaxRetries > MaxRetryLimit {
		p.MaxRetries = MaxRetryLimit
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = d.RetryBackoff
	}
	if p.ReplyWindow <= 0 {
		p.ReplyWindow = d.ReplyWindow
	}
	if p.FollowupDelay <= 0 {
		p.FollowupDelay = d.FollowupDelay
	}
	if p.FollowupTemplate == "" {
		p.FollowupTemplate = d.FollowupTemplate
	}
	return p
}
