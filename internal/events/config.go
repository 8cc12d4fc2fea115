package events

import "time"

type Config struct {
	Enabled          bool
	Brokers          []string
	Topic            string
	GroupID          string
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool
	// QueueSize bounds the publisher buffer; events beyond it are dropped.
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = "facility-changes"
	}
	if c.GroupID == "" {
		c.GroupID = "facility-cache-invalidator"
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
	if c.RebalanceTimeout <= 0 {
		c.RebalanceTimeout = 30 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	return c
}
