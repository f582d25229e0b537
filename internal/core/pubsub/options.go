package pubsub

import "time"

// PublisherOptions configures publisher behavior.
type PublisherOptions struct {
	// SubjectPrefix is prepended to all subjects.
	SubjectPrefix string

	// OnPublish is called after each publish attempt (for metrics).
	OnPublish func(subject string, err error, latency time.Duration)
}

// ConsumerOptions configures consumer behavior.
type ConsumerOptions struct {
	// FilterSubject filters messages by subject pattern.
	// Supports "*" (one token) and ">" (one or more trailing tokens).
	FilterSubject string

	// ChannelBufSize is the buffer size for the message channel.
	ChannelBufSize int
}

// DefaultConsumerOptions returns ConsumerOptions with sensible defaults.
func DefaultConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		ChannelBufSize: 100,
	}
}

// FullSubject joins prefix and subject with a dot.
func FullSubject(prefix, subject string) string {
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}
