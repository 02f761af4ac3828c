package codec

import "strings"

// TopicScheme derives transport topics from channel names. A channel maps to
// RequestPrefix+channel for requests and ResponsePrefix+channel for responses.
type TopicScheme struct {
	RequestPrefix  string
	ResponsePrefix string
}

// DefaultTopicScheme uses "request-" and "response-".
func DefaultTopicScheme() TopicScheme {
	return TopicScheme{RequestPrefix: "request-", ResponsePrefix: "response-"}
}

func (s TopicScheme) RequestTopic(channel string) string {
	return s.RequestPrefix + channel
}

func (s TopicScheme) ResponseTopic(channel string) string {
	return s.ResponsePrefix + channel
}

// ChannelFromTopic strips the request or response prefix from topic. The
// second return value is false when topic follows neither convention.
func (s TopicScheme) ChannelFromTopic(topic string) (string, bool) {
	if channel, ok := strings.CutPrefix(topic, s.RequestPrefix); ok && channel != "" {
		return channel, true
	}
	if channel, ok := strings.CutPrefix(topic, s.ResponsePrefix); ok && channel != "" {
		return channel, true
	}
	return "", false
}
