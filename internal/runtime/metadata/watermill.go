package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill converts Watermill metadata into RPC metadata.
func FromWatermill(md message.Metadata) Metadata {
	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// Apply copies the metadata onto a Watermill message.
func (m Metadata) Apply(msg *message.Message) {
	if msg.Metadata == nil {
		msg.Metadata = make(message.Metadata, len(m))
	}
	for k, v := range m {
		msg.Metadata.Set(k, v)
	}
}
