package relay

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// PubSubTopics opens ordered publishers on client.
func PubSubTopics(client publisherSource) Topics {
	return func(name string) Topic {
		pub := client.Publisher(name)
		if pub == nil {
			return nil
		}
		pub.EnableMessageOrdering = true
		return orderedTopic{pub}
	}
}

type orderedTopic struct {
	pub *gcppubsub.Publisher
}

func (t orderedTopic) Publish(ctx context.Context, msg *gcppubsub.Message) Result {
	return t.pub.Publish(ctx, msg)
}

func (t orderedTopic) ResumePublish(key string) { t.pub.ResumePublish(key) }

func (t orderedTopic) Stop() { t.pub.Stop() }
