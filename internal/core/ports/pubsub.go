package ports

const AnyTopic = "*"
const UnspecifiedTopic = ""

type Subscription interface {
	Topic() string
	Id() string
	IsSecured() bool
	NotifyAt() string
}

// SecurePubSub defines the methods of a pubsub service notifying external
// endpoints. Deliveries to secured subscriptions carry a token signed with
// the subscription secret.
type SecurePubSub interface {
	// Subscribe adds a new subscription for the requested topic.
	Subscribe(topic, endpoint, secret string) (string, error)
	// Unsubscribe removes some client defined by its id for a topic.
	Unsubscribe(topic, id string) error
	// ListSubscriptionsForTopic returns the info of all clients subscribed for
	// a certain topic, including those subscribed for any topic. The
	// unspecified topic lists every subscription.
	ListSubscriptionsForTopic(topic string) ([]Subscription, error)
	// Publish publishes a message for a certain topic. All clients subscribed
	// for such topic will receive the message.
	Publish(topic string, message string) error
}
