package hub

import (
	"encoding/json"

	"github.com/pusher/pusher-http-go/v5"
)

// PusherSubscriber mirrors hub events onto a Pusher channel so a hosted
// frontend can follow the game without a direct socket to this process.
type PusherSubscriber struct {
	client  *pusher.Client
	channel string
}

func NewPusherSubscriber(client *pusher.Client, channel string) *PusherSubscriber {
	return &PusherSubscriber{
		client:  client,
		channel: channel,
	}
}

func (s *PusherSubscriber) Send(data []byte) error {
	var event Event

	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}

	return s.client.Trigger(s.channel, event.Type, event.Data)
}
