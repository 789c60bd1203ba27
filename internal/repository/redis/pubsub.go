package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/tripslot/internal/domain"
)

// SlotChange is broadcast after every committed capacity or status change.
type SlotChange struct {
	ListingID string            `json:"listing_id"`
	SlotID    string            `json:"slot_id"`
	Status    domain.SlotStatus `json:"status"`
	Capacity  int               `json:"capacity"`
	Booked    int               `json:"booked"`
	Available int               `json:"available"`
	TsUnix    int64             `json:"ts_unix"`
}

func NewSlotChange(s domain.Slot, tsUnix int64) SlotChange {
	return SlotChange{
		ListingID: s.ListingID,
		SlotID:    s.ID,
		Status:    s.Status,
		Capacity:  s.Capacity,
		Booked:    s.Booked,
		Available: s.Available(),
		TsUnix:    tsUnix,
	}
}

type SlotEvents struct {
	rdb     redis.UniversalClient
	channel string
}

func NewSlotEvents(rdb redis.UniversalClient) *SlotEvents {
	return &SlotEvents{
		rdb:     rdb,
		channel: ChannelSlotsChanged(),
	}
}

// Publish is a no-op on a nil receiver.
func (p *SlotEvents) Publish(ctx context.Context, ch SlotChange) error {
	if p == nil {
		return nil
	}

	b, err := json.Marshal(ch)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe blocks, calling handler for every change until ctx is done.
func (p *SlotEvents) Subscribe(ctx context.Context, handler func(ctx context.Context, ch SlotChange)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	msgs := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			var ch SlotChange
			if err := json.Unmarshal([]byte(m.Payload), &ch); err == nil && ch.SlotID != "" {
				handler(ctx, ch)
			}
		}
	}
}
