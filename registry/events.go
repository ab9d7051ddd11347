package registry

import (
	"context"

	"rpsserver/models"
)

// Publisher receives notifications after the transition that produced them
// has been committed. Errors are logged, never rolled back.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

type PublisherFunc func(ctx context.Context, ev models.Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev models.Event) error {
	return f(ctx, ev)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.Event) error { return nil }
