package client

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/electwix/surrealcache/internal/surql"
)

// Live starts a live query on table and returns its id. Notifications for
// it invalidate table's cached results while the policy asks for it.
//
// The server may notify before the call returns the id. Notifications for
// unknown ids that arrive while a Live call is in flight are held and
// applied once their id registers; the rest are dropped when no Live call
// is left in flight.
func (c *Client) Live(ctx context.Context, table string, diff bool) (string, error) {
	c.mu.Lock()
	c.registering++
	c.mu.Unlock()

	raw, err := c.call(ctx, "live", table, diff)
	var id string
	if err == nil {
		if uerr := json.Unmarshal(raw, &id); uerr != nil {
			err = fmt.Errorf("decode live query id: %w", uerr)
		}
	}

	target := surql.TableFromTarget(table)
	if changed := c.register(id, target, err == nil); changed {
		c.react(ctx, target)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// register ends one in-flight Live call and, when ok, records id. It
// reports whether changes to the table were held for id. A held CLOSE
// means the subscription already ended, so id is not recorded.
func (c *Client) register(id, table string, ok bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	held := c.held[id]
	delete(c.held, id)
	c.registering--
	if c.registering == 0 {
		clear(c.held)
	}
	if !ok {
		return false
	}

	if !slices.ContainsFunc(held, isClose) {
		c.live[id] = table
	}
	return slices.ContainsFunc(held, func(n Notification) bool { return !isClose(n) })
}

func isClose(n Notification) bool {
	return n.Action == ActionClose
}

// Kill stops the live query id.
func (c *Client) Kill(ctx context.Context, id string) error {
	if _, err := c.call(ctx, "kill", id); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.live, id)
	c.mu.Unlock()
	return nil
}

// LiveQueries returns the number of active subscriptions.
func (c *Client) LiveQueries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Listen handles notifications from the transport until ctx is done or the
// channel closes. It returns ctx.Err() on cancellation and nil otherwise.
func (c *Client) Listen(ctx context.Context) error {
	ch := c.transport.Notifications()
	if ch == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			c.HandleNotification(ctx, n)
		}
	}
}

// HandleNotification applies one live query notification to the cache.
// CLOSE ends the subscription without touching cached data. Notifications
// for unknown subscriptions are forwarded but otherwise ignored, unless a
// Live call is still waiting for its id.
func (c *Client) HandleNotification(ctx context.Context, n Notification) {
	c.mu.Lock()
	table, known := c.live[n.ID]
	hold := !known && c.registering > 0
	switch {
	case hold:
		c.held[n.ID] = append(c.held[n.ID], n)
	case n.Action == ActionClose:
		delete(c.live, n.ID)
	}
	c.mu.Unlock()

	switch {
	case hold:
		c.logger.Debug("holding notification until live query registers", "id", n.ID)
	case n.Action == ActionClose:
		c.logger.Debug("live query closed", "id", n.ID, "table", table)
	case !known:
		c.logger.Debug("notification for unknown live query", "id", n.ID)
	default:
		c.react(ctx, table)
	}

	if c.handler != nil {
		c.handler(n)
	}
}

// react invalidates table for a change notification when the policy asks
// for it.
func (c *Client) react(ctx context.Context, table string) {
	if c.engine != nil && c.engine.Policy().InvalidateOnLiveQuery {
		c.invalidate(ctx, table)
	}
}
