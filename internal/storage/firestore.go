package storage

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/phonego-ryong/holyDayBot/internal/models"
)

// Client is the reservation store adapter. Each table maps to one Firestore
// collection; documents are keyed by the decimal day key and hold the roster
// under the "message" field.
type Client struct {
	client      *firestore.Client
	collections map[models.Table]string
}

func New(ctx context.Context, projectID, dayOfCollection, dayBeforeCollection string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{
		client: client,
		collections: map[models.Table]string{
			models.TableDayOf:     dayOfCollection,
			models.TableDayBefore: dayBeforeCollection,
		},
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// DocID is the document ID used for a day key.
func DocID(day int64) string {
	return strconv.FormatInt(day, 10)
}

func (c *Client) doc(table models.Table, day int64) (*firestore.DocumentRef, error) {
	name, ok := c.collections[table]
	if !ok {
		return nil, fmt.Errorf("unknown reservation table %q", table)
	}
	return c.client.Collection(name).Doc(DocID(day)), nil
}

// GetReservation is a point lookup; returns (nil, nil) when no roster exists
// for the key.
func (c *Client) GetReservation(ctx context.Context, table models.Table, day int64) (*models.Reservation, error) {
	docRef, err := c.doc(table, day)
	if err != nil {
		return nil, err
	}
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reservation %s/%d: %w", table, day, err)
	}
	if !doc.Exists() {
		return nil, nil
	}

	var res models.Reservation
	if err := doc.DataTo(&res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reservation %s/%d: %w", table, day, err)
	}
	return &res, nil
}

// PutReservation upserts the whole roster for the key, replacing any
// previous entry list. Callers must not pass an empty list; an emptied
// roster is deleted via DeleteReservation instead.
func (c *Client) PutReservation(ctx context.Context, table models.Table, day int64, entries []string) error {
	docRef, err := c.doc(table, day)
	if err != nil {
		return err
	}
	if _, err := docRef.Set(ctx, models.Reservation{Day: day, Entries: entries}); err != nil {
		return fmt.Errorf("failed to put reservation %s/%d: %w", table, day, err)
	}
	return nil
}

// DeleteReservation removes the roster for the key. Deleting an absent
// document is not an error.
func (c *Client) DeleteReservation(ctx context.Context, table models.Table, day int64) error {
	docRef, err := c.doc(table, day)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete reservation %s/%d: %w", table, day, err)
	}
	return nil
}

// ListUpcoming returns up to limit rosters with a day key at or after from,
// ordered by day. Backs the operator roster endpoint, not the reconciliation
// path.
func (c *Client) ListUpcoming(ctx context.Context, table models.Table, from int64, limit int) ([]models.Reservation, error) {
	name, ok := c.collections[table]
	if !ok {
		return nil, fmt.Errorf("unknown reservation table %q", table)
	}

	iter := c.client.Collection(name).
		Where("day", ">=", from).
		OrderBy("day", firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []models.Reservation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s reservations: %w", table, err)
		}
		var res models.Reservation
		if err := doc.DataTo(&res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reservation %s/%s: %w", table, doc.Ref.ID, err)
		}
		out = append(out, res)
	}
	return out, nil
}
