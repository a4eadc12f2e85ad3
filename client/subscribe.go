package client

import (
	"context"
	"net/http"

	"satellite/models"
	"satellite/reader"
)

// SubscribeTransmissions starts a background subscription to the
// transmissions stream and returns its handle. Events and disconnect notices
// are delivered to the handlers one at a time from a single goroutine. The
// subscription ends when ctx is cancelled or Stop is called on the handle.
func (c *Client) SubscribeTransmissions(ctx context.Context, onEvent func(models.TransmissionEvent), onDisconnect func(models.DisconnectNotice)) (*reader.TransmissionReader, error) {
	// The stream is long lived; only the per-request timeout is dropped.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)

	r := reader.NewTransmissionReader(reader.Config{
		URL:          c.baseURL + c.subscriber.Path,
		HTTPClient:   &streamClient,
		DefaultRetry: c.subscriber.DefaultRetry,
		MaxLineBytes: c.subscriber.MaxLineBytes,
		Header:       header,
	}, onEvent, onDisconnect)

	if err := r.Start(ctx); err != nil {
		return nil, err
	}
	return r, nil
}
