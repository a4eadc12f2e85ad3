package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"satellite/models"
)

const (
	infoPath    = "/info"
	messagePath = "/message/%d"
)

// Info returns details of the lightning node terminating API payments.
func (c *Client) Info(ctx context.Context) (*models.Info, error) {
	info, err := doJSON[models.Info](ctx, c, request{
		method: http.MethodGet,
		path:   infoPath,
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// RetrieveMessage opens the raw content of a transmitted message. The
// caller must close the returned reader.
func (c *Client) RetrieveMessage(ctx context.Context, txSeqNum int64) (io.ReadCloser, error) {
	if txSeqNum <= 0 {
		return nil, &ValidationError{Field: "num", Reason: "must be greater than 0"}
	}
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf(messagePath, txSeqNum),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
