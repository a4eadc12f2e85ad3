package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"satellite/models"
)

const (
	createOrderPath   = "/order"
	orderPath         = "/order/%s"
	bumpOrderPath     = "/order/%s/bump"
	queuedOrdersPath  = "/orders/queued"
	sentOrdersPath    = "/orders/sent"
	pendingOrdersPath = "/orders/pending"

	cancelledMessage = "order cancelled"
)

// OrderRequest is the input of CreateOrder. Exactly one of FilePath and
// Message must be set.
type OrderRequest struct {
	Bid      int64
	FilePath string
	Message  string
}

func (r OrderRequest) validate() error {
	if r.FilePath == "" && r.Message == "" {
		return &ValidationError{Field: "order", Reason: "a message or a file must be set"}
	}
	if r.FilePath != "" && r.Message != "" {
		return &ValidationError{Field: "order", Reason: "only one of message or file can be sent"}
	}
	if r.Bid <= 0 {
		return &ValidationError{Field: "bid", Reason: "must be greater than 0"}
	}
	if r.FilePath != "" && looksLikeURL(r.FilePath) {
		return &ValidationError{Field: "filepath", Reason: fmt.Sprintf("the path '%s' is not a valid path", r.FilePath)}
	}
	return nil
}

// looksLikeURL reports whether path is an absolute URI of any scheme. A
// single letter scheme is a Windows drive, not a URI.
func looksLikeURL(path string) bool {
	u, err := url.Parse(path)
	return err == nil && u.IsAbs() && len(u.Scheme) > 1
}

// CreateOrder places an order and returns the invoice to pay for it.
func (c *Client) CreateOrder(ctx context.Context, order OrderRequest) (*models.Invoice, error) {
	if err := order.validate(); err != nil {
		return nil, err
	}

	var (
		body        io.Reader
		contentType string
	)
	if order.FilePath != "" {
		f, err := os.Open(order.FilePath)
		if err != nil {
			return nil, &ValidationError{Field: "filepath", Reason: "cannot open file", Err: err}
		}
		defer f.Close()
		body, contentType = streamFileForm(order.Bid, filepath.Base(order.FilePath), f)
	} else {
		var err error
		body, contentType, err = buildForm(map[string]string{
			"bid":     strconv.FormatInt(order.Bid, 10),
			"message": order.Message,
		})
		if err != nil {
			return nil, err
		}
	}

	invoice, err := doJSON[models.Invoice](ctx, c, request{
		method:      http.MethodPost,
		path:        createOrderPath,
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// BumpBid raises the bid of a queued order by bidIncrease.
func (c *Client) BumpBid(ctx context.Context, orderID, authToken string, bidIncrease int64) (*models.Invoice, error) {
	id, err := validateOrderAuth(orderID, authToken)
	if err != nil {
		return nil, err
	}
	if bidIncrease <= 0 {
		return nil, &ValidationError{Field: "bid_increase", Reason: "must be greater than 0"}
	}

	body, contentType, err := buildForm(map[string]string{
		"bid_increase": strconv.FormatInt(bidIncrease, 10),
	})
	if err != nil {
		return nil, err
	}

	invoice, err := doJSON[models.Invoice](ctx, c, request{
		method:      http.MethodPost,
		path:        fmt.Sprintf(bumpOrderPath, id),
		authToken:   authToken,
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetOrder fetches one order.
func (c *Client) GetOrder(ctx context.Context, orderID, authToken string) (*models.Order, error) {
	id, err := validateOrderAuth(orderID, authToken)
	if err != nil {
		return nil, err
	}

	order, err := doJSON[models.Order](ctx, c, request{
		method:    http.MethodGet,
		path:      fmt.Sprintf(orderPath, id),
		authToken: authToken,
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels an unpaid or queued order. It reports whether the
// server acknowledged the cancellation.
func (c *Client) CancelOrder(ctx context.Context, orderID, authToken string) (bool, error) {
	id, err := validateOrderAuth(orderID, authToken)
	if err != nil {
		return false, err
	}

	result, err := doJSON[models.MessageResponse](ctx, c, request{
		method:    http.MethodDelete,
		path:      fmt.Sprintf(orderPath, id),
		authToken: authToken,
	})
	if err != nil {
		return false, err
	}
	return result.Message == cancelledMessage, nil
}

// QueuedOrders lists paid, unsent orders by descending bid per byte. A nil
// limit leaves the page size to the server.
func (c *Client) QueuedOrders(ctx context.Context, limit *int) ([]models.Order, error) {
	query := url.Values{}
	if limit != nil {
		if *limit <= 0 {
			return nil, &ValidationError{Field: "limit", Reason: "must be greater than 0"}
		}
		query.Set("limit", strconv.Itoa(*limit))
	}
	return doJSON[[]models.Order](ctx, c, request{
		method: http.MethodGet,
		path:   queuedOrdersPath,
		query:  query,
	})
}

// SentOrders lists paid orders in reverse chronological order, optionally
// only those before a point in time.
func (c *Client) SentOrders(ctx context.Context, before *time.Time) ([]models.Order, error) {
	return c.listBefore(ctx, sentOrdersPath, before)
}

// PendingOrders lists orders awaiting payment in reverse chronological order.
func (c *Client) PendingOrders(ctx context.Context, before *time.Time) ([]models.Order, error) {
	return c.listBefore(ctx, pendingOrdersPath, before)
}

func (c *Client) listBefore(ctx context.Context, path string, before *time.Time) ([]models.Order, error) {
	query := url.Values{}
	if before != nil {
		query.Set("before", before.Format(time.RFC3339Nano))
	}
	return doJSON[[]models.Order](ctx, c, request{
		method: http.MethodGet,
		path:   path,
		query:  query,
	})
}

func validateOrderAuth(orderID, authToken string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", &ValidationError{Field: "order_id", Reason: "must be set"}
	}
	id, err := uuid.Parse(orderID)
	if err != nil {
		return "", &ValidationError{Field: "order_id", Reason: "must be a UUID", Err: err}
	}
	if strings.TrimSpace(authToken) == "" {
		return "", &ValidationError{Field: "auth_token", Reason: "must be set"}
	}
	return id.String(), nil
}

func buildForm(fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// streamFileForm encodes bid and the file as multipart without holding the
// file in memory. The pipe is closed with the copy error, if any.
func streamFileForm(bid int64, name string, file io.Reader) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if err := mw.WriteField("bid", strconv.FormatInt(bid, 10)); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", name)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}
