package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"satellite/client"
)

type createOrderCmd struct {
	bid      int64
	filePath string
	message  string
}

func (c *createOrderCmd) description() string {
	return "Place an order for a message transmission"
}

func (c *createOrderCmd) register(fs *flag.FlagSet) {
	fs.Int64Var(&c.bid, "bid", 0, "Bid in millisatoshis")
	fs.StringVar(&c.filePath, "filepath", "", "Path of the file to transmit")
	fs.StringVar(&c.message, "message", "", "Text message to transmit")
}

func (c *createOrderCmd) validate(fs *flag.FlagSet) error {
	hasFile, hasMessage := isSet(fs, "filepath"), isSet(fs, "message")
	switch {
	case hasFile && hasMessage:
		return usagef("Options '--filepath' and '--message' cannot be used together.")
	case !hasFile && !hasMessage:
		return usagef("Options '--filepath' or '--message' must be set.")
	case !isSet(fs, "bid"):
		return usagef("Option '--bid' must be set.")
	}
	return nil
}

func (c *createOrderCmd) run(r *runner) error {
	invoice, err := r.client.CreateOrder(r.ctx, client.OrderRequest{
		Bid:      c.bid,
		FilePath: c.filePath,
		Message:  c.message,
	})
	if err != nil {
		return err
	}
	return r.printer.Print(invoice)
}

// orderAuthFlags are shared by the commands acting on an existing order.
type orderAuthFlags struct {
	orderID   string
	authToken string
}

func (o *orderAuthFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&o.orderID, "orderid", "", "Order UUID")
	fs.StringVar(&o.authToken, "authtoken", "", "Order authentication token")
}

func (o *orderAuthFlags) validate(fs *flag.FlagSet) error {
	if !isSet(fs, "orderid") || !isSet(fs, "authtoken") {
		return usagef("Options '--orderid' and '--authtoken' must be set.")
	}
	return nil
}

type cancelOrderCmd struct{ orderAuthFlags }

func (c *cancelOrderCmd) description() string { return "Cancel an order" }

func (c *cancelOrderCmd) run(r *runner) error {
	cancelled, err := r.client.CancelOrder(r.ctx, c.orderID, c.authToken)
	if err != nil {
		return err
	}
	if cancelled {
		fmt.Fprintln(r.stdout, "Order cancelled")
	} else {
		fmt.Fprintln(r.stdout, "Order has not been cancelled")
	}
	return nil
}

type getOrderCmd struct{ orderAuthFlags }

func (c *getOrderCmd) description() string { return "Retrieve an order" }

func (c *getOrderCmd) run(r *runner) error {
	order, err := r.client.GetOrder(r.ctx, c.orderID, c.authToken)
	if err != nil {
		return err
	}
	return r.printer.Print(order)
}

type bumpOrderCmd struct {
	orderAuthFlags
	amount int64
}

func (c *bumpOrderCmd) description() string {
	return "Increase the bid for an order sitting in the transmission queue"
}

func (c *bumpOrderCmd) register(fs *flag.FlagSet) {
	c.orderAuthFlags.register(fs)
	fs.Int64Var(&c.amount, "amount", 0, "Bid increase in millisatoshis")
}

func (c *bumpOrderCmd) validate(fs *flag.FlagSet) error {
	if !isSet(fs, "orderid") || !isSet(fs, "authtoken") || !isSet(fs, "amount") {
		return usagef("Options '--orderid', '--authtoken' and '--amount' must be set.")
	}
	return nil
}

func (c *bumpOrderCmd) run(r *runner) error {
	invoice, err := r.client.BumpBid(r.ctx, c.orderID, c.authToken, c.amount)
	if err != nil {
		return err
	}
	return r.printer.Print(invoice)
}

type queuedOrdersCmd struct {
	limit    int
	limitSet bool
}

func (c *queuedOrdersCmd) description() string {
	return "Retrieve a list of paid, but unsent orders in descending order of bid-per-byte"
}

func (c *queuedOrdersCmd) register(fs *flag.FlagSet) {
	fs.IntVar(&c.limit, "limit", 0, "(optional) Specifies the limit of queued orders to return")
}

func (c *queuedOrdersCmd) validate(fs *flag.FlagSet) error {
	c.limitSet = isSet(fs, "limit")
	return nil
}

func (c *queuedOrdersCmd) run(r *runner) error {
	var limit *int
	if c.limitSet {
		limit = &c.limit
	}
	orders, err := r.client.QueuedOrders(r.ctx, limit)
	if err != nil {
		return err
	}
	return r.printer.Print(orders)
}

// listBeforeCmd serves both sent-orders and pending-orders.
type listBeforeCmd struct {
	pending bool
	raw     string
	before  *time.Time
}

func (c *listBeforeCmd) description() string {
	if c.pending {
		return "Retrieve a list of 20 orders awaiting payment sorted in reverse chronological order"
	}
	return "Retrieve a list of 20 paid orders sorted in reverse chronological order"
}

func (c *listBeforeCmd) register(fs *flag.FlagSet) {
	fs.StringVar(&c.raw, "before", "", "(optional) The 20 orders immediately prior to the given date will be returned")
}

func (c *listBeforeCmd) validate(fs *flag.FlagSet) error {
	if !isSet(fs, "before") {
		return nil
	}
	t, err := parseBefore(c.raw)
	if err != nil {
		return err
	}
	c.before = &t
	return nil
}

func (c *listBeforeCmd) run(r *runner) error {
	list := r.client.SentOrders
	if c.pending {
		list = r.client.PendingOrders
	}
	orders, err := list(r.ctx, c.before)
	if err != nil {
		return err
	}
	return r.printer.Print(orders)
}

var beforeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseBefore accepts a timestamp or a date. Values without a zone are UTC.
func parseBefore(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range beforeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, usagef("Option '--before' must be a date (YYYY-MM-DD) or an RFC 3339 timestamp, got '%s'.", raw)
}

type messageCmd struct {
	num int64
}

func (c *messageCmd) description() string { return "Retrieve the message sent in an order" }

func (c *messageCmd) register(fs *flag.FlagSet) {
	fs.Int64Var(&c.num, "num", 0, "The message number")
}

func (c *messageCmd) validate(fs *flag.FlagSet) error {
	if !isSet(fs, "num") {
		return usagef("Options '--num' must be set.")
	}
	return nil
}

func (c *messageCmd) run(r *runner) error {
	body, err := r.client.RetrieveMessage(r.ctx, c.num)
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := io.Copy(r.stdout, body); err != nil {
		return fmt.Errorf("read message %d: %w", c.num, err)
	}
	return nil
}

type infoCmd struct{}

func (c *infoCmd) description() string {
	return "Return information about the c-lightning node where satellite API payments are terminated"
}

func (c *infoCmd) register(*flag.FlagSet) {}

func (c *infoCmd) validate(*flag.FlagSet) error { return nil }

func (c *infoCmd) run(r *runner) error {
	info, err := r.client.Info(r.ctx)
	if err != nil {
		return err
	}
	return r.printer.Print(info)
}
