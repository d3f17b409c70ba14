package amqp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/singleflight"

	"quotesheet/internal/log"
	"quotesheet/internal/sheets"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	dialTimeout    = 5 * time.Second
	heartbeat      = 10 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

var _ sheets.ChangeNotifier = (*Client)(nil)

type Client struct {
	url          string
	exchangeName string
	queueName    string

	// dial opens the TCP connection; nil uses amqp091.DefaultDial with
	// dialTimeout, which also bounds the AMQP handshake.
	dial        func(network, addr string) (net.Conn, error)
	dialTimeout time.Duration

	mu         sync.Mutex
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	reconnects singleflight.Group

	state        int32
	failureCount int64
	failMu       sync.Mutex
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		dialTimeout:  dialTimeout,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	dial := c.dial
	if dial == nil {
		timeout := c.dialTimeout
		if timeout <= 0 {
			timeout = dialTimeout
		}
		dial = amqp091.DefaultDial(timeout)
	}
	conn, err := amqp091.DialConfig(c.url, amqp091.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      dial,
	})
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	return nil
}

func setup(channel *amqp091.Channel, exchangeName, queueName string) error {
	err := channel.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key is the queue name, as usual for a direct exchange.
	err = channel.QueueBind(queueName, queueName, exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// SheetChanged implements sheets.ChangeNotifier.
func (c *Client) SheetChanged(ctx context.Context, change sheets.Change) error {
	return c.PublishSheetChanged(ctx, NewSheetChangedMessage(change))
}

// PublishSheetChanged publishes one change event. Repeated connection
// failures open the circuit and further publishes fail fast until
// openTimeout has passed.
func (c *Client) PublishSheetChanged(ctx context.Context, msg *SheetChangedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish sheet change: %w", ErrCircuitOpen)
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil || channel.IsClosed() {
		if err := c.reconnect(); err != nil {
			c.recordFailure()
			return err
		}
		c.mu.Lock()
		channel = c.channel
		c.mu.Unlock()
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = channel.PublishWithContext(
		pubCtx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			c.recordFailure()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	log.FromContext(ctx).WithComponent(log.ComponentAMQP).DebugContext(ctx, "Published sheet change",
		log.FieldSheetID, msg.SheetID,
		log.FieldOperation, msg.Op,
		log.FieldRowID, msg.RowID,
		"exchange", c.exchangeName)
	return nil
}

// reconnect replaces a closed channel. Concurrent callers share one dial,
// and a caller arriving after another has already reconnected keeps the
// fresh channel.
func (c *Client) reconnect() error {
	_, err, _ := c.reconnects.Do("reconnect", func() (interface{}, error) {
		c.mu.Lock()
		if c.channel != nil && !c.channel.IsClosed() {
			c.mu.Unlock()
			return nil, nil
		}
		if c.channel != nil {
			c.channel.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
		c.channel, c.conn = nil, nil
		c.mu.Unlock()
		return nil, c.connect()
	})
	return err
}

// ConsumeSheetChanges delivers every queued change to handler until ctx is
// done. Undecodable messages are dropped; handler errors requeue.
func (c *Client) ConsumeSheetChanges(ctx context.Context, handler func(context.Context, *SheetChangedMessage) error) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return fmt.Errorf("start consuming: channel not open")
	}

	msgs, err := channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	logger.InfoContext(ctx, "Started consuming sheet changes", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := SheetChangedMessageFromJSON(delivery.Body)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to decode sheet change", log.FieldError, err)
				_ = delivery.Nack(false, false)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				logger.ErrorContext(ctx, "Failed to handle sheet change",
					log.FieldError, err,
					log.FieldSheetID, msg.SheetID)
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// ConsumeWithRetry keeps ConsumeSheetChanges running across broker
// disconnects, backing off exponentially between attempts.
func (c *Client) ConsumeWithRetry(ctx context.Context, handler func(context.Context, *SheetChangedMessage) error) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)
	for attempt := 0; ; attempt++ {
		err := c.ConsumeSheetChanges(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := exponentialBackoff(attempt)
		logger.WarnContext(ctx, "Consumer stopped, reconnecting",
			log.FieldError, err,
			"attempt", attempt+1,
			"backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.reconnect(); err != nil {
			logger.WarnContext(ctx, "Reconnect failed", log.FieldError, err)
			continue
		}
		attempt = -1
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.failMu.Lock()
	last := c.lastFailure
	c.failMu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.failMu.Lock()
	c.lastFailure = time.Now()
	c.failMu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
