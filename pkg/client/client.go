package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/entry"
	"github.com/jmerrifield20/disco/pkg/tx"
	"github.com/jmerrifield20/disco/pkg/wallet"
	"github.com/jmerrifield20/disco/pkg/wire"
)

const (
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultBroadcastTimeout = 30 * time.Second
	minPollInterval         = 10 * time.Millisecond
)

// Client is the disco SDK entry point. It holds no per-account state and is
// safe for concurrent use.
type Client struct {
	network      Network
	httpClient   *http.Client
	pollInterval time.Duration
	timeout      time.Duration
	logger       *zap.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets the http.Client used by NewHTTP. It has no effect on
// other transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithPollInterval sets how often Broadcast asks for the transaction status.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) error {
		if d < minPollInterval {
			return fmt.Errorf("poll interval %s is below the %s minimum", d, minPollInterval)
		}
		c.pollInterval = d
		return nil
	}
}

// WithBroadcastTimeout bounds how long Broadcast waits for a commit.
func WithBroadcastTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("broadcast timeout must be positive, got %s", d)
		}
		c.timeout = d
		return nil
	}
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// New creates a Client on top of an existing Network.
func New(network Network, opts ...Option) (*Client, error) {
	c := &Client{
		network:      network,
		pollInterval: DefaultPollInterval,
		timeout:      DefaultBroadcastTimeout,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewHTTP creates a Client that talks to the node REST API at baseURL.
//
//	c, err := client.NewHTTP("http://localhost:8080",
//	    client.WithBroadcastTimeout(10*time.Second),
//	)
func NewHTTP(baseURL string, opts ...Option) (*Client, error) {
	c, err := New(nil, opts...)
	if err != nil {
		return nil, err
	}
	c.network = NewHTTPNetwork(baseURL, c.httpClient)
	return c, nil
}

// DialGRPC creates a Client that talks to the node gRPC endpoint at addr.
// Close releases the connection.
func DialGRPC(addr string, opts ...Option) (*Client, error) {
	g, err := DialGRPCNetwork(addr)
	if err != nil {
		return nil, err
	}
	c, err := New(g, opts...)
	if err != nil {
		g.Close()
		return nil, err
	}
	return c, nil
}

// MustNew is like NewHTTP but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := NewHTTP(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Close releases the underlying transport, if it holds any resources.
func (c *Client) Close() error {
	if cl, ok := c.network.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Network returns the transport the client was built with.
func (c *Client) Network() Network { return c.network }

// Status reports the node's chain id, height and admission parameters.
func (c *Client) Status(ctx context.Context) (*wire.StatusResponse, error) {
	return c.network.Status(ctx)
}

// TxStatus looks a transaction up by hash. Use it to settle a broadcast that
// timed out.
func (c *Client) TxStatus(ctx context.Context, hash string) (*wire.TxStatusResponse, error) {
	return c.network.TxStatus(ctx, hash)
}

// AccountContext fetches the chain id and the next sequence for addr from
// the node. It must be called again before every build; a sequence is never
// reused from an earlier context.
func (c *Client) AccountContext(ctx context.Context, w wallet.Wallet, addr string, fee tx.Fee) (tx.AccountContext, error) {
	pub, err := wallet.PublicKey(w, addr)
	if err != nil {
		return tx.AccountContext{}, err
	}
	st, err := c.network.Status(ctx)
	if err != nil {
		return tx.AccountContext{}, fmt.Errorf("fetch node status: %w", err)
	}
	acct, err := c.network.Account(ctx, addr)
	if err != nil {
		return tx.AccountContext{}, fmt.Errorf("fetch account %s: %w", addr, err)
	}
	if fee.Amount < st.MinFee {
		fee.Amount = st.MinFee
	}
	return tx.AccountContext{
		ChainID:   st.ChainID,
		Address:   addr,
		PublicKey: pub,
		Sequence:  acct.Sequence,
		Fee:       fee,
	}, nil
}

// SignAndBroadcast fetches a fresh account context, builds and signs an
// envelope carrying msgs, and broadcasts it. Sequence conflicts are returned
// to the caller, never retried here.
func (c *Client) SignAndBroadcast(ctx context.Context, w wallet.Wallet, addr string, fee tx.Fee, msgs ...entry.Msg) (*BroadcastResult, error) {
	if len(msgs) == 0 {
		return nil, discoerrors.ErrEmptyTransaction
	}
	actx, err := c.AccountContext(ctx, w, addr, fee)
	if err != nil {
		return nil, err
	}
	return c.BuildSignBroadcast(ctx, w, actx, msgs...)
}

// BuildSignBroadcast is SignAndBroadcast with a caller-supplied account
// context, for callers that set a memo or timeout height.
func (c *Client) BuildSignBroadcast(ctx context.Context, w wallet.Wallet, actx tx.AccountContext, msgs ...entry.Msg) (*BroadcastResult, error) {
	env, err := tx.Build(actx, msgs...)
	if err != nil {
		return nil, err
	}
	se, err := tx.Sign(env, w)
	if err != nil {
		return nil, err
	}
	return c.Broadcast(ctx, se)
}
