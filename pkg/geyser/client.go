package geyser

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	"github.com/subsquid/spray/pkg/log"
	"github.com/subsquid/spray/pkg/metrics"
)

// backoffSchedule is the reconnection delay by consecutive error count,
// saturating at the last entry.
var backoffSchedule = []time.Duration{
	0,
	0,
	200 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
}

func backoffFor(consecutiveErrors int) time.Duration {
	if consecutiveErrors < 0 {
		consecutiveErrors = 0
	}
	if consecutiveErrors >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[consecutiveErrors]
}

// Config configures one upstream source.
type Config struct {
	Name            string
	URL             string
	XToken          string
	XAccessToken    string
}

// maxRecvMsgSize is the minimum message size the client must accept, per
// the upstream contract.
const maxRecvMsgSize = 32 * 1024 * 1024

// Worker maintains one upstream's gRPC subscription and forwards every
// update to out, tagged with the upstream's symbolic name.
type Worker struct {
	cfg Config
}

// NewWorker constructs a Worker for one configured upstream.
func NewWorker(cfg Config) *Worker {
	return &Worker{cfg: cfg}
}

// Name returns the worker's symbolic source name, used to tag published
// messages and metrics.
func (w *Worker) Name() string {
	return w.cfg.Name
}

// Run subscribes to cfg.URL and forwards updates to out until ctx is
// cancelled, then returns nil. It does not detect a closed out channel, so
// out must stay open until Run has returned. A connection
// error before any update has ever been received on this worker is fatal
// and is returned; after that point the worker reconnects with backoff
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, out chan<- SourceMessage) error {
	logger := log.WithComponent("geyser").With().Str("source", w.cfg.Name).Logger()

	metrics.RegisterComponent(w.cfg.Name, false, "connecting")

	everReceived := false
	consecutiveErrors := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		receivedThisSession, err := w.runSession(ctx, out)
		if receivedThisSession {
			everReceived = true
			metrics.UpdateComponent(w.cfg.Name, true, "")
		}

		if err == nil {
			// Session ended because ctx was cancelled.
			return nil
		}

		metrics.UpdateComponent(w.cfg.Name, false, err.Error())

		if !everReceived {
			return fmt.Errorf("source %s: first session failed: %w", w.cfg.Name, err)
		}

		metrics.DataSourceErrors.WithLabelValues(w.cfg.Name).Inc()

		if receivedThisSession {
			consecutiveErrors = 1
		} else {
			consecutiveErrors++
		}

		logger.Error().Err(err).Int("consecutive_errors", consecutiveErrors).Msg("source session ended, reconnecting")

		delay := backoffFor(consecutiveErrors)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// runSession dials once and streams until the session ends, returning
// whether any update was received during this session and the error that
// ended it (nil if ended cleanly because ctx was cancelled).
func (w *Worker) runSession(ctx context.Context, out chan<- SourceMessage) (bool, error) {
	conn, err := w.dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	client := pb.NewGeyserClient(conn)

	streamCtx := ctx
	if w.cfg.XToken != "" || w.cfg.XAccessToken != "" {
		md := metadata.MD{}
		if w.cfg.XToken != "" {
			md.Set("x-token", w.cfg.XToken)
		}
		if w.cfg.XAccessToken != "" {
			md.Set("x-access-token", w.cfg.XAccessToken)
		}
		streamCtx = metadata.NewOutgoingContext(ctx, md)
	}

	stream, err := client.Subscribe(streamCtx)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	defer stream.CloseSend()

	if err := stream.Send(subscribeRequest()); err != nil {
		return false, fmt.Errorf("send subscribe request: %w", err)
	}

	received := false
	for {
		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return received, fmt.Errorf("unexpected end of update stream")
			}
			return received, err
		}

		msg, ok, convErr := w.toSourceMessage(resp)
		if convErr != nil {
			return received, convErr
		}
		if !ok {
			continue
		}

		select {
		case out <- msg:
			received = true
		case <-ctx.Done():
			return received, nil
		}
	}
}

func (w *Worker) toSourceMessage(u *pb.SubscribeUpdate) (SourceMessage, bool, error) {
	msg := SourceMessage{Source: w.cfg.Name}
	switch {
	case u.GetBlockMeta() != nil:
		msg.Block = convertBlockMeta(u.GetBlockMeta())
		return msg, true, nil
	case u.GetTransaction() != nil:
		txu, err := convertTransaction(u.GetTransaction())
		if err != nil {
			return SourceMessage{}, false, err
		}
		msg.Transaction = txu
		return msg, true, nil
	default:
		return SourceMessage{}, false, nil
	}
}

func subscribeRequest() *pb.SubscribeRequest {
	commitment := pb.CommitmentLevel_PROCESSED
	voteFilter := false
	return &pb.SubscribeRequest{
		Commitment: &commitment,
		Transactions: map[string]*pb.SubscribeRequestFilterTransactions{
			"spray": {Vote: &voteFilter},
		},
		BlocksMeta: map[string]*pb.SubscribeRequestFilterBlocksMeta{
			"spray": {},
		},
	}
}

func (w *Worker) dial(ctx context.Context) (*grpc.ClientConn, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	tlsConfig := &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
	creds := credentials.NewTLS(tlsConfig)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
	}
	registerZstd()

	return grpc.DialContext(ctx, w.cfg.URL, opts...)
}
