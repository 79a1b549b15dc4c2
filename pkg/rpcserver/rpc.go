package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/subsquid/spray/pkg/filter"
	"github.com/subsquid/spray/pkg/ingest"
	"github.com/subsquid/spray/pkg/log"
	"github.com/subsquid/spray/pkg/metrics"
	"github.com/subsquid/spray/pkg/query"
)

const (
	codeInvalidParams = -32602
	codeMethodNotFound = -32601
	codeParseError     = -32700
)

// rpcRequest is one JSON-RPC 2.0 request frame.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is a JSON-RPC 2.0 response frame, used for the initial
// spraySubscribe reply and for error replies.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcNotification is one sprayNotification push frame.
type rpcNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// connHandler dispatches JSON-RPC frames arriving on one connection. Each
// connection may host any number of concurrent subscriptions, each
// draining the pipeline in its own goroutine.
type connHandler struct {
	pipeline *ingest.Pipeline
	send     func([]byte) error
	cancel   map[string]context.CancelFunc
}

func newConnHandler(p *ingest.Pipeline, send func([]byte) error) *connHandler {
	return &connHandler{
		pipeline: p,
		send:     send,
		cancel:   make(map[string]context.CancelFunc),
	}
}

// handle processes one inbound frame. Errors writing to the connection are
// returned to the caller so it can tear the connection down; protocol-level
// errors (bad method, invalid params) are sent back as JSON-RPC error
// frames and do not terminate the connection.
func (h *connHandler) handle(ctx context.Context, raw []byte) error {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return h.send(encodeError(nil, codeParseError, "invalid JSON-RPC frame"))
	}

	switch req.Method {
	case "spraySubscribe":
		return h.handleSubscribe(ctx, &req)
	case "sprayUnsubscribe":
		return h.handleUnsubscribe(&req)
	default:
		return h.send(encodeError(req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func (h *connHandler) handleSubscribe(ctx context.Context, req *rpcRequest) error {
	q, err := query.Decode(req.Params)
	if err != nil {
		return h.send(encodeError(req.ID, codeInvalidParams, err.Error()))
	}

	compiled, err := filter.Compile(q)
	if err != nil {
		return h.send(encodeError(req.ID, codeInvalidParams, err.Error()))
	}

	id := uuid.NewString()
	subCtx, cancel := context.WithCancel(ctx)
	h.cancel[id] = cancel

	if err := h.send(encodeResult(req.ID, map[string]string{"subscriptionId": id})); err != nil {
		cancel()
		return err
	}

	sub := newSubscription(id, q, compiled)
	pipelineSub := h.pipeline.Subscribe()

	metrics.ActiveSubscriptions.Inc()
	go func() {
		defer metrics.ActiveSubscriptions.Dec()
		defer h.pipeline.Unsubscribe(pipelineSub)
		defer delete(h.cancel, id)

		err := sub.run(subCtx, pipelineSub, func(payload []byte) error {
			return h.send(encodeNotification(id, payload))
		})
		if err != nil {
			logger := log.WithSubscription(id)
			logger.Error().Err(err).Msg("subscription loop ended")
		}
	}()

	return nil
}

func (h *connHandler) handleUnsubscribe(req *rpcRequest) error {
	var params struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return h.send(encodeError(req.ID, codeInvalidParams, "invalid unsubscribe params"))
	}
	if cancel, ok := h.cancel[params.SubscriptionID]; ok {
		cancel()
	}
	return h.send(encodeResult(req.ID, true))
}

// close cancels every subscription owned by this connection. Called when
// the underlying transport closes.
func (h *connHandler) close() {
	for _, cancel := range h.cancel {
		cancel()
	}
}

func encodeResult(id json.RawMessage, result interface{}) []byte {
	b, _ := json.Marshal(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
	return b
}

func encodeError(id json.RawMessage, code int, msg string) []byte {
	b, _ := json.Marshal(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
	return b
}

// encodeNotification wraps a pre-rendered transaction/block payload (or nil
// on upstream closure) as a sprayNotification push frame.
func encodeNotification(subscriptionID string, payload []byte) []byte {
	var params struct {
		SubscriptionID string          `json:"subscriptionId"`
		Result         json.RawMessage `json:"result"`
	}
	params.SubscriptionID = subscriptionID
	if payload == nil {
		params.Result = []byte("null")
	} else {
		params.Result = payload
	}
	b, _ := json.Marshal(rpcNotification{JSONRPC: "2.0", Method: "sprayNotification", Params: params})
	return b
}
