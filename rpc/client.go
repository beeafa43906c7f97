package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lanebridge/bridge"
	"lanebridge/lanes"
)

// Client talks to a bridge node's HTTP API. It implements both relay client
// roles; a relay process uses two instances, one per chain.
type Client struct {
	baseURL string
	relayer string
	http    *http.Client
}

// NewClient builds a client for the node at baseURL. relayer is the identity
// attached to proof submissions; rewards accrue to it.
func NewClient(baseURL, relayer string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		relayer: relayer,
		http:    httpClient,
	}
}

// Ping checks node liveness.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc: health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// LatestGeneratedNonce implements relay.SourceClient.
func (c *Client) LatestGeneratedNonce(ctx context.Context, lane lanes.LaneID) (lanes.Nonce, error) {
	var out OutboundLaneResponse
	if err := c.get(ctx, c.lanePath(lane, "outbound"), &out); err != nil {
		return 0, err
	}
	return lanes.Nonce(out.LatestGeneratedNonce), nil
}

// LatestConfirmedReceivedNonce implements relay.SourceClient.
func (c *Client) LatestConfirmedReceivedNonce(ctx context.Context, lane lanes.LaneID) (lanes.Nonce, error) {
	var out OutboundLaneResponse
	if err := c.get(ctx, c.lanePath(lane, "outbound"), &out); err != nil {
		return 0, err
	}
	return lanes.Nonce(out.LatestReceivedNonce), nil
}

// ProveMessages implements relay.SourceClient.
func (c *Client) ProveMessages(ctx context.Context, lane lanes.LaneID, begin, end lanes.Nonce, includeState bool) (*bridge.MessagesProof, error) {
	query := url.Values{}
	query.Set("begin", strconv.FormatUint(uint64(begin), 10))
	query.Set("end", strconv.FormatUint(uint64(end), 10))
	if includeState {
		query.Set("state", "true")
	}
	var out MessagesProofEnvelope
	if err := c.get(ctx, c.lanePath(lane, "messages")+"?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return &bridge.MessagesProof{
		LaneID:      lane,
		NoncesBegin: lanes.Nonce(out.NoncesBegin),
		NoncesEnd:   lanes.Nonce(out.NoncesEnd),
		Proof:       out.Proof,
	}, nil
}

// SubmitMessagesReceivingProof implements relay.SourceClient.
func (c *Client) SubmitMessagesReceivingProof(ctx context.Context, proof *bridge.DeliveryProof, relayersState lanes.UnrewardedRelayersState) error {
	req := SubmitConfirmationRequest{
		Relayer:       c.relayer,
		Proof:         DeliveryProofEnvelope{LaneID: proof.LaneID.String(), Proof: proof.Proof},
		RelayersState: relayersStateToWire(relayersState),
	}
	var out SubmitConfirmationResponse
	return c.post(ctx, c.lanePath(proof.LaneID, "confirmations"), req, &out)
}

// LatestReceivedNonce implements relay.TargetClient.
func (c *Client) LatestReceivedNonce(ctx context.Context, lane lanes.LaneID) (lanes.Nonce, error) {
	var out InboundLaneResponse
	if err := c.get(ctx, c.lanePath(lane, "inbound"), &out); err != nil {
		return 0, err
	}
	return lanes.Nonce(out.LastDeliveredNonce), nil
}

// UnrewardedRelayersState implements relay.TargetClient.
func (c *Client) UnrewardedRelayersState(ctx context.Context, lane lanes.LaneID) (lanes.UnrewardedRelayersState, error) {
	var out InboundLaneResponse
	if err := c.get(ctx, c.lanePath(lane, "inbound"), &out); err != nil {
		return lanes.UnrewardedRelayersState{}, err
	}
	return relayersStateFromWire(out.RelayersState), nil
}

// ProveMessagesReceiving implements relay.TargetClient.
func (c *Client) ProveMessagesReceiving(ctx context.Context, lane lanes.LaneID) (*bridge.DeliveryProof, error) {
	var out DeliveryProofEnvelope
	if err := c.get(ctx, c.lanePath(lane, "receiving"), &out); err != nil {
		return nil, err
	}
	return &bridge.DeliveryProof{LaneID: lane, Proof: out.Proof}, nil
}

// SubmitMessagesProof implements relay.TargetClient.
func (c *Client) SubmitMessagesProof(ctx context.Context, proof *bridge.MessagesProof) error {
	req := SubmitProofRequest{
		Relayer: c.relayer,
		Proof: MessagesProofEnvelope{
			LaneID:      proof.LaneID.String(),
			NoncesBegin: uint64(proof.NoncesBegin),
			NoncesEnd:   uint64(proof.NoncesEnd),
			Proof:       proof.Proof,
		},
	}
	var out SubmitProofResponse
	if err := c.post(ctx, c.lanePath(proof.LaneID, "proofs"), req, &out); err != nil {
		return err
	}
	// a submission can be accepted while every bundled message is rejected
	// (saturated inbound lane, raced-out range); report that as a failure so
	// callers do not mistake it for delivery
	dispatched := 0
	for _, res := range out.Results {
		if res.Status == lanes.ReceptionDispatched.String() {
			dispatched++
		}
	}
	if len(out.Results) > 0 && dispatched == 0 {
		return fmt.Errorf("rpc: no messages dispatched: %s", out.Results[0].Status)
	}
	return nil
}

func (c *Client) lanePath(lane lanes.LaneID, suffix string) string {
	return c.baseURL + "/v1/lanes/" + lane.String() + "/" + suffix
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, rawURL string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		// the node screened the submission out as already-delivered
		return bridge.ErrStaleSubmission
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxRequestBody)).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("rpc: status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("rpc: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
