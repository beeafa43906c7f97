package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lanebridge/bridge"
	"lanebridge/lanes"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Server exposes the bridge module over HTTP for relayers and operators.
type Server struct {
	module *bridge.Module
	log    *slog.Logger
}

// NewServer wires the HTTP surface around the module.
func NewServer(module *bridge.Module, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default().With("component", "rpc")
	}
	return &Server{module: module, log: log}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/lanes/{lane}", func(lr chi.Router) {
		lr.Get("/outbound", s.getOutbound)
		lr.Get("/inbound", s.getInbound)
		lr.Get("/messages", s.getMessagesProof)
		lr.Get("/receiving", s.getReceivingProof)
		lr.Post("/proofs", s.postMessagesProof)
		lr.Post("/confirmations", s.postDeliveryProof)
	})
	return r
}

// OutboundLaneResponse mirrors the outbound lane record.
type OutboundLaneResponse struct {
	State                string `json:"state"`
	OldestUnprunedNonce  uint64 `json:"oldestUnprunedNonce"`
	LatestReceivedNonce  uint64 `json:"latestReceivedNonce"`
	LatestGeneratedNonce uint64 `json:"latestGeneratedNonce"`
	QueuedMessages       uint64 `json:"queuedMessages"`
}

// InboundLaneResponse mirrors the inbound lane record plus the relayers
// summary a confirmation submission needs.
type InboundLaneResponse struct {
	State              string                  `json:"state"`
	LastConfirmedNonce uint64                  `json:"lastConfirmedNonce"`
	LastDeliveredNonce uint64                  `json:"lastDeliveredNonce"`
	Relayers           []UnrewardedRelayer     `json:"relayers"`
	RelayersState      UnrewardedRelayersState `json:"relayersState"`
}

// UnrewardedRelayer is one pending reward entry.
type UnrewardedRelayer struct {
	Relayer string `json:"relayer"`
	Begin   uint64 `json:"begin"`
	End     uint64 `json:"end"`
}

// UnrewardedRelayersState is the wire form of lanes.UnrewardedRelayersState.
type UnrewardedRelayersState struct {
	UnrewardedRelayerEntries uint64 `json:"unrewardedRelayerEntries"`
	MessagesInOldestEntry    uint64 `json:"messagesInOldestEntry"`
	TotalMessages            uint64 `json:"totalMessages"`
	LastDeliveredNonce       uint64 `json:"lastDeliveredNonce"`
}

func relayersStateToWire(state lanes.UnrewardedRelayersState) UnrewardedRelayersState {
	return UnrewardedRelayersState{
		UnrewardedRelayerEntries: state.UnrewardedRelayerEntries,
		MessagesInOldestEntry:    state.MessagesInOldestEntry,
		TotalMessages:            state.TotalMessages,
		LastDeliveredNonce:       uint64(state.LastDeliveredNonce),
	}
}

func relayersStateFromWire(state UnrewardedRelayersState) lanes.UnrewardedRelayersState {
	return lanes.UnrewardedRelayersState{
		UnrewardedRelayerEntries: state.UnrewardedRelayerEntries,
		MessagesInOldestEntry:    state.MessagesInOldestEntry,
		TotalMessages:            state.TotalMessages,
		LastDeliveredNonce:       lanes.Nonce(state.LastDeliveredNonce),
	}
}

// MessagesProofEnvelope is the wire form of bridge.MessagesProof.
type MessagesProofEnvelope struct {
	LaneID      string `json:"laneId"`
	NoncesBegin uint64 `json:"noncesBegin"`
	NoncesEnd   uint64 `json:"noncesEnd"`
	Proof       []byte `json:"proof"`
}

// DeliveryProofEnvelope is the wire form of bridge.DeliveryProof.
type DeliveryProofEnvelope struct {
	LaneID string `json:"laneId"`
	Proof  []byte `json:"proof"`
}

// SubmitProofRequest submits a messages proof for dispatch.
type SubmitProofRequest struct {
	Relayer string                `json:"relayer"`
	Proof   MessagesProofEnvelope `json:"proof"`
}

// SubmitProofResponse reports per-message reception outcomes.
type SubmitProofResponse struct {
	Results []ReceptionResult `json:"results"`
}

// ReceptionResult is one message's outcome.
type ReceptionResult struct {
	Status        string `json:"status"`
	DispatchError string `json:"dispatchError,omitempty"`
}

// SubmitConfirmationRequest submits a delivery-confirmation proof.
type SubmitConfirmationRequest struct {
	Relayer       string                  `json:"relayer"`
	Proof         DeliveryProofEnvelope   `json:"proof"`
	RelayersState UnrewardedRelayersState `json:"relayersState"`
}

// SubmitConfirmationResponse reports the newly confirmed range, if any.
type SubmitConfirmationResponse struct {
	Confirmed bool   `json:"confirmed"`
	Begin     uint64 `json:"begin,omitempty"`
	End       uint64 `json:"end,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) laneID(w http.ResponseWriter, r *http.Request) (lanes.LaneID, bool) {
	id, err := lanes.ParseLaneID(chi.URLParam(r, "lane"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return lanes.LaneID{}, false
	}
	return id, true
}

func (s *Server) getOutbound(w http.ResponseWriter, r *http.Request) {
	id, ok := s.laneID(w, r)
	if !ok {
		return
	}
	data, err := s.module.OutboundLaneData(id)
	if err != nil {
		s.writeModuleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OutboundLaneResponse{
		State:                data.State.String(),
		OldestUnprunedNonce:  uint64(data.OldestUnprunedNonce),
		LatestReceivedNonce:  uint64(data.LatestReceivedNonce),
		LatestGeneratedNonce: uint64(data.LatestGeneratedNonce),
		QueuedMessages:       data.QueuedMessagesLen(),
	})
}

func (s *Server) getInbound(w http.ResponseWriter, r *http.Request) {
	id, ok := s.laneID(w, r)
	if !ok {
		return
	}
	data, err := s.module.InboundLaneData(id)
	if err != nil {
		s.writeModuleError(w, err)
		return
	}
	resp := InboundLaneResponse{
		State:              data.State.String(),
		LastConfirmedNonce: uint64(data.LastConfirmedNonce),
		LastDeliveredNonce: uint64(data.LastDeliveredNonce()),
		Relayers:           make([]UnrewardedRelayer, 0, len(data.Relayers)),
		RelayersState:      relayersStateToWire(lanes.UnrewardedRelayersStateFrom(data)),
	}
	for _, entry := range data.Relayers {
		resp.Relayers = append(resp.Relayers, UnrewardedRelayer{
			Relayer: entry.Relayer,
			Begin:   uint64(entry.Messages.Begin),
			End:     uint64(entry.Messages.End),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getMessagesProof(w http.ResponseWriter, r *http.Request) {
	id, ok := s.laneID(w, r)
	if !ok {
		return
	}
	begin, err := queryNonce(r, "begin")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	end, err := queryNonce(r, "end")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	includeState := r.URL.Query().Get("state") == "true"

	proof, err := s.module.ProveMessages(id, begin, end, includeState)
	if err != nil {
		s.writeModuleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MessagesProofEnvelope{
		LaneID:      proof.LaneID.String(),
		NoncesBegin: uint64(proof.NoncesBegin),
		NoncesEnd:   uint64(proof.NoncesEnd),
		Proof:       proof.Proof,
	})
}

func (s *Server) getReceivingProof(w http.ResponseWriter, r *http.Request) {
	id, ok := s.laneID(w, r)
	if !ok {
		return
	}
	proof, err := s.module.ProveMessagesReceiving(id)
	if err != nil {
		s.writeModuleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, DeliveryProofEnvelope{LaneID: proof.LaneID.String(), Proof: proof.Proof})
}

func (s *Server) postMessagesProof(w http.ResponseWriter, r *http.Request) {
	id, ok := s.laneID(w, r)
	if !ok {
		return
	}
	var req SubmitProofRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	proof := &bridge.MessagesProof{
		LaneID:      id,
		NoncesBegin: lanes.Nonce(req.Proof.NoncesBegin),
		NoncesEnd:   lanes.Nonce(req.Proof.NoncesEnd),
		Proof:       req.Proof.Proof,
	}
	received, err := s.module.ReceiveMessagesProof(req.Relayer, proof)
	if err != nil {
		s.writeModuleError(w, err)
		return
	}
	resp := SubmitProofResponse{Results: make([]ReceptionResult, 0, len(received.Results))}
	for _, res := range received.Results {
		out := ReceptionResult{Status: res.Status.String()}
		if res.DispatchErr != nil {
			out.DispatchError = res.DispatchErr.Error()
		}
		resp.Results = append(resp.Results, out)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) postDeliveryProof(w http.ResponseWriter, r *http.Request) {
	id, ok := s.laneID(w, r)
	if !ok {
		return
	}
	var req SubmitConfirmationRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	proof := &bridge.DeliveryProof{LaneID: id, Proof: req.Proof.Proof}
	confirmed, err := s.module.ReceiveMessagesDeliveryProof(req.Relayer, proof, relayersStateFromWire(req.RelayersState))
	if err != nil {
		s.writeModuleError(w, err)
		return
	}
	resp := SubmitConfirmationResponse{}
	if confirmed != nil {
		resp.Confirmed = true
		resp.Begin = uint64(confirmed.Begin)
		resp.End = uint64(confirmed.End)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func queryNonce(r *http.Request, key string) (lanes.Nonce, error) {
	raw := r.URL.Query().Get(key)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + key + " nonce")
	}
	return lanes.Nonce(value), nil
}

func decodeRequest(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeModuleError maps module errors onto HTTP statuses. Stale submissions
// get 409 so relay clients can recognise and ignore them.
func (s *Server) writeModuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrStaleSubmission):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, lanes.ErrUnknownInboundLane), errors.Is(err, lanes.ErrUnknownOutboundLane):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, bridge.ErrNotOperatingNormally), errors.Is(err, bridge.ErrMessageDispatchInactive):
		s.writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, bridge.ErrInvalidMessagesProof),
		errors.Is(err, bridge.ErrInvalidDeliveryProof),
		errors.Is(err, bridge.ErrInvalidUnrewardedRelayersState),
		errors.Is(err, bridge.ErrTooManyMessagesInProof),
		errors.Is(err, lanes.ErrClosedInboundLane),
		errors.Is(err, lanes.ErrClosedOutboundLane):
		s.writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "err", err)
	}
}
