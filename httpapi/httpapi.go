// Package httpapi implements the HTTP front-end (C14): a
// httprouter-based server exposing `POST /simulate` and `GET /snapshot`
// over service.Service, wrapping every response in `{result?, error?}`
// and mapping apperr.Kind to a status code. Grounded on the teacher's
// `github.com/julienschmidt/httprouter` usage pattern (route
// registration, `httprouter.Params` path params) seen throughout its
// go.mod-adjacent HTTP surfaces, generalized from a node RPC server to
// this tool's two read-only endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/tos-network/electsim/apperr"
	"github.com/tos-network/electsim/chainconfig"
	"github.com/tos-network/electsim/mining"
	"github.com/tos-network/electsim/reqconfig"
	"github.com/tos-network/electsim/service"
	"github.com/tos-network/electsim/xlog"
)

// requestIDHeader is stamped on every response so a caller can correlate
// a request with server-side logs, the HTTP analogue of the teacher's
// request-tracing conventions.
const requestIDHeader = "X-Request-Id"

// envelope is the `{result?, error?}` response shape spec.md §6's HTTP
// surface describes.
type envelope struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// simulateRequest is the JSON body POST /simulate accepts.
type simulateRequest struct {
	Algorithm         string             `json:"algorithm,omitempty"`
	Iterations        int                `json:"iterations,omitempty"`
	Reduce            bool               `json:"reduce,omitempty"`
	DesiredValidators *uint32            `json:"desired_validators,omitempty"`
	MaxNominations    *uint32            `json:"max_nominations,omitempty"`
	MinNominatorBond  string             `json:"min_nominator_bond,omitempty"`
	MinValidatorBond  string             `json:"min_validator_bond,omitempty"`
	ManualOverride    *overrideRequest   `json:"manual_override,omitempty"`
}

type overrideRequest struct {
	VotersAdd []struct {
		Account string   `json:"account"`
		Weight  uint64   `json:"weight"`
		Targets []string `json:"targets"`
	} `json:"voters_add,omitempty"`
	VotersRemove     []string `json:"voters_remove,omitempty"`
	CandidatesAdd    []string `json:"candidates_add,omitempty"`
	CandidatesRemove []string `json:"candidates_remove,omitempty"`
}

func (o *overrideRequest) toMining() *mining.Override {
	if o == nil {
		return nil
	}
	out := &mining.Override{
		VotersRemove:     o.VotersRemove,
		CandidatesAdd:    o.CandidatesAdd,
		CandidatesRemove: o.CandidatesRemove,
	}
	for _, v := range o.VotersAdd {
		out.VotersAdd = append(out.VotersAdd, mining.OverrideVoter{Account: v.Account, Weight: v.Weight, Targets: v.Targets})
	}
	return out
}

// Server wires service.Service to a httprouter.Router.
type Server struct {
	svc    *service.Service
	router *httprouter.Router
}

// NewServer builds a Server ready to be passed to http.ListenAndServe,
// matching the CLI's `server --address <host:port>` subcommand.
func NewServer(svc *service.Service) *Server {
	s := &Server{svc: svc, router: httprouter.New()}
	s.router.POST("/simulate", s.handleSimulate)
	s.router.GET("/snapshot", s.handleSnapshot)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := uuid.NewString()
	w.Header().Set(requestIDHeader, requestID)

	var body simulateRequest
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, requestID, apperr.BadRequest("malformed JSON body: %v", err))
			return
		}
	}

	params := service.SimulateParams{
		Block:             r.URL.Query().Get("block"),
		Algorithm:         chainconfig.SeqPhragmen,
		Iterations:        body.Iterations,
		ApplyReduce:       body.Reduce,
		DesiredValidators: body.DesiredValidators,
		MaxNominations:    body.MaxNominations,
		ManualOverride:    body.ManualOverride.toMining(),
	}
	if body.Algorithm != "" {
		alg, err := chainconfig.ParseAlgorithm(body.Algorithm)
		if err != nil {
			writeError(w, requestID, apperr.BadRequest("%v", err))
			return
		}
		params.Algorithm = alg
	}
	if body.MinNominatorBond != "" {
		v, ok := new(big.Int).SetString(body.MinNominatorBond, 10)
		if !ok {
			writeError(w, requestID, apperr.BadRequest("invalid min_nominator_bond %q", body.MinNominatorBond))
			return
		}
		params.MinNominatorBond = v
	}
	if body.MinValidatorBond != "" {
		v, ok := new(big.Int).SetString(body.MinValidatorBond, 10)
		if !ok {
			writeError(w, requestID, apperr.BadRequest("invalid min_validator_bond %q", body.MinValidatorBond))
			return
		}
		params.MinValidatorBond = v
	}

	ctx := r.Context()
	if body.Iterations > 0 {
		ctx = reqconfig.WithBalancingIterations(ctx, body.Iterations)
	}

	result, err := s.svc.Simulate(ctx, params)
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeResult(w, requestID, result)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := uuid.NewString()
	w.Header().Set(requestIDHeader, requestID)

	snap, err := s.svc.BuildSnapshot(r.Context(), r.URL.Query().Get("block"))
	if err != nil {
		writeError(w, requestID, err)
		return
	}
	writeResult(w, requestID, snap)
}

func writeResult(w http.ResponseWriter, requestID string, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(envelope{Result: result}); err != nil {
		xlog.Error("httpapi: failed to encode response", "request_id", requestID, "err", err)
	}
}

func writeError(w http.ResponseWriter, requestID string, err error) {
	kind := apperr.KindConfig
	if appErr, ok := err.(*apperr.Error); ok {
		kind = appErr.Kind
	}
	status := apperr.HTTPStatus(kind)
	xlog.Warn("httpapi: request failed", "request_id", requestID, "status", status, "err", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: err.Error()})
}
