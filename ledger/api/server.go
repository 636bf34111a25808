// Package api exposes a ledger node over HTTP and implements the client of
// those endpoints.
//
// Instructions are posted as signed JSON transactions and the response is the
// confirmation of the sequencer: 200 when accepted, 422 when rejected. The
// reads return the committed state of the ledger.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/hlog"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/ordering/serial"
	"go.dedis.ch/contest/core/txn/signed"
	"go.dedis.ch/contest/crypto/wallet"
	"go.dedis.ch/contest/ledger"
	"go.dedis.ch/contest/proxy"
	"golang.org/x/xerrors"
)

// Routes served by the node.
const (
	InstructionsPath = "/instructions"
	InstructionPath  = "/instructions/{id}"
	InfoPath         = "/info"
	NoncePath        = "/nonces/{identity}"
	MintPath         = "/mint"
	ProfilePath      = "/profiles/{owner}"
	SubmissionsPath  = "/submissions"
	SubmissionPath   = "/submissions/{address}"
	QuizPath         = "/quiz"
	AttemptPath      = "/quiz/states/{participant}"
	LeaderboardPath  = "/quiz/leaderboard"
)

// VersionQuery is the query parameter selecting the version of the quiz. It
// defaults to the current version.
const VersionQuery = "version"

const maxBodySize = 64 << 10

// Service serves the endpoints of a node.
type Service struct {
	node    *ledger.Node
	factory signed.TransactionFactory
}

// NewService creates the service of the node.
func NewService(node *ledger.Node) Service {
	return Service{
		node:    node,
		factory: signed.NewTransactionFactory(),
	}
}

// Register registers the handlers to the proxy.
func (s Service) Register(p proxy.Proxy) {
	p.RegisterHandler(http.MethodPost, InstructionsPath, s.submit)
	p.RegisterHandler(http.MethodGet, InstructionPath, s.getReceipt)
	p.RegisterHandler(http.MethodGet, InfoPath, s.getInfo)
	p.RegisterHandler(http.MethodGet, NoncePath, s.getNonce)
	p.RegisterHandler(http.MethodGet, MintPath, s.getMint)
	p.RegisterHandler(http.MethodGet, ProfilePath, s.getProfile)
	p.RegisterHandler(http.MethodGet, SubmissionsPath, s.listSubmissions)
	p.RegisterHandler(http.MethodGet, SubmissionPath, s.getSubmission)
	p.RegisterHandler(http.MethodGet, QuizPath, s.getQuiz)
	p.RegisterHandler(http.MethodGet, AttemptPath, s.getAttempt)
	p.RegisterHandler(http.MethodGet, LeaderboardPath, s.getLeaderboard)
}

func (s Service) submit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		fail(w, r, http.StatusBadRequest, xerrors.Errorf("failed to read body: %v", err))
		return
	}

	tx, err := s.factory.TransactionOf(data)
	if err != nil {
		fail(w, r, http.StatusBadRequest, xerrors.Errorf("invalid instruction: %v", err))
		return
	}

	conf, err := s.node.GetOrdering().Submit(r.Context(), tx)
	if xerrors.Is(err, serial.ErrClosed) {
		fail(w, r, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		fail(w, r, http.StatusInternalServerError, err)
		return
	}

	status := http.StatusOK
	if !conf.Accepted {
		status = http.StatusUnprocessableEntity
	}

	reply(w, r, status, newConfirmationJSON(conf))
}

func (s Service) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := base58.Decode(chi.URLParam(r, "id"))
	if err != nil || len(id) == 0 {
		fail(w, r, http.StatusBadRequest, xerrors.Errorf("malformed id '%s'", chi.URLParam(r, "id")))
		return
	}

	conf, err := s.node.GetOrdering().GetReceipt(id)
	if err != nil {
		failRead(w, r, err)
		return
	}

	reply(w, r, http.StatusOK, newConfirmationJSON(conf))
}

func (s Service) getInfo(w http.ResponseWriter, r *http.Request) {
	srvc := s.node.GetOrdering()

	height, hash, err := srvc.GetHeight()
	if err != nil {
		fail(w, r, http.StatusInternalServerError, err)
		return
	}

	pubkey, err := srvc.GetPublicKey().MarshalBinary()
	if err != nil {
		fail(w, r, http.StatusInternalServerError, xerrors.Errorf("failed to encode key: %v", err))
		return
	}

	reply(w, r, http.StatusOK, InfoJSON{
		Program:   s.node.GetDeriver().GetProgram().String(),
		Sequencer: base58.Encode(pubkey),
		Height:    height,
		Head:      base58.Encode(hash),
	})
}

func (s Service) getNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r, "identity")
	if !ok {
		return
	}

	nonce, err := s.node.GetOrdering().GetNonce(wallet.NewPublicKey(addr))
	if err != nil {
		fail(w, r, http.StatusInternalServerError, err)
		return
	}

	reply(w, r, http.StatusOK, NonceJSON{Identity: addr.String(), Nonce: nonce})
}

func (s Service) getMint(w http.ResponseWriter, r *http.Request) {
	info, err := s.node.GetMint()
	if err != nil {
		failRead(w, r, err)
		return
	}

	reply(w, r, http.StatusOK, newMintJSON(info))
}

func (s Service) getProfile(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAddress(w, r, "owner")
	if !ok {
		return
	}

	profile, err := s.node.GetProfile(owner)
	if err != nil {
		failRead(w, r, err)
		return
	}

	reply(w, r, http.StatusOK, newProfileJSON(profile))
}

func (s Service) listSubmissions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.node.ListSubmissions()
	if err != nil {
		failRead(w, r, err)
		return
	}

	msgs := make([]SubmissionJSON, len(entries))
	for i, entry := range entries {
		msgs[i] = newSubmissionJSON(entry.Address, entry.Submission)
	}

	reply(w, r, http.StatusOK, msgs)
}

func (s Service) getSubmission(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r, "address")
	if !ok {
		return
	}

	sub, err := s.node.GetSubmission(addr)
	if err != nil {
		failRead(w, r, err)
		return
	}

	reply(w, r, http.StatusOK, newSubmissionJSON(addr, *sub))
}

func (s Service) getQuiz(w http.ResponseWriter, r *http.Request) {
	config, err := s.node.GetQuizConfig()
	if err != nil {
		failRead(w, r, err)
		return
	}

	reply(w, r, http.StatusOK, newQuizJSON(config))
}

func (s Service) getAttempt(w http.ResponseWriter, r *http.Request) {
	participant, ok := parseAddress(w, r, "participant")
	if !ok {
		return
	}

	version, ok := s.parseVersion(w, r)
	if !ok {
		return
	}

	state, err := s.node.GetQuizState(participant, version)
	if err != nil {
		failRead(w, r, err)
		return
	}

	reply(w, r, http.StatusOK, newAttemptJSON(*state))
}

func (s Service) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	version, ok := s.parseVersion(w, r)
	if !ok {
		return
	}

	states, err := s.node.GetLeaderboard(version)
	if err != nil {
		failRead(w, r, err)
		return
	}

	msgs := make([]AttemptJSON, len(states))
	for i, state := range states {
		msgs[i] = newAttemptJSON(state)
	}

	reply(w, r, http.StatusOK, msgs)
}

// parseVersion returns the version of the query, or the current version of
// the quiz when it is absent.
func (s Service) parseVersion(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	text := r.URL.Query().Get(VersionQuery)
	if text != "" {
		version, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			fail(w, r, http.StatusBadRequest, xerrors.Errorf("malformed version '%s'", text))
			return 0, false
		}

		return version, true
	}

	config, err := s.node.GetQuizConfig()
	if err != nil {
		failRead(w, r, err)
		return 0, false
	}

	return config.Version, true
}

func parseAddress(w http.ResponseWriter, r *http.Request, param string) (address.Address, bool) {
	addr, err := address.Parse(chi.URLParam(r, param))
	if err != nil {
		fail(w, r, http.StatusBadRequest, err)
		return addr, false
	}

	return addr, true
}

// failRead fails with 404 when the state is absent.
func failRead(w http.ResponseWriter, r *http.Request, err error) {
	if xerrors.Is(err, execution.ErrNotFound) {
		fail(w, r, http.StatusNotFound, err)
		return
	}

	fail(w, r, http.StatusInternalServerError, err)
}

func fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := ErrorJSON{Error: err.Error()}

	cause := execution.Cause(err)
	if cause != nil {
		msg.Code = cause.Code
		msg.Name = cause.Name
	}

	id, ok := hlog.IDFromRequest(r)
	if ok {
		msg.RequestID = id.String()
	}

	logger := hlog.FromRequest(r)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("request refused")
	}

	reply(w, r, status, msg)
}

func reply(w http.ResponseWriter, r *http.Request, status int, msg interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(msg)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to write response")
	}
}
