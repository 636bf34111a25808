package api

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
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"go.dedis.ch/contest/contracts/contest"
	"go.dedis.ch/contest/contracts/quiz"
	"go.dedis.ch/contest/contracts/token"
	"go.dedis.ch/contest/core/access"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/ordering"
	"go.dedis.ch/contest/core/txn"
	"go.dedis.ch/contest/crypto"
	"go.dedis.ch/contest/crypto/ed25519"
	"go.dedis.ch/contest/ledger"
	"golang.org/x/xerrors"
)

const defaultTimeout = 30 * time.Second

// ResponseError is the error of a request the node refused. It wraps the
// ledger error when there is one, so that the callers can compare it with
// xerrors.Is.
type ResponseError struct {
	Status    int
	Message   string
	RequestID string
	Cause     *execution.Error
}

// Error implements error.
func (e *ResponseError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("node responded %d: %s", e.Status, e.Message)
	}

	return fmt.Sprintf("node responded %d: %s (request %s)", e.Status, e.Message, e.RequestID)
}

// Unwrap returns the ledger error, if any.
func (e *ResponseError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}

	return e.Cause
}

// ClientOption is the type of options to create a client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client performing the requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.http = c
	}
}

// WithSequencerKey sets the key the confirmations must be signed with. By
// default the key announced by the node is used.
func WithSequencerKey(pubkey crypto.PublicKey) ClientOption {
	return func(client *Client) {
		client.pubkey = pubkey
	}
}

// Client is the client of the endpoints of a node.
//
// - implements signed.Client
type Client struct {
	sync.Mutex

	base    string
	http    *http.Client
	pubkey  crypto.PublicKey
	hashFac crypto.HashFactory
	sigFac  crypto.SignatureFactory
}

// NewClient creates a client of the node at the given URL.
func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{
		base:    strings.TrimSuffix(base, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		hashFac: crypto.NewHashFactory(crypto.Sha3_256),
		sigFac:  ed25519.NewSignatureFactory(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetInfo returns the description of the node.
func (c *Client) GetInfo(ctx context.Context) (InfoJSON, error) {
	var info InfoJSON

	err := c.get(ctx, InfoPath, &info)

	return info, err
}

// GetNonce implements signed.Client. It returns the number of accepted
// instructions of the identity.
func (c *Client) GetNonce(ident access.Identity) (uint64, error) {
	var msg NonceJSON

	err := c.get(context.Background(), "/nonces/"+ident.GetAddress().String(), &msg)
	if err != nil {
		return 0, err
	}

	return msg.Nonce, nil
}

// Submit sends the instruction and returns the verified confirmation. A
// rejected instruction is not an error.
func (c *Client) Submit(ctx context.Context, tx txn.Transaction) (ordering.Confirmation, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return ordering.Confirmation{}, xerrors.Errorf("failed to encode tx: %v", err)
	}

	var msg ConfirmationJSON

	err = c.do(ctx, http.MethodPost, InstructionsPath, bytes.NewReader(data), &msg,
		http.StatusOK, http.StatusUnprocessableEntity)
	if err != nil {
		return ordering.Confirmation{}, err
	}

	return c.confirmationOf(ctx, msg)
}

// Apply creates the instruction with the manager and submits it. A rejected
// instruction returns its confirmation along with the error after the
// manager is synchronized again.
func (c *Client) Apply(ctx context.Context, mgr txn.Manager, in ledger.Instruction) (ordering.Confirmation, error) {
	tx, err := mgr.Make(in.Accounts, in.Args...)
	if err != nil {
		return ordering.Confirmation{}, xerrors.Errorf("failed to make tx: %v", err)
	}

	conf, err := c.Submit(ctx, tx)
	if err != nil {
		return conf, xerrors.Errorf("failed to submit: %w", err)
	}

	if !conf.Accepted {
		err = mgr.Sync()
		if err != nil {
			return conf, xerrors.Errorf("failed to sync manager: %v", err)
		}
	}

	return conf, conf.Err()
}

// GetReceipt returns the verified confirmation of an accepted instruction.
func (c *Client) GetReceipt(ctx context.Context, id []byte) (ordering.Confirmation, error) {
	var msg ConfirmationJSON

	err := c.get(ctx, "/instructions/"+base58.Encode(id), &msg)
	if err != nil {
		return ordering.Confirmation{}, err
	}

	return c.confirmationOf(ctx, msg)
}

// GetMint returns the mint of the reward token.
func (c *Client) GetMint(ctx context.Context) (ledger.MintInfo, error) {
	var msg MintJSON

	err := c.get(ctx, MintPath, &msg)
	if err != nil {
		return ledger.MintInfo{}, err
	}

	return msg.MintInfo()
}

// GetProfile returns the profile of the owner.
func (c *Client) GetProfile(ctx context.Context, owner address.Address) (*token.UserProfile, error) {
	var msg ProfileJSON

	err := c.get(ctx, "/profiles/"+owner.String(), &msg)
	if err != nil {
		return nil, err
	}

	return msg.Profile()
}

// GetSubmission returns the submission at the address.
func (c *Client) GetSubmission(ctx context.Context, addr address.Address) (*contest.Submission, error) {
	var msg SubmissionJSON

	err := c.get(ctx, "/submissions/"+addr.String(), &msg)
	if err != nil {
		return nil, err
	}

	entry, err := msg.Entry()
	if err != nil {
		return nil, err
	}

	return &entry.Submission, nil
}

// ListSubmissions returns the submissions, the most voted first.
func (c *Client) ListSubmissions(ctx context.Context) ([]contest.Entry, error) {
	var msgs []SubmissionJSON

	err := c.get(ctx, SubmissionsPath, &msgs)
	if err != nil {
		return nil, err
	}

	entries := make([]contest.Entry, len(msgs))
	for i, msg := range msgs {
		entries[i], err = msg.Entry()
		if err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// GetQuizConfig returns the configuration of the quiz.
func (c *Client) GetQuizConfig(ctx context.Context) (*quiz.Config, error) {
	var msg QuizJSON

	err := c.get(ctx, QuizPath, &msg)
	if err != nil {
		return nil, err
	}

	return msg.Config()
}

// GetQuizState returns the attempt of the participant for the version. The
// version zero selects the current one.
func (c *Client) GetQuizState(ctx context.Context, participant address.Address, version uint64) (*quiz.State, error) {
	var msg AttemptJSON

	path := "/quiz/states/" + participant.String() + versionQuery(version)

	err := c.get(ctx, path, &msg)
	if err != nil {
		return nil, err
	}

	return msg.State()
}

// GetLeaderboard returns the attempts of the version ranked by score. The
// version zero selects the current one.
func (c *Client) GetLeaderboard(ctx context.Context, version uint64) ([]quiz.State, error) {
	var msgs []AttemptJSON

	err := c.get(ctx, LeaderboardPath+versionQuery(version), &msgs)
	if err != nil {
		return nil, err
	}

	states := make([]quiz.State, len(msgs))
	for i, msg := range msgs {
		state, err := msg.State()
		if err != nil {
			return nil, err
		}

		states[i] = *state
	}

	return states, nil
}

func (c *Client) confirmationOf(ctx context.Context, msg ConfirmationJSON) (ordering.Confirmation, error) {
	conf, err := msg.Confirmation()
	if err != nil {
		return conf, xerrors.Errorf("invalid confirmation: %v", err)
	}

	pubkey, err := c.getPublicKey(ctx)
	if err != nil {
		return conf, err
	}

	err = conf.Verify(c.hashFac, pubkey, c.sigFac)
	if err != nil {
		return conf, xerrors.Errorf("invalid confirmation: %v", err)
	}

	return conf, nil
}

func (c *Client) getPublicKey(ctx context.Context) (crypto.PublicKey, error) {
	c.Lock()
	defer c.Unlock()

	if c.pubkey != nil {
		return c.pubkey, nil
	}

	info, err := c.GetInfo(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to get info: %v", err)
	}

	data, err := base58.Decode(info.Sequencer)
	if err != nil {
		return nil, xerrors.Errorf("malformed sequencer key: %v", err)
	}

	pubkey, err := ed25519.NewPublicKeyFactory().FromBytes(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode sequencer key: %v", err)
	}

	c.pubkey = pubkey

	return pubkey, nil
}

func (c *Client) get(ctx context.Context, path string, msg interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, msg, http.StatusOK)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, msg interface{}, expected ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return xerrors.Errorf("failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return xerrors.Errorf("failed to request %s: %v", path, err)
	}

	defer resp.Body.Close()

	for _, status := range expected {
		if resp.StatusCode == status {
			err = json.NewDecoder(resp.Body).Decode(msg)
			if err != nil {
				return xerrors.Errorf("failed to decode response: %v", err)
			}

			return nil
		}
	}

	return responseError(resp)
}

func responseError(resp *http.Response) error {
	e := &ResponseError{Status: resp.StatusCode}

	var msg ErrorJSON

	err := json.NewDecoder(resp.Body).Decode(&msg)
	if err != nil {
		e.Message = http.StatusText(resp.StatusCode)
		return e
	}

	e.Message = msg.Error
	e.RequestID = msg.RequestID
	e.Cause = execution.FromCode(msg.Code)

	return e
}

func versionQuery(version uint64) string {
	if version == 0 {
		return ""
	}

	return "?" + url.Values{VersionQuery: []string{strconv.FormatUint(version, 10)}}.Encode()
}
