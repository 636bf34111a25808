// Package serial implements an ordering service that applies the instructions
// one at a time.
//
// A single goroutine pulls the instructions from a queue and runs each of them
// to completion inside one writable transaction of the database. The
// transaction is committed only if the instruction is accepted, so that a
// rejected instruction leaves no trace. Two instructions racing for the same
// derived address are therefore always applied one after the other, and the
// second one finds the address occupied.
//
// An accepted instruction is remembered by its digest so that a client
// submitting it again learns that it has already been applied.
package serial

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/contest"
	"go.dedis.ch/contest/core"
	"go.dedis.ch/contest/core/access"
	"go.dedis.ch/contest/core/entity"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/core/ordering"
	"go.dedis.ch/contest/core/store"
	"go.dedis.ch/contest/core/store/kv"
	"go.dedis.ch/contest/core/txn"
	"go.dedis.ch/contest/crypto"
	"golang.org/x/xerrors"
)

// DefaultQueueSize is the number of instructions that can wait for the
// sequencer before a submission blocks.
const DefaultQueueSize = 100

var (
	// AccountsBucket is the bucket of the records of the contracts.
	AccountsBucket = []byte("accounts")

	receiptsBucket = []byte("receipts")
	noncesBucket   = []byte("nonces")
	metaBucket     = []byte("meta")

	headKey = []byte("head")
)

// ErrClosed is returned when an instruction is submitted to a closed service.
var ErrClosed = xerrors.New("sequencer is closed")

// errRejected aborts the storage transaction of a rejected instruction.
var errRejected = xerrors.New("rejected")

// defines prometheus metrics
var (
	promInstructions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contest_sequencer_instructions_total",
		Help: "total number of processed instructions by outcome",
	}, []string{"outcome"})

	promLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "contest_sequencer_execution_seconds",
		Help:    "time to apply an instruction",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	promHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "contest_sequencer_height",
		Help: "number of accepted instructions",
	})
)

func init() {
	contest.PromCollectors = append(contest.PromCollectors,
		promInstructions, promLatency, promHeight)
}

// verifiable is implemented by the instructions that carry a signature.
type verifiable interface {
	Verify() error
}

// Option is the type of options to create a service.
type Option func(*Service)

// WithClock sets the clock that timestamps the confirmations.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithQueueSize sets the number of instructions waiting to be applied.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		s.queueSize = size
	}
}

// WithHashFactory sets the hash that links the confirmations.
func WithHashFactory(f crypto.HashFactory) Option {
	return func(s *Service) {
		s.hashFactory = f
	}
}

// Service is an ordering service backed by a key/value database.
//
// - implements ordering.Service
type Service struct {
	db          kv.DB
	exec        execution.Service
	signer      crypto.Signer
	hashFactory crypto.HashFactory
	clock       clockwork.Clock
	watcher     *core.Watcher[ordering.Event]
	logger      zerolog.Logger
	queueSize   int

	queue     chan request
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type request struct {
	ctx  context.Context
	tx   txn.Transaction
	resp chan response
}

type response struct {
	conf ordering.Confirmation
	err  error
}

// NewService creates a service and starts the sequencer.
func NewService(db kv.DB, exec execution.Service, signer crypto.Signer, opts ...Option) (*Service, error) {
	s := &Service{
		db:          db,
		exec:        exec,
		signer:      signer,
		hashFactory: crypto.NewHashFactory(crypto.Sha3_256),
		clock:       clockwork.NewRealClock(),
		watcher:     core.NewWatcher[ordering.Event](),
		logger:      contest.Logger.With().Str("role", "sequencer").Logger(),
		queueSize:   DefaultQueueSize,
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.queue = make(chan request, s.queueSize)

	var height uint64

	err := db.Update(func(wtx kv.WritableTx) error {
		for _, name := range [][]byte{AccountsBucket, receiptsBucket, noncesBucket, metaBucket} {
			_, err := wtx.GetBucketOrCreate(name)
			if err != nil {
				return xerrors.Errorf("failed to create bucket '%s': %v", name, err)
			}
		}

		meta, _ := wtx.GetBucketOrCreate(metaBucket)

		h, err := readHead(meta)
		height = h.Height

		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to initialize: %v", err)
	}

	promHeight.Set(float64(height))

	go s.main()

	s.logger.Info().Uint64("height", height).Msg("sequencer has started")

	return s, nil
}

// Submit implements ordering.Service. It verifies the signature of the
// instruction, queues it and waits for the confirmation.
func (s *Service) Submit(ctx context.Context, tx txn.Transaction) (ordering.Confirmation, error) {
	v, ok := tx.(verifiable)
	if !ok {
		return ordering.Confirmation{}, xerrors.Errorf("invalid transaction '%T'", tx)
	}

	err := v.Verify()
	if err != nil {
		return ordering.Confirmation{}, xerrors.Errorf("failed to verify: %v", err)
	}

	req := request{
		ctx:  ctx,
		tx:   tx,
		resp: make(chan response, 1),
	}

	select {
	case <-s.closing:
		return ordering.Confirmation{}, ErrClosed
	case <-ctx.Done():
		return ordering.Confirmation{}, xerrors.Errorf("failed to queue: %w", ctx.Err())
	case s.queue <- req:
	}

	select {
	case <-ctx.Done():
		return ordering.Confirmation{}, xerrors.Errorf("failed to wait: %w", ctx.Err())
	case resp := <-req.resp:
		return resp.conf, resp.err
	case <-s.done:
		select {
		case resp := <-req.resp:
			return resp.conf, resp.err
		default:
			return ordering.Confirmation{}, ErrClosed
		}
	}
}

// GetReceipt implements ordering.Service. It returns the confirmation of the
// accepted instruction, or NotFound.
func (s *Service) GetReceipt(id []byte) (ordering.Confirmation, error) {
	var conf ordering.Confirmation

	err := s.db.View(func(rtx kv.ReadableTx) error {
		bucket := rtx.GetBucket(receiptsBucket)
		if bucket == nil {
			return xerrors.Errorf("receipt %x: %w", id, execution.ErrNotFound)
		}

		data := bucket.Get(id)
		if data == nil {
			return xerrors.Errorf("receipt %x: %w", id, execution.ErrNotFound)
		}

		rec := &receipt{}

		err := entity.Decode(data, rec)
		if err != nil {
			return xerrors.Errorf("corrupted receipt: %v", err)
		}

		conf = rec.confirmation()

		return nil
	})
	if err != nil {
		return conf, err
	}

	return conf, nil
}

// GetNonce implements ordering.Service and signed.Client.
func (s *Service) GetNonce(ident access.Identity) (uint64, error) {
	var nonce uint64

	err := s.db.View(func(rtx kv.ReadableTx) error {
		bucket := rtx.GetBucket(noncesBucket)
		if bucket == nil {
			return nil
		}

		addr := ident.GetAddress()
		nonce = decodeCounter(bucket.Get(addr[:]))

		return nil
	})
	if err != nil {
		return 0, xerrors.Errorf("failed to read nonce: %v", err)
	}

	return nonce, nil
}

// GetHeight returns the number of accepted instructions and the hash of the
// last confirmation.
func (s *Service) GetHeight() (uint64, []byte, error) {
	var h head

	err := s.db.View(func(rtx kv.ReadableTx) error {
		var err error
		h, err = readHead(rtx.GetBucket(metaBucket))
		return err
	})
	if err != nil {
		return 0, nil, err
	}

	return h.Height, h.Hash, nil
}

// View implements ordering.Service. The snapshot is read-only.
func (s *Service) View(fn func(snap store.Snapshot) error) error {
	return s.db.View(func(rtx kv.ReadableTx) error {
		bucket := rtx.GetBucket(AccountsBucket)
		if bucket == nil {
			return fn(kv.NewEmptySnapshot())
		}

		return fn(kv.NewSnapshot(bucket))
	})
}

// GetPublicKey implements ordering.Service.
func (s *Service) GetPublicKey() crypto.PublicKey {
	return s.signer.GetPublicKey()
}

// Watch implements ordering.Service. Events are dropped when the channel is
// full.
func (s *Service) Watch(ctx context.Context) <-chan ordering.Event {
	obs := observer{ch: make(chan ordering.Event, s.queueSize)}
	s.watcher.Add(obs)

	go func() {
		<-ctx.Done()
		s.watcher.Remove(obs)
	}()

	return obs.ch
}

// Close implements ordering.Service. It waits for the instruction being
// applied, if any, and refuses the pending ones.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
	})

	<-s.done

	return nil
}

func (s *Service) main() {
	defer close(s.done)

	for {
		select {
		case <-s.closing:
			s.drain()
			s.logger.Info().Msg("sequencer has stopped")
			return
		case req := <-s.queue:
			if req.ctx.Err() != nil {
				// The client stopped waiting before the instruction started.
				req.resp <- response{err: req.ctx.Err()}
				continue
			}

			conf, err := s.process(req.tx)
			req.resp <- response{conf: conf, err: err}
		}
	}
}

func (s *Service) drain() {
	for {
		select {
		case req := <-s.queue:
			req.resp <- response{err: ErrClosed}
		default:
			return
		}
	}
}

// process applies the instruction in a storage transaction which is committed
// only if the instruction is accepted.
func (s *Service) process(tx txn.Transaction) (ordering.Confirmation, error) {
	start := s.clock.Now()

	conf := ordering.Confirmation{
		ID:          tx.GetID(),
		CommittedAt: start.UTC(),
	}

	err := s.db.Update(func(wtx kv.WritableTx) error {
		buckets, err := getBuckets(wtx)
		if err != nil {
			return err
		}

		h, err := readHead(buckets.meta)
		if err != nil {
			return err
		}

		conf.Index = h.Height + 1
		conf.Previous = h.Hash

		if buckets.receipts.Get(conf.ID) != nil {
			reject(&conf, xerrors.Errorf("instruction %x already applied: %w",
				conf.ID, execution.ErrAlreadyExists).Error(), execution.ErrAlreadyExists)

			return errRejected
		}

		ident := tx.GetIdentity()
		if ident != nil {
			addr := ident.GetAddress()
			expected := decodeCounter(buckets.nonces.Get(addr[:]))

			if tx.GetNonce() != expected {
				reject(&conf, xerrors.Errorf("nonce %d, expected %d: %w",
					tx.GetNonce(), expected, execution.ErrInvalidArgument).Error(),
					execution.ErrInvalidArgument)

				return errRejected
			}
		}

		res, err := s.exec.Execute(kv.NewSnapshot(buckets.accounts), execution.Step{Current: tx})
		if err != nil {
			return xerrors.Errorf("failed to execute: %v", err)
		}

		if !res.Accepted {
			reject(&conf, res.Message, res.Err)
			return errRejected
		}

		conf.Accepted = true

		err = s.sign(&conf)
		if err != nil {
			return err
		}

		err = s.record(buckets, tx, conf)
		if err != nil {
			return err
		}

		wtx.OnCommit(func() {
			promHeight.Set(float64(conf.Index))
		})

		return nil
	})

	if xerrors.Is(err, errRejected) {
		err = s.sign(&conf)
	}

	promLatency.Observe(s.clock.Since(start).Seconds())

	if err != nil {
		promInstructions.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Hex("id", conf.ID).Msg("instruction failed")

		return ordering.Confirmation{}, err
	}

	if conf.Accepted {
		promInstructions.WithLabelValues("accepted").Inc()

		s.logger.Debug().
			Uint64("index", conf.Index).
			Hex("id", conf.ID).
			Msg("instruction accepted")
	} else {
		promInstructions.WithLabelValues(conf.Name).Inc()

		s.logger.Debug().
			Hex("id", conf.ID).
			Str("error", conf.Name).
			Msg(conf.Message)
	}

	s.watcher.Notify(ordering.Event{Confirmation: conf})

	return conf, nil
}

// record persists the receipt, the nonce of the identity and the new head.
func (s *Service) record(buckets buckets, tx txn.Transaction, conf ordering.Confirmation) error {
	data, err := entity.Encode(newReceipt(conf))
	if err != nil {
		return err
	}

	err = buckets.receipts.Set(conf.ID, data)
	if err != nil {
		return xerrors.Errorf("failed to write receipt: %v", err)
	}

	ident := tx.GetIdentity()
	if ident != nil {
		addr := ident.GetAddress()
		nonce := decodeCounter(buckets.nonces.Get(addr[:]))

		err = buckets.nonces.Set(addr[:], encodeCounter(nonce+1))
		if err != nil {
			return xerrors.Errorf("failed to write nonce: %v", err)
		}
	}

	data, err = entity.Encode(&head{Height: conf.Index, Hash: conf.Hash})
	if err != nil {
		return err
	}

	err = buckets.meta.Set(headKey, data)
	if err != nil {
		return xerrors.Errorf("failed to write head: %v", err)
	}

	return nil
}

func (s *Service) sign(conf *ordering.Confirmation) error {
	h := s.hashFactory.New()

	err := conf.Fingerprint(h)
	if err != nil {
		return xerrors.Errorf("failed to fingerprint: %v", err)
	}

	conf.Hash = h.Sum(nil)

	sig, err := s.signer.Sign(conf.Hash)
	if err != nil {
		return xerrors.Errorf("failed to sign: %v", err)
	}

	conf.Signature, err = sig.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to marshal signature: %v", err)
	}

	return nil
}

func reject(conf *ordering.Confirmation, msg string, cause *execution.Error) {
	conf.Accepted = false
	conf.Message = msg

	if cause != nil {
		conf.Code = cause.Code
		conf.Name = cause.Name
	}
}

type buckets struct {
	accounts kv.Bucket
	receipts kv.Bucket
	nonces   kv.Bucket
	meta     kv.Bucket
}

func getBuckets(wtx kv.WritableTx) (buckets, error) {
	var res buckets

	for name, dst := range map[string]*kv.Bucket{
		string(AccountsBucket): &res.accounts,
		string(receiptsBucket): &res.receipts,
		string(noncesBucket):   &res.nonces,
		string(metaBucket):     &res.meta,
	} {
		bucket, err := wtx.GetBucketOrCreate([]byte(name))
		if err != nil {
			return res, xerrors.Errorf("failed to open bucket '%s': %v", name, err)
		}

		*dst = bucket
	}

	return res, nil
}

func readHead(bucket kv.Bucket) (head, error) {
	h := head{Hash: ordering.GenesisHash}

	if bucket == nil {
		return h, nil
	}

	data := bucket.Get(headKey)
	if data == nil {
		return h, nil
	}

	err := entity.Decode(data, &h)
	if err != nil {
		return h, xerrors.Errorf("corrupted head: %v", err)
	}

	return h, nil
}

func encodeCounter(value uint64) []byte {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, value)

	return buffer
}

func decodeCounter(data []byte) uint64 {
	if len(data) != 8 {
		return 0
	}

	return binary.LittleEndian.Uint64(data)
}

// head is the latest accepted confirmation.
//
// - implements entity.Record
type head struct {
	Height uint64
	Hash   []byte
}

// AccountName implements entity.Record.
func (head) AccountName() string {
	return "Head"
}

// receipt is the stored form of the confirmation of an accepted instruction.
//
// - implements entity.Record
type receipt struct {
	Index       uint64
	ID          []byte
	CommittedAt int64
	Previous    []byte
	Hash        []byte
	Signature   []byte
}

func newReceipt(conf ordering.Confirmation) *receipt {
	return &receipt{
		Index:       conf.Index,
		ID:          conf.ID,
		CommittedAt: conf.CommittedAt.UnixNano(),
		Previous:    conf.Previous,
		Hash:        conf.Hash,
		Signature:   conf.Signature,
	}
}

// AccountName implements entity.Record.
func (receipt) AccountName() string {
	return "Receipt"
}

func (r receipt) confirmation() ordering.Confirmation {
	return ordering.Confirmation{
		Index:       r.Index,
		ID:          r.ID,
		Accepted:    true,
		CommittedAt: time.Unix(0, r.CommittedAt).UTC(),
		Previous:    r.Previous,
		Hash:        r.Hash,
		Signature:   r.Signature,
	}
}

type observer struct {
	ch chan ordering.Event
}

func (obs observer) NotifyCallback(event ordering.Event) {
	select {
	case obs.ch <- event:
	default:
		contest.Logger.Warn().Msg("confirmation dropped by a slow watcher")
	}
}
