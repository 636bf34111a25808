package entity

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/contest/core/address"
	"go.dedis.ch/contest/core/execution"
	"go.dedis.ch/contest/internal/testing/fake"
	"golang.org/x/xerrors"
)

func TestDiscriminator(t *testing.T) {
	digest := sha256.Sum256([]byte("account:SubmissionAccount"))
	require.Equal(t, digest[:8], Discriminator("SubmissionAccount"))
	require.NotEqual(t, Discriminator("SubmissionAccount"), Discriminator("UserProfile"))
}

func TestEncode(t *testing.T) {
	owner := solana.PublicKey{1, 2, 3}
	rec := &testRecord{Owner: owner, Title: "abc", Count: 5, Done: true}

	data, err := Encode(rec)
	require.NoError(t, err)

	expected := append([]byte{}, Discriminator("TestRecord")...)
	expected = append(expected, owner[:]...)
	expected = binary.LittleEndian.AppendUint32(expected, 3)
	expected = append(expected, "abc"...)
	expected = binary.LittleEndian.AppendUint64(expected, 5)
	expected = append(expected, 1)

	require.Equal(t, expected, data)

	decoded := &testRecord{}
	require.NoError(t, Decode(data, decoded))
	require.Equal(t, rec, decoded)

	err = Decode(data, &otherRecord{})
	require.EqualError(t, err, "data is not a OtherRecord")

	err = Decode(data[:DiscriminatorSize+4], &testRecord{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode TestRecord: ")

	require.False(t, IsKind([]byte{1}, "TestRecord"))
}

func TestStore_Create(t *testing.T) {
	snap := fake.NewSnapshot()
	st := NewStore(snap)

	addr := makeAddress(t, "a")

	err := st.Create(addr, &testRecord{Title: "a"})
	require.NoError(t, err)

	err = st.Create(addr, &testRecord{Title: "b"})
	require.ErrorIs(t, err, execution.ErrAlreadyExists)

	rec := &testRecord{}
	require.NoError(t, st.Read(addr, rec))
	require.Equal(t, "a", rec.Title)

	err = NewStore(fake.NewBadSnapshot()).Create(addr, rec)
	require.EqualError(t, err, fake.Err("failed to read account"))

	bad := fake.NewSnapshot()
	bad.ErrWrite = fake.GetError()
	err = NewStore(bad).Create(addr, rec)
	require.EqualError(t, err, fake.Err("failed to write account"))
}

func TestStore_Read(t *testing.T) {
	snap := fake.NewSnapshot()
	st := NewStore(snap)

	addr := makeAddress(t, "a")

	err := st.Read(addr, &testRecord{})
	require.ErrorIs(t, err, execution.ErrNotFound)

	require.NoError(t, st.Create(addr, &testRecord{}))

	err = st.Read(addr, &otherRecord{})
	require.ErrorIs(t, err, execution.ErrNotFound)
	require.Contains(t, err.Error(), "is not a OtherRecord")

	require.NoError(t, snap.Set(addr[:], Discriminator("TestRecord")))
	err = st.Read(addr, &testRecord{})
	require.Error(t, err)
	require.Nil(t, execution.Cause(err))
	require.Contains(t, err.Error(), "corrupted account")

	err = NewStore(fake.NewBadSnapshot()).Read(addr, &testRecord{})
	require.EqualError(t, err, fake.Err("failed to read account"))
}

func TestStore_Mutate(t *testing.T) {
	snap := fake.NewSnapshot()
	st := NewStore(snap)

	addr := makeAddress(t, "a")

	rec := &testRecord{}
	err := st.Mutate(addr, rec, func() error { return nil })
	require.ErrorIs(t, err, execution.ErrNotFound)

	require.NoError(t, st.Create(addr, &testRecord{Count: 1}))

	err = st.Mutate(addr, rec, func() error {
		rec.Count++
		return nil
	})
	require.NoError(t, err)

	stored := &testRecord{}
	require.NoError(t, st.Read(addr, stored))
	require.Equal(t, uint64(2), stored.Count)

	err = st.Mutate(addr, rec, func() error {
		rec.Count = 100
		return xerrors.Errorf("nope: %w", execution.ErrOverflow)
	})
	require.ErrorIs(t, err, execution.ErrOverflow)

	require.NoError(t, st.Read(addr, stored))
	require.Equal(t, uint64(2), stored.Count)
}

func TestStore_ForEach(t *testing.T) {
	snap := fake.NewSnapshot()
	st := NewStore(snap)

	for _, seed := range []string{"a", "b", "c"} {
		require.NoError(t, st.Create(makeAddress(t, seed), &testRecord{Title: seed}))
	}

	require.NoError(t, st.Create(makeAddress(t, "d"), &otherRecord{}))
	require.NoError(t, snap.Set([]byte("receipt"), []byte{1}))

	titles := []string{}
	rec := &testRecord{}
	err := st.ForEach(rec, func(addr address.Address) error {
		require.Equal(t, makeAddress(t, rec.Title), addr)
		titles = append(titles, rec.Title)
		return nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b", "c"}, titles)

	err = st.ForEach(rec, func(address.Address) error {
		return fake.GetError()
	})
	require.Equal(t, fake.GetError(), err)

	require.NoError(t, snap.Set(makeAddress(t, "e").Bytes(), Discriminator("TestRecord")))
	err = st.ForEach(rec, func(address.Address) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "corrupted account")
}

func TestStore_Exists(t *testing.T) {
	st := NewStore(fake.NewSnapshot())

	found, err := st.Exists(makeAddress(t, "a"))
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, st.Create(makeAddress(t, "a"), &otherRecord{}))

	found, err = st.Exists(makeAddress(t, "a"))
	require.NoError(t, err)
	require.True(t, found)
}

// -----------------------------------------------------------------------------
// Utility functions

type testRecord struct {
	Owner solana.PublicKey
	Title string
	Count uint64
	Done  bool
}

func (testRecord) AccountName() string {
	return "TestRecord"
}

type otherRecord struct {
	Value uint8
}

func (otherRecord) AccountName() string {
	return "OtherRecord"
}

func makeAddress(t *testing.T, seed string) address.Address {
	addr, _, err := address.NewDeriver(address.DefaultProgramID).Derive([]byte(seed))
	require.NoError(t, err)

	return addr
}
