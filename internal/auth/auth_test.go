package auth

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/atombot/internal/domain"
)

// signNonce firma el mensaje de nonce con la clave dada, como lo haría
// el wallet del usuario.
func signNonce(t *testing.T, keyHex, nonce string) string {
	t.Helper()
	key, err := crypto.HexToECDSA(keyHex)
	require.NoError(t, err)

	hash := crypto.Keccak256([]byte(fmt.Sprintf(nonceMessage, nonce)))
	sig, err := crypto.Sign(hash, key)
	require.NoError(t, err)
	return hex.EncodeToString(sig)
}

// Clave determinista para fixtures; nunca se usa fuera de los tests.
const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestRecoverAddress_RoundTrip(t *testing.T) {
	now := time.Now()
	creds := Credentials{
		Nonce:     "abc123",
		Timestamp: now,
		Signature: signNonce(t, testKey, "abc123"),
	}

	addr, err := RecoverAddress(creds, now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "cosmos1"), "got %s", addr)

	// La dirección recuperada coincide con la derivada de la clave.
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	expected, err := addressFromPubKey(crypto.FromECDSAPub(&key.PublicKey), custodyHRP)
	require.NoError(t, err)
	assert.Equal(t, expected, addr)
}

func TestRecoverAddress_WalletStyleV(t *testing.T) {
	// Algunos wallets devuelven v = 27/28 en vez de 0/1.
	now := time.Now()
	raw, err := hex.DecodeString(signNonce(t, testKey, "abc123"))
	require.NoError(t, err)
	raw[64] += 27

	creds := Credentials{
		Nonce:     "abc123",
		Timestamp: now,
		Signature: hex.EncodeToString(raw),
	}
	addr, err := RecoverAddress(creds, now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "cosmos1"))
}

func TestRecoverAddress_ExpiredNonce(t *testing.T) {
	now := time.Now()
	creds := Credentials{
		Nonce:     "abc123",
		Timestamp: now.Add(-6 * time.Minute),
		Signature: signNonce(t, testKey, "abc123"),
	}

	_, err := RecoverAddress(creds, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpiredNonce)
}

func TestRecoverAddress_FutureTimestamp(t *testing.T) {
	now := time.Now()
	creds := Credentials{
		Nonce:     "abc123",
		Timestamp: now.Add(10 * time.Minute),
		Signature: signNonce(t, testKey, "abc123"),
	}

	_, err := RecoverAddress(creds, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "future")
}

func TestRecoverAddress_TamperedNonce(t *testing.T) {
	// Una firma sobre otro nonce recupera OTRA clave: la dirección no
	// coincide con la del firmante legítimo.
	now := time.Now()
	creds := Credentials{
		Nonce:     "evil-nonce",
		Timestamp: now,
		Signature: signNonce(t, testKey, "abc123"),
	}

	addr, err := RecoverAddress(creds, now)
	if err != nil {
		return // rechazo directo también vale
	}
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	legit, err := addressFromPubKey(crypto.FromECDSAPub(&key.PublicKey), custodyHRP)
	require.NoError(t, err)
	assert.NotEqual(t, legit, addr)
}

func TestRecoverAddress_MalformedSignature(t *testing.T) {
	now := time.Now()

	for name, sig := range map[string]string{
		"not hex":   "zz",
		"too short": "deadbeef",
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := RecoverAddress(Credentials{
				Nonce: "abc123", Timestamp: now, Signature: sig,
			}, now)
			assert.Error(t, err)
		})
	}
}

func TestRecoverAddress_EmptyNonce(t *testing.T) {
	now := time.Now()
	_, err := RecoverAddress(Credentials{
		Nonce: "", Timestamp: now, Signature: signNonce(t, testKey, "abc123"),
	}, now)
	assert.Error(t, err)
}

func TestDeriveTradingAddress(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	custody, err := addressFromPubKey(crypto.FromECDSAPub(&key.PublicKey), custodyHRP)
	require.NoError(t, err)

	trading, err := DeriveTradingAddress(custody)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(trading, "inj1"), "got %s", trading)

	// Mismo payload, distinto prefijo.
	_, custodyData, err := bech32.Decode(custody)
	require.NoError(t, err)
	hrp, tradingData, err := bech32.Decode(trading)
	require.NoError(t, err)
	assert.Equal(t, "inj", hrp)
	assert.Equal(t, custodyData, tradingData)
}

func TestDeriveTradingAddress_RejectsForeignPrefix(t *testing.T) {
	data, err := bech32.ConvertBits(make([]byte, 20), 8, 5, true)
	require.NoError(t, err)
	osmo, err := bech32.Encode("osmo", data)
	require.NoError(t, err)

	_, err = DeriveTradingAddress(osmo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected prefix")
}

// --- sesiones ---

type fakeAccountStore struct {
	accounts map[string]*domain.Account
	sessions map[string]int64
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		accounts: make(map[string]*domain.Account),
		sessions: make(map[string]int64),
	}
}

func (s *fakeAccountStore) CreateAccount(_ context.Context, acct *domain.Account) error {
	acct.ID = int64(len(s.accounts) + 1)
	s.accounts[acct.CustodyAddress] = acct
	return nil
}

func (s *fakeAccountStore) GetAccountByAddress(_ context.Context, addr string) (*domain.Account, error) {
	return s.accounts[addr], nil
}

func (s *fakeAccountStore) LoadAccounts(context.Context) ([]domain.Account, error) {
	return nil, nil
}

func (s *fakeAccountStore) UpdateAccount(context.Context, domain.Account) error { return nil }

func (s *fakeAccountStore) CreateSession(_ context.Context, accountID int64, sessionID string, _ time.Time) error {
	s.sessions[sessionID] = accountID
	return nil
}

func (s *fakeAccountStore) AccountIDForSession(_ context.Context, sessionID string) (int64, error) {
	return s.sessions[sessionID], nil
}

func newTestService(store *fakeAccountStore) *Service {
	return NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestService_SessionLifecycle(t *testing.T) {
	store := newFakeAccountStore()
	svc := newTestService(store)

	sessionID, expires, err := svc.NewSession(context.Background(), 7)
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
	assert.True(t, expires.After(time.Now().Add(23*time.Hour)))

	accountID, err := svc.Authenticate(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), accountID)
}

func TestService_AuthenticateRejectsUnknownSession(t *testing.T) {
	svc := newTestService(newFakeAccountStore())

	_, err := svc.Authenticate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestService_Login(t *testing.T) {
	store := newFakeAccountStore()
	svc := newTestService(store)

	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	address, err := addressFromPubKey(crypto.FromECDSAPub(&key.PublicKey), custodyHRP)
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(context.Background(), &domain.Account{CustodyAddress: address}))

	creds := Credentials{
		Nonce:     "login-nonce",
		Timestamp: time.Now(),
		Signature: signNonce(t, testKey, "login-nonce"),
	}
	accountID, sessionID, err := svc.Login(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, int64(1), accountID)

	resolved, err := svc.Authenticate(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, accountID, resolved)
}

func TestService_LoginUnknownAddress(t *testing.T) {
	svc := newTestService(newFakeAccountStore())

	creds := Credentials{
		Nonce:     "login-nonce",
		Timestamp: time.Now(),
		Signature: signNonce(t, testKey, "login-nonce"),
	}
	_, _, err := svc.Login(context.Background(), creds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no account")
}
