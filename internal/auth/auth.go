package auth

// auth.go — autenticación por firma. El usuario firma un nonce con su
// propia clave; la dirección se recupera de la firma, así que el
// servidor nunca genera ni guarda material de claves. Las sesiones son
// UUIDs opacos con expiración en storage.

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/alejandrodnm/atombot/internal/ports"
)

// nonceMessage es el texto exacto que firma el wallet del usuario.
const nonceMessage = "Sign this nonce to authenticate with Cosmos Trading Agent: %s"

const (
	// nonceTTL acota la ventana de replay de una firma.
	nonceTTL = 5 * time.Minute
	// clockSkew tolera relojes de cliente ligeramente adelantados.
	clockSkew = 1 * time.Minute
	// sessionTTL es la vida de una sesión desde el login.
	sessionTTL = 24 * time.Hour
)

var (
	ErrExpiredNonce    = errors.New("auth: nonce expired")
	ErrUnauthenticated = errors.New("auth: invalid or expired session")
)

// Credentials es la prueba de posesión de clave que presenta el cliente.
type Credentials struct {
	Nonce     string
	Timestamp time.Time
	// Signature es la firma secp256k1 en hex (r||s||v, 65 bytes) sobre
	// keccak256 del mensaje de nonce.
	Signature string
}

// RecoverAddress verifica la firma y devuelve la dirección de custodia
// del firmante. La ventana del nonce es de 5 minutos.
func RecoverAddress(creds Credentials, now time.Time) (string, error) {
	if creds.Nonce == "" {
		return "", errors.New("auth.RecoverAddress: empty nonce")
	}
	if now.Sub(creds.Timestamp) > nonceTTL {
		return "", fmt.Errorf("auth.RecoverAddress: %w", ErrExpiredNonce)
	}
	if creds.Timestamp.Sub(now) > clockSkew {
		return "", errors.New("auth.RecoverAddress: timestamp in the future")
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(creds.Signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("auth.RecoverAddress: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("auth.RecoverAddress: signature must be 65 bytes, got %d", len(sig))
	}
	// Los wallets codifican v como 27/28; Ecrecover espera 0/1.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	hash := crypto.Keccak256([]byte(fmt.Sprintf(nonceMessage, creds.Nonce)))
	pub, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return "", fmt.Errorf("auth.RecoverAddress: recover: %w", err)
	}
	return addressFromPubKey(pub, custodyHRP)
}

// Service gestiona las sesiones autenticadas.
type Service struct {
	store ports.AccountStore
	log   *slog.Logger
	now   func() time.Time
}

// NewService crea el servicio de sesiones sobre el AccountStore dado.
func NewService(store ports.AccountStore, logger *slog.Logger) *Service {
	return &Service{store: store, log: logger, now: time.Now}
}

// NewSession emite una sesión fresca para la cuenta.
func (s *Service) NewSession(ctx context.Context, accountID int64) (string, time.Time, error) {
	sessionID := uuid.NewString()
	expiresAt := s.now().Add(sessionTTL)
	if err := s.store.CreateSession(ctx, accountID, sessionID, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("auth.NewSession: %w", err)
	}
	s.log.Info("session created", "account", accountID, "expires_at", expiresAt)
	return sessionID, expiresAt, nil
}

// Authenticate resuelve una sesión vigente a su cuenta.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, ErrUnauthenticated
	}
	accountID, err := s.store.AccountIDForSession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("auth.Authenticate: %w", err)
	}
	if accountID == 0 {
		return 0, ErrUnauthenticated
	}
	return accountID, nil
}

// Login verifica las credenciales, busca la cuenta por la dirección
// recuperada y emite una sesión nueva.
func (s *Service) Login(ctx context.Context, creds Credentials) (accountID int64, sessionID string, err error) {
	address, err := RecoverAddress(creds, s.now())
	if err != nil {
		return 0, "", err
	}
	acct, err := s.store.GetAccountByAddress(ctx, address)
	if err != nil {
		return 0, "", fmt.Errorf("auth.Login: %w", err)
	}
	if acct == nil {
		return 0, "", fmt.Errorf("auth.Login: no account for %s", address)
	}
	sessionID, _, err = s.NewSession(ctx, acct.ID)
	if err != nil {
		return 0, "", err
	}
	return acct.ID, sessionID, nil
}
