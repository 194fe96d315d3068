package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt"

	"securechat/internal/database"
	"securechat/internal/types"
)

const (
	// AccessTokenTTL is the validity window of an access token. There
	// is no server-side revocation for access tokens; logout only
	// clears the client cookie.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the lifetime of a refresh credential.
	RefreshTokenTTL = 30 * 24 * time.Hour

	refreshSecretSize = 32
)

const (
	subClaim      = "sub"
	usernameClaim = "username"
	expClaim      = "exp"
)

// ErrUnauthorized is returned for any credential that is absent,
// malformed, expired or revoked.
var ErrUnauthorized = errors.New("invalid or expired credential")

// Claims is the verified identity carried by an access token.
type Claims struct {
	UserId   int
	Username string
}

// TokenService issues and verifies short-lived access tokens and
// rotates long-lived refresh credentials.
type TokenService struct {
	log        *log.Logger
	db         database.Repository
	signingKey []byte
}

func NewTokenService(logger *log.Logger, db database.Repository, signingKey []byte) *TokenService {
	return &TokenService{
		log:        logger,
		db:         db,
		signingKey: signingKey,
	}
}

// IssueAccess signs a short-lived access token carrying the subject id
// and username.
func (ts *TokenService) IssueAccess(user types.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subClaim:      user.Id,
		usernameClaim: user.Username,
		expClaim:      time.Now().Add(AccessTokenTTL).Unix(),
	})

	return token.SignedString(ts.signingKey)
}

// VerifyAccess checks signature and expiry and returns the embedded
// identity.
func (ts *TokenService) VerifyAccess(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrUnauthorized
	}

	sub, ok := claims[subClaim].(float64)
	if !ok {
		return Claims{}, ErrUnauthorized
	}

	username, _ := claims[usernameClaim].(string)

	return Claims{UserId: int(sub), Username: username}, nil
}

// IssueRefresh generates an opaque random refresh secret for the user,
// persists only its hash and returns the secret. The secret is shown
// to the caller exactly once.
func (ts *TokenService) IssueRefresh(userId int) (string, error) {
	buf := make([]byte, refreshSecretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh secret: %w", err)
	}

	secret := base64.RawURLEncoding.EncodeToString(buf)
	expiresAt := time.Now().UTC().Add(RefreshTokenTTL)

	if err := ts.db.CreateRefreshToken(userId, hashSecret(secret), expiresAt); err != nil {
		return "", fmt.Errorf("persist refresh token: %w", err)
	}

	return secret, nil
}

// Rotate exchanges a still-valid refresh secret for a new access token
// and a successor refresh secret. The conditional revoke is the single
// exclusive gate: of two concurrent rotations presenting the same
// secret, exactly one observes rows-affected == 1.
func (ts *TokenService) Rotate(secret string) (types.User, string, string, error) {
	hash := hashSecret(secret)

	affected, err := ts.db.RevokeRefreshToken(hash)
	if err != nil {
		return types.User{}, "", "", fmt.Errorf("revoke refresh token: %w", err)
	}
	if affected == 0 {
		return types.User{}, "", "", ErrUnauthorized
	}

	rt, err := ts.db.GetRefreshToken(hash)
	if err != nil {
		return types.User{}, "", "", fmt.Errorf("lookup refresh token: %w", err)
	}

	dbUser, err := ts.db.GetAccountById(rt.UserId)
	if err != nil {
		return types.User{}, "", "", fmt.Errorf("lookup account: %w", err)
	}

	user := types.User{
		Id:         dbUser.Id,
		Username:   dbUser.Username,
		ProfilePic: dbUser.ProfilePic,
		Status:     dbUser.Status,
	}

	access, err := ts.IssueAccess(user)
	if err != nil {
		return types.User{}, "", "", fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := ts.IssueRefresh(user.Id)
	if err != nil {
		return types.User{}, "", "", err
	}

	return user, access, refresh, nil
}

// RevokeOnLogout marks the matching refresh credential revoked. An
// absent or already-revoked credential is not an error.
func (ts *TokenService) RevokeOnLogout(secret string) {
	if secret == "" {
		return
	}

	if _, err := ts.db.RevokeRefreshToken(hashSecret(secret)); err != nil {
		ts.log.Println("revoke on logout:", err)
	}
}

func hashSecret(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}
