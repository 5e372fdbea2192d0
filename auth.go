package livetiming

import (
	"context"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

const authRealm = "livetiming"

type accountContextKey struct{}

// Authenticator checks HTTP basic credentials against the configured
// accounts.
type Authenticator struct {
	accounts map[string]Account
	logger   Logger
}

func NewAuthenticator(accounts []Account, logger Logger) *Authenticator {
	a := &Authenticator{
		accounts: make(map[string]Account, len(accounts)),
		logger:   logger,
	}

	for _, account := range accounts {
		a.accounts[account.Username] = account
	}

	return a
}

// Authenticate returns the account matching the request's basic auth
// credentials, if any.
func (a *Authenticator) Authenticate(r *http.Request) (*Account, bool) {
	username, password, ok := r.BasicAuth()

	if !ok {
		return nil, false
	}

	account, ok := a.accounts[username]

	if !ok {
		return nil, false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		if err != bcrypt.ErrMismatchedHashAndPassword {
			a.logger.WithError(err).Errorf("Could not check password for account %s", username)
		}

		return nil, false
	}

	return &account, true
}

// Require only lets through requests authenticated as an account with role.
func (a *Authenticator) Require(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := a.Authenticate(r)

			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+authRealm+`", charset="UTF-8"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			if !account.HasRole(role) {
				a.logger.Warnf("Account %s attempted %s %s without the %s role", account.Username, r.Method, r.URL.Path, role)
				writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountContextKey{}, account)))
		})
	}
}

// AccountFromContext returns the authenticated account, if any.
func AccountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountContextKey{}).(*Account)

	return account
}

// HashPassword produces a value suitable for an account's password_hash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	if err != nil {
		return "", err
	}

	return string(b), nil
}
