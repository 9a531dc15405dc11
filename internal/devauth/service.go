// Package devauth is a small authentication service speaking the login wire
// contract. It backs local development and the end-to-end tests.
package devauth

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultChallengeTTL = 5 * time.Minute
	DefaultSessionTTL   = time.Hour
	DefaultIssuer       = "devauth"

	JWKSPath         = "/.well-known/jwks.json"
	AuthenticatePath = "/authenticate"

	maxRequestBytes = 1 << 20
)

var ErrDuplicateUser = errors.New("user already exists")

// Config configures a Service.
type Config struct {
	Issuer       string
	Store        ChallengeStore
	ChallengeTTL time.Duration
	SessionTTL   time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

// User is an account known to the service.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	// TOTPSecret enables the second factor when set.
	TOTPSecret string
}

// Service authenticates users with the password and mfa strategies.
type Service struct {
	store        ChallengeStore
	signer       *signer
	challengeTTL time.Duration
	now          func() time.Time
	logger       *zap.Logger

	mu    sync.RWMutex
	users map[string]*User
}

func New(cfg Config) (*Service, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryChallengeStore(cfg.Now)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	sig, err := newSigner(cfg.Issuer, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:        cfg.Store,
		signer:       sig,
		challengeTTL: cfg.ChallengeTTL,
		now:          cfg.Now,
		logger:       cfg.Logger.Named("devauth"),
		users:        map[string]*User{},
	}, nil
}

// AddUser registers an account. An empty totpSecret disables the second
// factor for it.
func (s *Service) AddUser(email, password, totpSecret string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	key := normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[key]; exists {
		return nil, ErrDuplicateUser
	}
	user := &User{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		TOTPSecret:   totpSecret,
	}
	s.users[key] = user
	return user, nil
}

// Handler returns the HTTP interface of the service.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post(AuthenticatePath, s.authenticateHandler)
	r.Get(JWKSPath, s.jwksHandler)
	return r
}

type authenticateRequest struct {
	Strategy string `json:"strategy"`
	User     struct {
		Email string `json:"email"`
	} `json:"user"`
	Password string `json:"password"`
	MFAToken string `json:"mfaToken"`
	Code     string `json:"code"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	User      struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Tokens struct {
		AccessToken string `json:"accessToken"`
	} `json:"tokens"`
}

func (s *Service) authenticateHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch req.Strategy {
	case "password":
		s.passwordLogin(w, r, req)
	case "mfa":
		s.mfaLogin(w, r, req)
	default:
		writeMessage(w, http.StatusBadRequest, "Unsupported strategy")
	}
}

func (s *Service) passwordLogin(w http.ResponseWriter, r *http.Request, req authenticateRequest) {
	if strings.TrimSpace(req.User.Email) == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	s.mu.RLock()
	user, ok := s.users[normalizeEmail(req.User.Email)]
	s.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		s.logger.Info("password rejected")
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if user.TOTPSecret == "" {
		s.issueSession(w, user)
		return
	}

	token := uuid.NewString()
	challenge := Challenge{UserID: user.ID, Email: user.Email}
	if err := s.store.Save(r.Context(), token, challenge, s.challengeTTL); err != nil {
		s.logger.Error("failed to save challenge", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Could not start second factor")
		return
	}
	s.logger.Info("second factor challenge issued", zap.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, map[string]string{"mfaToken": token})
}

func (s *Service) mfaLogin(w http.ResponseWriter, r *http.Request, req authenticateRequest) {
	if req.MFAToken == "" || strings.TrimSpace(req.Code) == "" {
		writeMessage(w, http.StatusBadRequest, "Token and code are required")
		return
	}

	challenge, err := s.store.Get(r.Context(), req.MFAToken)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			writeMessage(w, http.StatusUnauthorized, "Verification expired, sign in again")
			return
		}
		s.logger.Error("failed to load challenge", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Could not verify code")
		return
	}

	s.mu.RLock()
	user, ok := s.users[normalizeEmail(challenge.Email)]
	s.mu.RUnlock()
	if !ok || user.ID != challenge.UserID {
		writeMessage(w, http.StatusUnauthorized, "Verification expired, sign in again")
		return
	}

	valid, err := totp.ValidateCustom(strings.TrimSpace(req.Code), user.TOTPSecret, s.now(), totpValidateOpts)
	if err != nil || !valid {
		s.logger.Info("second factor rejected", zap.String("user_id", user.ID))
		writeMessage(w, http.StatusUnauthorized, "Invalid code")
		return
	}

	// Only the request that consumes the challenge gets the session.
	if _, err := s.store.Take(r.Context(), req.MFAToken); err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			writeMessage(w, http.StatusUnauthorized, "Verification expired, sign in again")
			return
		}
		s.logger.Error("failed to consume challenge", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Could not verify code")
		return
	}
	s.issueSession(w, user)
}

func (s *Service) issueSession(w http.ResponseWriter, user *User) {
	sessionID := uuid.NewString()
	token, err := s.signer.sign(user.ID, sessionID, s.now())
	if err != nil {
		s.logger.Error("failed to sign session", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Could not create session")
		return
	}

	var resp sessionResponse
	resp.SessionID = sessionID
	resp.User.ID = user.ID
	resp.User.Email = user.Email
	resp.Tokens.AccessToken = token

	s.logger.Info("session issued", zap.String("user_id", user.ID), zap.String("session_id", sessionID))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) jwksHandler(w http.ResponseWriter, r *http.Request) {
	set, err := s.signer.keySet()
	if err != nil {
		s.logger.Error("failed to build key set", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Key set unavailable")
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
