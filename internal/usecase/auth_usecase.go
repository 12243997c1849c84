package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
	repo "github.com/Bree-codes/SuperMartConnect/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// アクセストークンの発行の約束。実体はmainのjwtIssuer。
type TokenIssuer interface {
	Issue(userID int64, role model.Role, now time.Time) (string, time.Time, error)
}

// 認証。coreからは不透明な協力者で、roleの出どころでしかない。
type AuthUsecase struct {
	userRepo repo.UserRepository
	issuer   TokenIssuer
	// bcryptのコスト
	hashCost int
	logger   *zap.Logger
}

func NewAuthUsecase(userRepo repo.UserRepository, issuer TokenIssuer, hashCost int, logger *zap.Logger) *AuthUsecase {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &AuthUsecase{userRepo: userRepo, issuer: issuer, hashCost: hashCost, logger: logger}
}

type RegisterInput struct {
	Username string
	Password string
	Role     string
}

type RegisterOutput struct {
	User model.User `json:"user"`
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (RegisterOutput, error) {
	username := strings.TrimSpace(in.Username)
	if len(username) < 3 || len(username) > 100 {
		return RegisterOutput{}, NewHTTPError(http.StatusBadRequest, "invalid username")
	}
	if len(in.Password) < 8 {
		return RegisterOutput{}, NewHTTPError(http.StatusBadRequest, "password too short")
	}

	role := model.RoleCustomer
	switch strings.ToUpper(strings.TrimSpace(in.Role)) {
	case "", string(model.RoleCustomer):
	case string(model.RoleAdmin):
		role = model.RoleAdmin
	default:
		return RegisterOutput{}, NewHTTPError(http.StatusBadRequest, "invalid role")
	}

	//重複チェック
	if existing, err := u.userRepo.FindByUsername(ctx, username); err == nil && existing != nil {
		return RegisterOutput{}, NewHTTPError(http.StatusConflict, "username already exists")
	} else if err != nil && !errors.Is(err, repo.ErrUserNotFound) {
		return RegisterOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), u.hashCost)
	if err != nil {
		return RegisterOutput{}, NewHTTPError(http.StatusInternalServerError, "hash error")
	}

	user := model.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := u.userRepo.Create(ctx, &user); err != nil {
		//一意制約との競合
		return RegisterOutput{}, NewHTTPError(http.StatusConflict, "username already exists")
	}

	u.logger.Info("user registered", zap.String("username", username), zap.String("role", string(role)))
	return RegisterOutput{User: user}, nil
}

type LoginInput struct {
	Username string
	Password string
}

type LoginOutput struct {
	User        model.User `json:"user"`
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (LoginOutput, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return LoginOutput{}, NewHTTPError(http.StatusBadRequest, "invalid input")
	}

	user, err := u.userRepo.FindByUsername(ctx, username)
	if errors.Is(err, repo.ErrUserNotFound) {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	token, expiresAt, err := u.issuer.Issue(user.ID, user.Role, time.Now())
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "token error")
	}

	return LoginOutput{User: *user, AccessToken: token, ExpiresAt: expiresAt}, nil
}
