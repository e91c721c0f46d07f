package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/isdelr/telemed-portal/internal/database"
	"github.com/isdelr/telemed-portal/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	Register(ctx context.Context, input RegisterInput) (models.User, error)
	Authenticate(ctx context.Context, username, password string) (models.User, error)
	ChangePassword(ctx context.Context, id int64, currentPassword, newPassword string) error
	EnsureAdmin(ctx context.Context, input RegisterInput) (models.User, bool, error)
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

const minPasswordLength = 8

// UserService provides business logic for user management.
type UserService struct {
	db       *database.DB
	hashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewUserService creates a new UserService. hashCost is the bcrypt cost.
func NewUserService(db *database.DB, hashCost int) *UserService {
	if hashCost < bcrypt.MinCost {
		hashCost = bcrypt.DefaultCost
	}
	return &UserService{db: db, hashCost: hashCost}
}

const userColumns = "id, username, email, first_name, last_name, password_hash, role, created_at"

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// getUserByUsername includes the password hash.
func (s *UserService) getUserByUsername(ctx context.Context, username string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE username = ?"), username)
	return scanUser(row)
}

func (s *UserService) getUserWithHash(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	return scanUser(row)
}

// Register validates the form, rejects a taken username or email, and stores the new
// member with a bcrypt password hash.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	if err := validateRegistration(input); err != nil {
		return models.User{}, err
	}
	return s.createUser(ctx, input, models.RoleMember)
}

// EnsureAdmin creates the administrator account unless a user with the same username or
// email already exists. The boolean reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, input RegisterInput) (models.User, bool, error) {
	input.ConfirmPassword = input.Password
	if err := validateRegistration(input); err != nil {
		return models.User{}, false, err
	}
	user, err := s.createUser(ctx, input, models.RoleAdmin)
	if errors.Is(err, ErrDuplicate) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func (s *UserService) createUser(ctx context.Context, input RegisterInput, role string) (models.User, error) {
	var taken int
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind("SELECT COUNT(*) FROM users WHERE username = ? OR email = ?"),
		input.Username, input.Email,
	).Scan(&taken)
	if err != nil {
		return models.User{}, storeErr("check existing user", err)
	}
	if taken > 0 {
		return models.User{}, fmt.Errorf("%w: username or email is taken", ErrDuplicate)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username:  input.Username,
		Email:     input.Email,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}

	err = s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO users (username, email, first_name, last_name, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		user.Username, user.Email, user.FirstName, user.LastName, string(hashedPassword), user.Role, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, fmt.Errorf("%w: username or email is taken", ErrDuplicate)
		}
		return models.User{}, storeErr("create user", err)
	}
	return user, nil
}

// Authenticate verifies a user's credentials. An unknown username and a wrong password
// produce the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.getUserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		// Keep the timing of the unknown-user path close to the wrong-password path.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}

// ChangePassword verifies the current password, then hashes and sets a new password for a user.
func (s *UserService) ChangePassword(ctx context.Context, id int64, currentPassword, newPassword string) error {
	var v validator
	v.required("newPassword", newPassword)
	v.length("newPassword", newPassword, minPasswordLength, 0)
	if err := v.err(); err != nil {
		return err
	}

	user, err := s.getUserWithHash(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE users SET password_hash = ? WHERE id = ?"), string(hashedPassword), id); err != nil {
		return storeErr("update password", err)
	}
	return nil
}

func (s *UserService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.hashCost)
	})
	return s.dummyHash
}

func validateRegistration(input RegisterInput) error {
	var v validator
	if v.required("username", input.Username) {
		v.length("username", input.Username, 4, 25)
	}
	if v.required("email", input.Email) {
		v.email("email", input.Email)
		v.length("email", input.Email, 0, 50)
	}
	if v.required("password", input.Password) {
		v.length("password", input.Password, minPasswordLength, 0)
	}
	v.check(input.ConfirmPassword == input.Password, "confirmPassword", "must match password")
	return v.err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %w", ErrNotFound)
		}
		return models.User{}, storeErr("load user", err)
	}
	return user, nil
}
