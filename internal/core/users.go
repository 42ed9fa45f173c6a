package core

import (
	"context"
	"strings"

	"labstock/pkg/domain"
)

// RegisterUser creates an active account. The password is stored as a bcrypt
// hash.
func (s *Service) RegisterUser(ctx context.Context, user domain.User, password string) (domain.User, domain.Result, error) {
	hash, err := domain.HashPassword(password)
	if err != nil {
		return domain.User{}, domain.Result{}, err
	}
	user.ID = ""
	user.Username = strings.TrimSpace(user.Username)
	user.Password = hash
	user.Active = true
	var created domain.User
	res, err := s.run(ctx, "register_user", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateUser(user)
		return err
	})
	return created, res, err
}

// Authenticate checks a login attempt. Unknown usernames and wrong passwords
// both yield ErrInvalidCredentials; a correct password on a deactivated
// account yields ErrInactiveUser. Legacy plain comparison values are
// replaced with a bcrypt hash on the first successful login.
func (s *Service) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	var user domain.User
	err := s.view(ctx, "authenticate", func(v domain.TransactionView) error {
		found, ok, err := v.FindUserByUsername(strings.TrimSpace(username))
		if err != nil {
			return err
		}
		if !ok || !domain.CheckPassword(found.Password, password) {
			return domain.ErrInvalidCredentials
		}
		if !found.Active {
			return domain.ErrInactiveUser
		}
		user = found
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	if domain.IsLegacyPassword(user.Password) {
		user = s.upgradePassword(ctx, user, password)
	}
	return user, nil
}

// upgradePassword replaces a legacy comparison value with a bcrypt hash and
// returns the stored user. A failed upgrade is logged and user is returned
// unchanged; the login itself already succeeded.
func (s *Service) upgradePassword(ctx context.Context, user domain.User, password string) domain.User {
	hash, err := domain.HashPassword(password)
	if err != nil {
		s.logger.Warn("password upgrade skipped", "user", user.Username, "error", err)
		return user
	}
	var upgraded domain.User
	if _, err := s.run(ctx, "upgrade_password", func(tx domain.Transaction) error {
		var err error
		upgraded, err = tx.UpdateUser(user.ID, func(u *domain.User) error {
			u.Password = hash
			return nil
		})
		return err
	}); err != nil {
		s.logger.Warn("password upgrade failed", "user", user.Username, "error", err)
		return user
	}
	s.logger.Info("legacy password upgraded", "user", user.Username)
	return upgraded
}

// SetUserActive activates or deactivates an account by username.
func (s *Service) SetUserActive(ctx context.Context, username string, active bool) (domain.User, domain.Result, error) {
	var updated domain.User
	res, err := s.run(ctx, "set_user_active", func(tx domain.Transaction) error {
		user, err := requireUser(tx, username)
		if err != nil {
			return err
		}
		updated, err = tx.UpdateUser(user.ID, func(u *domain.User) error {
			u.Active = active
			return nil
		})
		return err
	})
	return updated, res, err
}

// DeleteUser removes an account by username. Usage records keep their free
// text user name.
func (s *Service) DeleteUser(ctx context.Context, username string) (domain.Result, error) {
	return s.run(ctx, "delete_user", func(tx domain.Transaction) error {
		user, err := requireUser(tx, username)
		if err != nil {
			return err
		}
		return tx.DeleteUser(user.ID)
	})
}

// ListUsers returns all accounts ordered by username.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := s.view(ctx, "list_users", func(v domain.TransactionView) error {
		var err error
		out, err = v.ListUsers()
		return err
	})
	return out, err
}

func requireUser(tx domain.Transaction, username string) (domain.User, error) {
	user, ok, err := tx.FindUserByUsername(username)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: username}
	}
	return user, nil
}
