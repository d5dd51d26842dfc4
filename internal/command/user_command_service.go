package command

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/eaglebank/ledger-service/internal/repository"
	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/eaglebank/ledger-service/shared/cqrs"
	"github.com/eaglebank/ledger-service/shared/events"
	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/eaglebank/ledger-service/shared/utils"
)

const (
	defaultCurrency = "USD"
	defaultTheme    = "light"
	minPasswordLen  = 8
)

var themes = map[string]bool{"light": true, "dark": true}

// UserCommandService owns registration and the profile fields of a user.
type UserCommandService struct {
	emitter
}

func NewUserCommandService(store repository.LedgerStore, cache BalanceCache, publisher EventPublisher, log *slog.Logger) *UserCommandService {
	return &UserCommandService{emitter: newEmitter(store, cache, publisher, log)}
}

func (s *UserCommandService) RegisterUser(ctx context.Context, cmd cqrs.RegisterUserCommand) (*models.User, error) {
	return s.createUser(ctx, cmd, false)
}

// BootstrapAdmin creates the admin account on first start. An existing user
// with the same email is returned untouched.
func (s *UserCommandService) BootstrapAdmin(ctx context.Context, cmd cqrs.RegisterUserCommand) (*models.User, error) {
	existing, err := s.store.GetUserByEmail(ctx, cmd.Email)
	if err == nil {
		if !existing.IsAdmin {
			s.log.Warn("bootstrap admin email belongs to a regular user", slog.String("user_id", existing.ID))
		}
		return existing, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, apperr.Internal("command.BootstrapAdmin", err)
	}
	return s.createUser(ctx, cmd, true)
}

func (s *UserCommandService) createUser(ctx context.Context, cmd cqrs.RegisterUserCommand, admin bool) (*models.User, error) {
	const op = "command.RegisterUser"
	name := strings.TrimSpace(cmd.Name)
	email := strings.TrimSpace(cmd.Email)
	if name == "" {
		return nil, apperr.Validation("name", "is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("email", "must be a valid email address")
	}
	if len(cmd.Password) < minPasswordLen {
		return nil, apperr.Validation("password", "must be at least 8 characters")
	}
	hash, err := utils.HashPassword(cmd.Password)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	now := s.now()
	user := &models.User{
		ID:             utils.GenerateID(utils.UserIDPrefix),
		Name:           name,
		Email:          email,
		PasswordHash:   hash,
		PhoneNumber:    strings.TrimSpace(cmd.PhoneNumber),
		Address:        cmd.Address,
		Currency:       defaultCurrency,
		Theme:          defaultTheme,
		IsAdmin:        admin,
		KYCStatus:      models.KYCUnset,
		Investments:    []models.Investment{},
		Notifications:  []models.Notification{},
		TransactionIDs: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, apperr.Internal(op, err)
	}

	// nothing else can hold the new user yet, so the view is written directly
	s.cache.CacheBalanceView(ctx, models.ToBalanceView(user))
	s.emit(ctx, &effect{
		userID:       user.ID,
		notification: "Welcome to Eagle Bank, " + name + ".",
		stream:       events.UserEventsStream,
		eventType:    events.UserRegistered,
		event:        events.UserRegisteredEvent{UserID: user.ID, Email: user.Email, Name: user.Name},
	})
	s.log.Info("user registered", slog.String("user_id", user.ID), slog.Bool("admin", admin))
	return user, nil
}

// UpdateProfile applies the supplied fields. The phone number can be set once
// and is immutable afterwards.
func (s *UserCommandService) UpdateProfile(ctx context.Context, cmd cqrs.UpdateProfileCommand) (*models.User, error) {
	const op = "command.UpdateProfile"
	if cmd.Name != nil && strings.TrimSpace(*cmd.Name) == "" {
		return nil, apperr.Validation("name", "must not be empty")
	}
	if cmd.Theme != nil && !themes[*cmd.Theme] {
		return nil, apperr.Validation("theme", "must be light or dark")
	}
	if cmd.Currency != nil && len(strings.TrimSpace(*cmd.Currency)) != 3 {
		return nil, apperr.Validation("currency", "must be a three letter code")
	}

	var updated *models.User
	err := s.mutate(ctx, op, cmd.UserID, func(tx repository.LedgerTx) (*effect, error) {
		u := tx.User()
		if cmd.PhoneNumber != nil {
			phone := strings.TrimSpace(*cmd.PhoneNumber)
			if u.PhoneNumber != "" && phone != u.PhoneNumber {
				return nil, apperr.Validation("phoneNumber", "cannot be changed once set")
			}
			u.PhoneNumber = phone
		}
		if cmd.Name != nil {
			u.Name = strings.TrimSpace(*cmd.Name)
		}
		if cmd.Address != nil {
			u.Address = *cmd.Address
		}
		if cmd.Currency != nil {
			u.Currency = strings.ToUpper(strings.TrimSpace(*cmd.Currency))
		}
		if cmd.Theme != nil {
			u.Theme = *cmd.Theme
		}
		u.UpdatedAt = s.now()
		if err := tx.SaveUser(ctx); err != nil {
			return nil, err
		}
		updated = u.Clone()
		return &effect{
			stream:    events.UserEventsStream,
			eventType: events.ProfileUpdated,
			event:     events.ProfileUpdatedEvent{UserID: u.ID, Name: u.Name},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkNotificationsRead flags the given notifications, or all of them when no
// ids are supplied, and returns how many changed.
func (s *UserCommandService) MarkNotificationsRead(ctx context.Context, cmd cqrs.MarkNotificationsReadCommand) (int, error) {
	const op = "command.MarkNotificationsRead"
	want := make(map[string]bool, len(cmd.IDs))
	for _, id := range cmd.IDs {
		want[id] = true
	}

	marked := 0
	err := s.mutate(ctx, op, cmd.UserID, func(tx repository.LedgerTx) (*effect, error) {
		u := tx.User()
		for i := range u.Notifications {
			n := &u.Notifications[i]
			if n.Read || (len(want) > 0 && !want[n.ID]) {
				continue
			}
			n.Read = true
			marked++
		}
		if marked == 0 {
			return nil, nil
		}
		u.UpdatedAt = s.now()
		return nil, tx.SaveUser(ctx)
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}
