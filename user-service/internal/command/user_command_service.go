package command

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/models"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
}

type UserViewCache interface {
	CacheUserView(ctx context.Context, view *models.UserView)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// UserCommandService writes to PostgreSQL and keeps the Redis read model in sync.
type UserCommandService struct {
	writeRepo UserStore
	readRepo  UserViewCache
	publisher EventPublisher
	now       func() time.Time
}

func NewUserCommandService(writeRepo UserStore, readRepo UserViewCache, publisher EventPublisher) *UserCommandService {
	return &UserCommandService{
		writeRepo: writeRepo,
		readRepo:  readRepo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserCommandService) CreateUser(ctx context.Context, cmd cqrs.CreateUserCommand) (*models.UserView, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "name is required")
	}

	now := s.now()
	user := &models.User{Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.writeRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	view := models.NewUserView(user)
	s.readRepo.CacheUserView(ctx, view)
	if err := s.publisher.Publish(ctx, events.UserEventsStream, events.UserCreated, events.UserCreatedEvent{
		UserID: user.ID,
		Name:   user.Name,
	}); err != nil {
		slog.Warn("failed to publish event", "component", "user", "type", events.UserCreated, "user_id", user.ID, "err", err)
	}
	return view, nil
}
