package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/r1/internal/config"
	"greendrake/r1/internal/models"
	"greendrake/r1/internal/utils"
)

// IUserService defines the interface for user lookups. Account creation and
// authentication are handled by the identity service; this side only reads.
type IUserService interface {
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	IsStaff(ctx context.Context, userID utils.SixID) (bool, error)
}

const usersCollection = "users"

// userService implements IUserService.
type userService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database, cfg *config.Config) IUserService {
	return &userService{db: db, cfg: cfg}
}

// FindByID finds a non-deleted user by ID.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	filter := bson.M{"_id": userID, "deleted": false}
	err := s.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.String(), err)
	}
	return &user, nil
}

// IsStaff reports whether the user exists, is not suspended and carries the
// staff role.
func (s *userService) IsStaff(ctx context.Context, userID utils.SixID) (bool, error) {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return user.IsStaff && !user.Suspended, nil
}
