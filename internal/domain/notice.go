package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notice is the admin-curated message of the day served by the free daily
// feature. At most one notice is active at a time.
type Notice struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Message   string             `bson:"message" json:"message"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
