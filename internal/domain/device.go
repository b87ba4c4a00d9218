package domain

import "context"

// Device is a catalog entry. Devices the user never set up are
// auto-registered on first ingest with a placeholder name.
type Device struct {
	ID       int    `json:"id" bson:"dev_id"`
	Name     string `json:"name" bson:"name"`
	Category string `json:"category" bson:"category"`
	Type     string `json:"type" bson:"type"`
	Favorite bool   `json:"favorite" bson:"favorite"`
}

type DeviceCatalog interface {
	FindByIDAndType(ctx context.Context, deviceID int, deviceType string) (Device, error)
	Save(ctx context.Context, device Device) error
	List(ctx context.Context) ([]Device, error)
}
