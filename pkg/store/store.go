// Package store persists the gateway's system data: event scripts and the
// app catalog the environment resource reports on.
package store

import (
	"context"
	"errors"

	"github.com/edgeflare/sqlgate/pkg/event"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrInvalidName   = errors.New("store: name is required")
)

// AppType classifies how an app is hosted.
type AppType int

const (
	AppTypeNone AppType = iota
	AppTypeStorage
	AppTypeURL
	AppTypePath
)

type App struct {
	ID                    int     `json:"id"`
	Name                  string  `json:"name"`
	Description           string  `json:"description"`
	Type                  AppType `json:"type"`
	LaunchURL             string  `json:"launch_url"`
	IsActive              bool    `json:"is_active"`
	RoleID                *int    `json:"role_id"` // default role; apps with one are public
	AllowFullscreenToggle bool    `json:"allow_fullscreen_toggle"`
	RequiresFullscreen    bool    `json:"requires_fullscreen"`
	ToggleLocation        string  `json:"toggle_location"`
}

// Visible reports whether the app can be launched at all.
func (a App) Visible() bool {
	return a.IsActive && a.Type != AppTypeNone
}

// Public reports whether anonymous callers may see the app.
func (a App) Public() bool {
	return a.RoleID != nil && *a.RoleID > 0
}

type AppGroup struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AppIDs      []int  `json:"app_ids"`
}

// UserAppRole grants a user a role in an app.
type UserAppRole struct {
	UserID int `json:"user_id"`
	AppID  int `json:"app_id"`
	RoleID int `json:"role_id"`
}

// Service is a registered service as listed in the system catalog.
type Service struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Label    string         `json:"label"`
	Type     string         `json:"type"`
	IsActive bool           `json:"is_active"`
	Config   map[string]any `json:"config"`
}

// Scripts manages event script registrations.
type Scripts interface {
	event.ScriptFinder
	ListScripts(ctx context.Context) ([]event.Script, error)
	GetScript(ctx context.Context, name string) (event.Script, error)
	CreateScript(ctx context.Context, s event.Script) (event.Script, error)
	UpdateScript(ctx context.Context, s event.Script) (event.Script, error)
	DeleteScript(ctx context.Context, name string) error
}

// Catalog is the read side of the app and service registry.
type Catalog interface {
	Apps(ctx context.Context) ([]App, error)
	AppGroups(ctx context.Context) ([]AppGroup, error)
	UserAppRoles(ctx context.Context, userID int) ([]UserAppRole, error)
	Services(ctx context.Context) ([]Service, error)
	// DefaultAppID is the system-wide default app, nil when unset.
	DefaultAppID(ctx context.Context) (*int, error)
}

type Store interface {
	Scripts
	Catalog
	Close()
}
