// Package system serves the administrative resources under /system: the
// environment report, event script management and the broadcast event map,
// plus the OpenAPI document of all data services.
package system

import (
	"cmp"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/edgeflare/sqlgate/pkg/apidoc"
	"github.com/edgeflare/sqlgate/pkg/httputil"
	"github.com/edgeflare/sqlgate/pkg/httputil/middleware"
	"github.com/edgeflare/sqlgate/pkg/store"
)

// DBConfig are the database defaults reported to clients.
type DBConfig struct {
	MaxRecordsReturned int    `mapstructure:"maxRecordsReturned" json:"max_records_returned"`
	TimeFormat         string `mapstructure:"timeFormat" json:"time_format"`
	DateFormat         string `mapstructure:"dateFormat" json:"date_format"`
	DatetimeFormat     string `mapstructure:"datetimeFormat" json:"datetime_format"`
	TimestampFormat    string `mapstructure:"timestampFormat" json:"timestamp_format"`
}

// APIConfig is the effective response-shaping configuration.
type APIConfig struct {
	AlwaysWrapResources bool     `mapstructure:"alwaysWrapResources" json:"always_wrap_resources"`
	ResourcesWrapper    string   `mapstructure:"resourcesWrapper" json:"resources_wrapper"`
	DB                  DBConfig `mapstructure:"db" json:"db"`
}

// PlatformConfig describes the running platform.
type PlatformConfig struct {
	VersionCurrent string `mapstructure:"versionCurrent"`
	VersionLatest  string `mapstructure:"versionLatest"`
	IsHosted       bool   `mapstructure:"isHosted"`
	// UserModule enables the user, oauth and adldap login descriptors.
	UserModule bool `mapstructure:"userModule"`
}

type Config struct {
	API      APIConfig
	Platform PlatformConfig
	Info     apidoc.Info
}

// Store is what the system resources read and write.
type Store interface {
	store.Scripts
	store.Catalog
}

// Handler serves the system resources.
type Handler struct {
	store    Store
	services apidoc.Catalog
	openapi  *apidoc.Generator
	cfg      Config
	host     hostInfo
	logger   *zap.Logger
}

// NewHandler creates the system resources. baseURL is used for the servers
// entry of the OpenAPI document.
func NewHandler(st Store, services apidoc.Catalog, baseURL string, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.API.ResourcesWrapper = cmp.Or(cfg.API.ResourcesWrapper, "resource")
	cfg.API.DB.MaxRecordsReturned = cmp.Or(cfg.API.DB.MaxRecordsReturned, 1000)
	cfg.Platform.VersionCurrent = cmp.Or(cfg.Platform.VersionCurrent, "dev")
	cfg.Platform.VersionLatest = cmp.Or(cfg.Platform.VersionLatest, cfg.Platform.VersionCurrent)
	cfg.Info.Title = cmp.Or(cfg.Info.Title, "sqlgate")
	cfg.Info.Version = cmp.Or(cfg.Info.Version, cfg.Platform.VersionCurrent)
	return &Handler{
		store:    st,
		services: services,
		openapi:  apidoc.NewGenerator(services, baseURL, cfg.API.ResourcesWrapper, cfg.Info),
		cfg:      cfg,
		host:     gopsutilHost,
		logger:   logger,
	}
}

// OpenAPI returns the generator serving /openapi.json.
func (h *Handler) OpenAPI() *apidoc.Generator {
	return h.openapi
}

// Register mounts the system routes on r. Event scripts and the broadcast
// map require a sys-admin session.
func (h *Handler) Register(r *httputil.Router) {
	r.Handle("GET /openapi.json", h.openapi)
	r.Handle("GET /system/environment", http.HandlerFunc(h.environment))

	admin := r.Group("/system")
	admin.Use(middleware.RequireAdmin)
	admin.Handle("GET /event", http.HandlerFunc(h.listScripts))
	admin.Handle("GET /event/{name}", http.HandlerFunc(h.getScript))
	admin.Handle("POST /event/{name}", http.HandlerFunc(h.createScript))
	admin.Handle("PATCH /event/{name}", http.HandlerFunc(h.updateScript))
	admin.Handle("DELETE /event/{name}", http.HandlerFunc(h.deleteScript))
	admin.Handle("GET /broadcast", http.HandlerFunc(h.broadcastMap))
}

func (h *Handler) wrap(v any) map[string]any {
	return map[string]any{h.cfg.API.ResourcesWrapper: v}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		httputil.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidName), errors.Is(err, errBadScript):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("system request failed", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "system request failed")
	}
}
