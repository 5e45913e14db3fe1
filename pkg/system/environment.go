package system

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/edgeflare/sqlgate/pkg/httputil"
	"github.com/edgeflare/sqlgate/pkg/store"
)

type Platform struct {
	VersionCurrent   string `json:"version_current"`
	VersionLatest    string `json:"version_latest"`
	UpgradeAvailable bool   `json:"upgrade_available"`
	IsHosted         bool   `json:"is_hosted"`
	Host             string `json:"host"`
}

// LoginAPI describes a login endpoint.
type LoginAPI struct {
	Path      string         `json:"path"`
	Name      string         `json:"name,omitempty"`
	Label     string         `json:"label,omitempty"`
	Verb      any            `json:"verb"`
	Type      string         `json:"type,omitempty"`
	IconClass string         `json:"icon_class,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type Authentication struct {
	Admin  LoginAPI    `json:"admin"`
	User   *LoginAPI   `json:"user,omitempty"`
	OAuth  *[]LoginAPI `json:"oauth,omitempty"`
	AdLdap *[]LoginAPI `json:"adldap,omitempty"`
}

type AppInfo struct {
	ID                    int    `json:"id"`
	Name                  string `json:"name"`
	Description           string `json:"description"`
	URL                   string `json:"url"`
	IsDefault             bool   `json:"is_default"`
	AllowFullscreenToggle bool   `json:"allow_fullscreen_toggle"`
	RequiresFullscreen    bool   `json:"requires_fullscreen"`
	ToggleLocation        string `json:"toggle_location"`
}

type AppGroupInfo struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	App         []AppInfo `json:"app"`
}

// Server is the host block shown to sys-admins.
type Server struct {
	ServerOS string `json:"server_os"`
	Release  string `json:"release"`
	Version  string `json:"version"`
	Host     string `json:"host"`
	Machine  string `json:"machine"`
}

// Runtime is the Go runtime block shown to sys-admins.
type Runtime struct {
	Version    string `json:"version"`
	Compiler   string `json:"compiler"`
	GOOS       string `json:"goos"`
	GOARCH     string `json:"goarch"`
	NumCPU     int    `json:"num_cpu"`
	GOMAXPROCS int    `json:"gomaxprocs"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

type Environment struct {
	Platform       Platform       `json:"platform"`
	Authentication Authentication `json:"authentication"`
	AppGroup       []AppGroupInfo `json:"app_group"`
	NoGroupApp     []AppInfo      `json:"no_group_app"`
	Config         APIConfig      `json:"config"`
	Server         *Server        `json:"server,omitempty"`
	Runtime        *Runtime       `json:"runtime,omitempty"`
}

// hostInfo reports the machine the gateway runs on.
type hostInfo func(ctx context.Context) (Server, error)

func gopsutilHost(ctx context.Context) (Server, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return Server{}, fmt.Errorf("host info: %w", err)
	}
	return Server{
		ServerOS: strings.ToLower(info.OS),
		Release:  info.KernelVersion,
		Version:  strings.TrimSpace(info.Platform + " " + info.PlatformVersion),
		Host:     info.Hostname,
		Machine:  info.KernelArch,
	}, nil
}

func goRuntime() *Runtime {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &Runtime{
		Version:    runtime.Version(),
		Compiler:   runtime.Compiler,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

func (h *Handler) environment(w http.ResponseWriter, r *http.Request) {
	env, err := h.Environment(r.Context(), httputil.SessionFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, env)
}

// Environment builds the environment report as seen by session s.
func (h *Handler) Environment(ctx context.Context, s httputil.Session) (Environment, error) {
	hostname, _ := os.Hostname()
	env := Environment{
		Platform: Platform{
			VersionCurrent:   h.cfg.Platform.VersionCurrent,
			VersionLatest:    h.cfg.Platform.VersionLatest,
			UpgradeAvailable: h.cfg.Platform.VersionLatest != h.cfg.Platform.VersionCurrent,
			IsHosted:         h.cfg.Platform.IsHosted,
			Host:             hostname,
		},
		Config: h.cfg.API,
	}

	auth, err := h.authentication(ctx)
	if err != nil {
		return Environment{}, err
	}
	env.Authentication = auth

	env.AppGroup, env.NoGroupApp, err = h.apps(ctx, s)
	if err != nil {
		return Environment{}, err
	}

	if s.IsSysAdmin {
		srv, err := h.host(ctx)
		if err != nil {
			return Environment{}, err
		}
		env.Server = &srv
		env.Runtime = goRuntime()
	}
	return env, nil
}

var (
	oauthTypes = []string{"oauth_facebook", "oauth_twitter", "oauth_github", "oauth_google"}
	ldapTypes  = []string{"ldap", "adldap"}
)

func (h *Handler) authentication(ctx context.Context) (Authentication, error) {
	credentials := map[string]any{"email": "string", "password": "string", "remember_me": "bool"}
	auth := Authentication{
		Admin: LoginAPI{Path: "system/admin/session", Verb: http.MethodPost, Payload: credentials},
	}
	if !h.cfg.Platform.UserModule {
		return auth, nil
	}
	auth.User = &LoginAPI{Path: "user/session", Verb: http.MethodPost, Payload: credentials}

	services, err := h.store.Services(ctx)
	if err != nil {
		return Authentication{}, err
	}
	oauth, ldap := []LoginAPI{}, []LoginAPI{}
	for _, svc := range services {
		if !svc.IsActive {
			continue
		}
		path := "user/session?service=" + strings.ToLower(svc.Name)
		switch {
		case slices.Contains(oauthTypes, svc.Type):
			icon, _ := svc.Config["icon_class"].(string)
			oauth = append(oauth, LoginAPI{
				Path:      path,
				Name:      svc.Name,
				Label:     svc.Label,
				Verb:      []string{http.MethodGet, http.MethodPost},
				Type:      svc.Type,
				IconClass: icon,
			})
		case slices.Contains(ldapTypes, svc.Type):
			ldap = append(ldap, LoginAPI{
				Path:  path,
				Name:  svc.Name,
				Label: svc.Label,
				Verb:  http.MethodPost,
				Payload: map[string]any{
					"username":    "string",
					"password":    "string",
					"service":     svc.Name,
					"remember_me": "bool",
				},
			})
		}
	}
	auth.OAuth, auth.AdLdap = &oauth, &ldap
	return auth, nil
}

// apps splits the apps visible to s into grouped and ungrouped lists.
// Sys-admins see every launchable app; users see the apps they hold a role
// in plus public ones; anonymous callers see public apps only.
func (h *Handler) apps(ctx context.Context, s httputil.Session) ([]AppGroupInfo, []AppInfo, error) {
	apps, err := h.store.Apps(ctx)
	if err != nil {
		return nil, nil, err
	}
	groups, err := h.store.AppGroups(ctx)
	if err != nil {
		return nil, nil, err
	}
	defaultID, err := h.store.DefaultAppID(ctx)
	if err != nil {
		return nil, nil, err
	}

	granted := map[int]bool{}
	if s.Authenticated() && !s.IsSysAdmin && s.UserID > 0 {
		roles, err := h.store.UserAppRoles(ctx, s.UserID)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range roles {
			if r.RoleID > 0 {
				granted[r.AppID] = true
			}
		}
	}

	visible := func(a store.App) bool {
		switch {
		case !a.Visible():
			return false
		case s.IsSysAdmin:
			return true
		case s.Authenticated():
			return granted[a.ID] || a.Public()
		}
		return a.Public()
	}

	byID := make(map[int]store.App, len(apps))
	for _, a := range apps {
		if visible(a) {
			byID[a.ID] = a
		}
	}

	grouped := []AppGroupInfo{}
	inGroup := map[int]bool{}
	for _, g := range groups {
		var infos []AppInfo
		for _, id := range g.AppIDs {
			if a, ok := byID[id]; ok {
				infos = append(infos, appInfo(a, defaultID))
				inGroup[id] = true
			}
		}
		if len(infos) > 0 {
			grouped = append(grouped, AppGroupInfo{ID: g.ID, Name: g.Name, Description: g.Description, App: infos})
		}
	}

	ungrouped := []AppInfo{}
	for _, a := range apps {
		if _, ok := byID[a.ID]; ok && !inGroup[a.ID] {
			ungrouped = append(ungrouped, appInfo(a, defaultID))
		}
	}
	return grouped, ungrouped, nil
}

func appInfo(a store.App, defaultID *int) AppInfo {
	return AppInfo{
		ID:                    a.ID,
		Name:                  a.Name,
		Description:           a.Description,
		URL:                   a.LaunchURL,
		IsDefault:             defaultID != nil && *defaultID == a.ID,
		AllowFullscreenToggle: a.AllowFullscreenToggle,
		RequiresFullscreen:    a.RequiresFullscreen,
		ToggleLocation:        a.ToggleLocation,
	}
}
