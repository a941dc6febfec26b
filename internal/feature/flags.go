// Package feature evaluates rollout flags for optional knowledge base
// features.
package feature

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	FlagTicketSuggestions = "ticket-suggestions"
	FlagPDFAutoAdd        = "pdf-auto-add"
)

var ErrUnknownFlag = errors.New("unknown feature flag")

type FlagType string

const (
	TypeBoolean     FlagType = "boolean"
	TypePercentage  FlagType = "percentage"
	TypeUser        FlagType = "user"
	TypeEnvironment FlagType = "environment"
)

type Flag struct {
	Description string     `yaml:"description" json:"description"`
	Enabled     bool       `yaml:"enabled" json:"enabled"`
	Type        FlagType   `yaml:"type" json:"type"`
	Percentage  int        `yaml:"percentage" json:"percentage,omitempty"`
	Users       []string   `yaml:"users" json:"users,omitempty"`
	Groups      []string   `yaml:"groups" json:"groups,omitempty"`
	Environment string     `yaml:"environment" json:"environment,omitempty"`
	StartTime   *time.Time `yaml:"start_time" json:"startTime,omitempty"`
	EndTime     *time.Time `yaml:"end_time" json:"endTime,omitempty"`
}

type Backend interface {
	GetFlag(ctx context.Context, name string) (Flag, error)
}

// StaticBackend serves flags from configuration
type StaticBackend map[string]Flag

// NewStaticBackend overlays configured flags on DefaultFlags
func NewStaticBackend(configured map[string]Flag) StaticBackend {
	b := make(StaticBackend, len(DefaultFlags)+len(configured))
	for name, f := range DefaultFlags {
		b[name] = f
	}
	for name, f := range configured {
		b[name] = f
	}
	return b
}

func (b StaticBackend) GetFlag(_ context.Context, name string) (Flag, error) {
	f, ok := b[name]
	if !ok {
		return Flag{}, ErrUnknownFlag
	}
	return f, nil
}

type UserContext struct {
	ID     string
	Groups []string
}

// Manager evaluates flags and caches results per flag and user
type Manager struct {
	backend     Backend
	cache       *gocache.Cache
	environment string
	logger      *slog.Logger
}

func NewManager(backend Backend, environment string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:     backend,
		cache:       gocache.New(time.Minute, 10*time.Minute),
		environment: environment,
		logger:      logger,
	}
}

// IsEnabled reports whether the flag is on for the user. Unknown flags and
// backend errors evaluate to false.
func (m *Manager) IsEnabled(ctx context.Context, name string, user UserContext) bool {
	key := name + ":" + user.ID
	if enabled, found := m.cache.Get(key); found {
		return enabled.(bool)
	}

	flag, err := m.backend.GetFlag(ctx, name)
	if err != nil {
		m.logger.Warn("feature flag unavailable", "flag", name, "error", err)
		return false
	}

	enabled := m.evaluate(flag, user, time.Now())
	m.cache.Set(key, enabled, gocache.DefaultExpiration)
	return enabled
}

func (m *Manager) evaluate(flag Flag, user UserContext, now time.Time) bool {
	if !flag.Enabled {
		return false
	}
	if flag.StartTime != nil && now.Before(*flag.StartTime) {
		return false
	}
	if flag.EndTime != nil && now.After(*flag.EndTime) {
		return false
	}

	switch flag.Type {
	case TypeBoolean, "":
		return true

	case TypePercentage:
		// stable per user so a rollout does not flap between requests
		return int(hashString(user.ID)%100) < flag.Percentage

	case TypeUser:
		for _, u := range flag.Users {
			if u == user.ID {
				return true
			}
		}
		for _, group := range flag.Groups {
			for _, g := range user.Groups {
				if group == g {
					return true
				}
			}
		}
		return false

	case TypeEnvironment:
		return flag.Environment == m.environment

	default:
		return false
	}
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// DefaultFlags are in effect unless configuration overrides them
var DefaultFlags = map[string]Flag{
	FlagTicketSuggestions: {
		Description: "Suggest knowledge articles while a ticket is being written",
		Enabled:     true,
		Type:        TypeBoolean,
	},
	FlagPDFAutoAdd: {
		Description: "Allow PDF uploads to persist chunks without a review step",
		Enabled:     true,
		Type:        TypeBoolean,
	},
}
