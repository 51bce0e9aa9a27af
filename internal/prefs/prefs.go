// Package prefs stores the small UI settings that live next to the
// conversation history: the API credential, sidebar state and theme.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/RichardoC/padchat/internal/kv"
	"go.uber.org/zap"
)

const (
	CredentialKey  = "credential"
	SidebarOpenKey = "sidebar-open"
	ThemeKey       = "theme"

	ThemeDark  = "dark"
	ThemeLight = "light"
)

var ErrInvalidTheme = errors.New(`theme must be "dark" or "light"`)

type Prefs struct {
	kv     kv.Store
	logger *zap.Logger
}

func New(backend kv.Store, logger *zap.Logger) *Prefs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prefs{kv: backend, logger: logger}
}

// Credential returns the stored credential, empty if unset or unreadable.
func (p *Prefs) Credential(ctx context.Context) string {
	v, _, err := p.kv.Get(ctx, CredentialKey)
	if err != nil {
		p.logger.Warn("failed to read credential", zap.Error(err))
		return ""
	}
	return v
}

func (p *Prefs) SetCredential(ctx context.Context, credential string) error {
	return p.kv.Set(ctx, CredentialKey, credential)
}

// SidebarOpen defaults to true.
func (p *Prefs) SidebarOpen(ctx context.Context) bool {
	v, ok, err := p.kv.Get(ctx, SidebarOpenKey)
	if err != nil {
		p.logger.Warn("failed to read sidebar state", zap.Error(err))
		return true
	}
	if !ok {
		return true
	}
	var open bool
	if err := json.Unmarshal([]byte(v), &open); err != nil {
		p.logger.Warn("ignoring unreadable sidebar state", zap.String("value", v))
		return true
	}
	return open
}

func (p *Prefs) SetSidebarOpen(ctx context.Context, open bool) error {
	return p.kv.Set(ctx, SidebarOpenKey, strconv.FormatBool(open))
}

// Theme defaults to light.
func (p *Prefs) Theme(ctx context.Context) string {
	v, _, err := p.kv.Get(ctx, ThemeKey)
	if err != nil {
		p.logger.Warn("failed to read theme", zap.Error(err))
		return ThemeLight
	}
	if v == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

func (p *Prefs) SetTheme(ctx context.Context, theme string) error {
	if theme != ThemeDark && theme != ThemeLight {
		return ErrInvalidTheme
	}
	return p.kv.Set(ctx, ThemeKey, theme)
}
