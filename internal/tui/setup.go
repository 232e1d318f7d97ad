package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/uubinn0/Challengobi-sub000/internal/cli"
	"github.com/uubinn0/Challengobi-sub000/internal/config"
	"github.com/uubinn0/Challengobi-sub000/internal/tui/theme"
)

var errRequired = errors.New("required")

// SetupValues holds the answers collected by the setup form.
type SetupValues struct {
	BaseURL     string
	AccessToken string
	Timezone    string
	Theme       string
}

// SetupValuesFrom seeds the form with the current configuration. The
// token is left blank so an empty answer keeps the stored one.
func SetupValuesFrom(cfg config.Config) SetupValues {
	return SetupValues{
		BaseURL:  cfg.API.BaseURL,
		Timezone: cfg.Verification.Timezone,
		Theme:    theme.ByName(cfg.Appearance.Theme).Name,
	}
}

// NewSetupForm builds the first-run form. currentToken is shown masked so
// the user can tell whether one is already stored.
func NewSetupForm(vals *SetupValues, currentToken string) *huh.Form {
	tokenDesc := "Bearer token from the Challengobi app. Leave blank to skip."
	if currentToken != "" {
		tokenDesc = "Current: " + cli.MaskToken(currentToken) + ". Leave blank to keep it."
	}

	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, th := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(th.Name, th.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Challenge API URL").
				Value(&vals.BaseURL).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errRequired
					}
					return nil
				}),
			huh.NewInput().
				Title("Access token").
				Description(tokenDesc).
				EchoMode(huh.EchoModePassword).
				Value(&vals.AccessToken),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Day boundary timezone").
				Options(
					huh.NewOption("Asia/Seoul", "Asia/Seoul"),
					huh.NewOption("UTC", "UTC"),
					huh.NewOption("Local", ""),
				).
				Value(&vals.Timezone),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&vals.Theme),
		),
	)
}

// Apply copies the answers into cfg.
func (v SetupValues) Apply(cfg *config.Config) {
	if u := strings.TrimSpace(v.BaseURL); u != "" {
		cfg.API.BaseURL = strings.TrimRight(u, "/")
	}
	if tok := strings.TrimSpace(v.AccessToken); tok != "" {
		cfg.Auth.AccessToken = tok
	}
	cfg.Verification.Timezone = v.Timezone
	cfg.Appearance.Theme = theme.ByName(v.Theme).Name
}
