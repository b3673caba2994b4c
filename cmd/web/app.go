package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/config"
	"chatdocs.app/internal/docs"
	"chatdocs.app/internal/httpapi"
	"chatdocs.app/internal/session"
	"chatdocs.app/internal/store"
)

// app is everything serve needs, wired from one Config.
type app struct {
	cfg    *config.Config
	store  *store.Handle
	server *http.Server
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	secret, err := auth.ResolveSecret(cfg.Auth.Secret, cfg.AllowEphemeralSecret(), logger)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokens(secret, auth.WithIssuer(cfg.Auth.Issuer), auth.WithTTL(cfg.Auth.TokenTTL))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	svc, err := auth.NewService(st.Accounts, tokens, auth.WithPasswordCost(cfg.Auth.PasswordCost))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	gateOpts := []session.Option{
		session.WithCookies(session.Cookies{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure}),
		session.WithLoginPath(cfg.Gate.LoginPath),
		session.WithProtectedPrefixes(cfg.Gate.ProtectedPrefixes...),
		session.WithPublicPaths(cfg.Gate.PublicPaths...),
		session.WithLogger(logger),
	}
	gate, err := session.NewGate(svc, gateOpts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	dc, err := docs.NewClient(cfg.Upstream.BaseURL, docs.WithTimeout(cfg.Upstream.Timeout))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	api, err := httpapi.New(httpapi.Deps{
		Auth:    svc,
		Gate:    gate,
		Docs:    dc,
		Ready:   st,
		Version: version,
	}, httpapi.Limits{
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		RateBurst:         cfg.HTTP.RateBurst,
		RatePerSecond:     cfg.HTTP.RatePerSecond,
		TrustForwardedFor: cfg.HTTP.TrustForwardedFor,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build http api: %w", err)
	}

	return &app{
		cfg:   cfg,
		store: st,
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.Handler(),
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
			IdleTimeout:       cfg.HTTP.IdleTimeout,
		},
	}, nil
}

func (a *app) Close() error { return a.store.Close() }
