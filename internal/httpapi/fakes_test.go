// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/skycast/skycast/internal/account"
	"github.com/skycast/skycast/internal/auth"
	"github.com/skycast/skycast/internal/history"
	"github.com/skycast/skycast/internal/weather"
)

// fakeAuth answers from canned results and verifies sessions with a real
// issuer.
type fakeAuth struct {
	sessions *auth.SessionIssuer

	registerErr error
	loginErr    error
	verifyErr   error
	resendToken string
	resetToken  string
	resetErr    error
	registered  []auth.RegisterInput
	verified    []string
	resetCalls  int
	loginUser   *auth.User
}

func (f *fakeAuth) Register(_ context.Context, in auth.RegisterInput) (*auth.Registration, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = append(f.registered, in)
	return &auth.Registration{
		UserID:            ulid.Make(),
		Email:             auth.NormalizeEmail(in.Email),
		VerificationToken: "verify-token",
		ExpiresAt:         time.Now().Add(auth.VerificationTokenTTL),
	}, nil
}

func (f *fakeAuth) Login(_ context.Context, _, _ string) (*auth.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	token, exp, err := f.sessions.Issue(f.loginUser.Identity())
	if err != nil {
		return nil, err
	}
	return &auth.LoginResult{Token: token, ExpiresAt: exp, User: f.loginUser}, nil
}

func (f *fakeAuth) VerifyEmail(_ context.Context, token string) error {
	f.verified = append(f.verified, token)
	return f.verifyErr
}

func (f *fakeAuth) ResendVerification(context.Context, string) (string, error) {
	return f.resendToken, nil
}

func (f *fakeAuth) RequestPasswordReset(context.Context, string) (string, error) {
	return f.resetToken, nil
}

func (f *fakeAuth) ResetPassword(context.Context, string, string) error {
	f.resetCalls++
	return f.resetErr
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*auth.Claims, error) {
	return f.sessions.Verify(token)
}

type fakeAccounts struct {
	users   map[ulid.ULID]*auth.User
	deleted []ulid.ULID
}

func (f *fakeAccounts) Profile(_ context.Context, id ulid.ULID) (*auth.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).Errorf("user not found")
	}
	return u, nil
}

func (f *fakeAccounts) UpdateProfile(ctx context.Context, id ulid.ULID, upd account.ProfileUpdate) (*auth.User, error) {
	u, err := f.Profile(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.FirstName != nil {
		if !auth.IsValidName(*upd.FirstName) {
			return nil, oops.Code(auth.CodeInvalidName).Errorf("name too long")
		}
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Preferences != nil {
		u.Preferences = upd.Preferences.Merge(u.Preferences)
	}
	return u, nil
}

func (f *fakeAccounts) UpdatePreferences(ctx context.Context, id ulid.ULID, patch account.PreferencesPatch) (*auth.Preferences, error) {
	u, err := f.UpdateProfile(ctx, id, account.ProfileUpdate{Preferences: &patch})
	if err != nil {
		return nil, err
	}
	return &u.Preferences, nil
}

func (f *fakeAccounts) Delete(_ context.Context, id ulid.ULID) error {
	f.deleted = append(f.deleted, id)
	delete(f.users, id)
	return nil
}

type fakeWeather struct {
	current *weather.Current
	err     error
	pingErr error
	panics  bool
}

func (f *fakeWeather) Current(_ context.Context, city string) (*weather.Current, error) {
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	c := *f.current
	c.Location = city
	return &c, nil
}

func (f *fakeWeather) Forecast(_ context.Context, city string) (*weather.Forecast, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &weather.Forecast{Location: city, Items: []weather.ForecastItem{{Temperature: 12}}}, nil
}

func (f *fakeWeather) AirQuality(_ context.Context, lat, lon float64) (*weather.AirQuality, error) {
	return &weather.AirQuality{
		Coordinates: weather.Coordinates{Lat: lat, Lon: lon},
		AQI:         2,
		Label:       weather.AQILabel(2),
	}, nil
}

func (f *fakeWeather) Ping(context.Context) error { return f.pingErr }

type recorded struct {
	userID ulid.ULID
	query  string
	loc    history.Location
}

type fakeHistory struct {
	recorded []recorded
	entries  []history.Entry
	limits   []int
	cleared  int64
}

func (f *fakeHistory) Record(_ context.Context, userID ulid.ULID, query string, loc history.Location) {
	f.recorded = append(f.recorded, recorded{userID, query, loc})
}

func (f *fakeHistory) List(_ context.Context, _ ulid.ULID, limit int) ([]history.Entry, error) {
	f.limits = append(f.limits, limit)
	return f.entries, nil
}

func (f *fakeHistory) Delete(_ context.Context, userID, id ulid.ULID) error {
	for _, e := range f.entries {
		if e.ID == id && e.UserID == userID {
			return nil
		}
	}
	return oops.Code(history.CodeNotFound).Errorf("history entry not found")
}

func (f *fakeHistory) Clear(context.Context, ulid.ULID) (int64, error) {
	return f.cleared, nil
}

type sentMail struct {
	kind, to, token string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendVerification(_ context.Context, to, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{"verify", to, token})
	return f.err
}

func (f *fakeMailer) SendPasswordReset(_ context.Context, to, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{"reset", to, token})
	return f.err
}

type fakeMetrics struct {
	mu            sync.Mutex
	requests      []string
	registrations int
	logins        map[string]int
}

func (f *fakeMetrics) ObserveRequest(method, route, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, method+" "+route+" "+status)
}

func (f *fakeMetrics) RecordRegistration() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations++
}

func (f *fakeMetrics) RecordLogin(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logins == nil {
		f.logins = map[string]int{}
	}
	f.logins[status]++
}
