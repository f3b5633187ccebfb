// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/skycast/skycast/internal/account"
	"github.com/skycast/skycast/internal/auth"
	authpg "github.com/skycast/skycast/internal/auth/postgres"
	"github.com/skycast/skycast/internal/history"
	historypg "github.com/skycast/skycast/internal/history/postgres"
	"github.com/skycast/skycast/internal/httpapi"
	"github.com/skycast/skycast/internal/mail"
	"github.com/skycast/skycast/internal/observability"
	"github.com/skycast/skycast/internal/weather"
)

const owmCurrent = `{
  "name": "Paris",
  "coord": {"lat": 48.85, "lon": 2.35},
  "sys": {"country": "FR"},
  "main": {"temp": 18.4, "humidity": 60},
  "wind": {"speed": 3.5},
  "weather": [{"description": "clear sky", "icon": "01d"}]
}`

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiClient struct {
	base  string
	token string
}

func (c *apiClient) do(method, path string, body any) (int, envelope) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var env envelope
	Expect(json.NewDecoder(resp.Body).Decode(&env)).To(Succeed())
	return resp.StatusCode, env
}

func decode[T any](raw json.RawMessage) T {
	var v T
	Expect(json.Unmarshal(raw, &v)).To(Succeed())
	return v
}

var _ = Describe("HTTP API", func() {
	var (
		api    *httptest.Server
		owm    *httptest.Server
		client *apiClient
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))

		owm = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/data/2.5/weather" || r.URL.Query().Get("q") != "Paris" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"cod":"404","message":"city not found"}`)
				return
			}
			_, _ = io.WriteString(w, owmCurrent)
		}))
		DeferCleanup(owm.Close)

		users := authpg.NewUserRepository(pgStore.Pool)
		sessions, err := auth.NewSessionIssuer([]byte("integration-secret"))
		Expect(err).NotTo(HaveOccurred())
		authSvc, err := auth.NewService(users, auth.NewArgon2idHasher(), sessions, auth.WithLogger(logger))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(authSvc.Wait)

		historySvc, err := history.NewService(historypg.NewRepository(pgStore.Pool), history.WithLogger(logger))
		Expect(err).NotTo(HaveOccurred())
		accounts, err := account.NewService(users, historySvc, logger)
		Expect(err).NotTo(HaveOccurred())

		metrics := observability.NewMetrics(observability.NewRegistry())
		weatherClient, err := weather.NewClient(owm.URL, "owm-key", weather.WithRecorder(metrics))
		Expect(err).NotTo(HaveOccurred())

		srv, err := httpapi.New(httpapi.Deps{
			Auth:     authSvc,
			Accounts: accounts,
			Weather:  weatherClient,
			History:  historySvc,
			Mailer:   mail.NewLogNotifier(logger),
			Metrics:  metrics,
			Logger:   logger,
		}, httpapi.Config{
			CORSOrigins:  []string{"http://localhost:3000"},
			ExposeTokens: true,
		})
		Expect(err).NotTo(HaveOccurred())

		api = httptest.NewServer(srv.Handler())
		DeferCleanup(api.Close)
		client = &apiClient{base: api.URL + "/api/v1"}
	})

	It("walks an account from registration to deletion", func() {
		email := uniqueEmail()

		status, env := client.do(http.MethodPost, "/auth/register", map[string]string{
			"email": email, "password": "GoodPass1", "firstName": "Ada", "lastName": "Lovelace",
		})
		Expect(status).To(Equal(http.StatusCreated))
		reg := decode[struct {
			UserID            string `json:"userId"`
			VerificationToken string `json:"verificationToken"`
		}](env.Data)
		Expect(reg.VerificationToken).To(HaveLen(64))

		status, env = client.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": "GoodPass1"})
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(env.Error.Code).To(Equal(auth.CodeUnverified))

		status, _ = client.do(http.MethodPost, "/auth/verify-email", map[string]string{"token": reg.VerificationToken})
		Expect(status).To(Equal(http.StatusOK))

		status, env = client.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": "GoodPass1"})
		Expect(status).To(Equal(http.StatusOK))
		login := decode[struct {
			Token string `json:"token"`
		}](env.Data)
		Expect(login.Token).NotTo(BeEmpty())
		client.token = login.Token

		status, env = client.do(http.MethodGet, "/profile", nil)
		Expect(status).To(Equal(http.StatusOK))
		profile := decode[struct {
			ID        string `json:"id"`
			FirstName string `json:"firstName"`
		}](env.Data)
		Expect(profile.ID).To(Equal(reg.UserID))
		Expect(profile.FirstName).To(Equal("Ada"))

		status, env = client.do(http.MethodPatch, "/profile/preferences", map[string]string{"temperatureUnit": "fahrenheit"})
		Expect(status).To(Equal(http.StatusOK))
		prefs := decode[auth.Preferences](env.Data)
		Expect(prefs.TemperatureUnit).To(Equal(auth.Fahrenheit))

		status, env = client.do(http.MethodGet, "/weather/current?city=Paris", nil)
		Expect(status).To(Equal(http.StatusOK))
		current := decode[weather.Current](env.Data)
		Expect(current.Location).To(Equal("Paris"))
		Expect(current.Temperature).To(Equal(18))

		status, env = client.do(http.MethodGet, "/weather/current?city=Atlantis", nil)
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(env.Error.Code).To(Equal(weather.CodeCityNotFound))

		status, env = client.do(http.MethodGet, "/weather/history", nil)
		Expect(status).To(Equal(http.StatusOK))
		hist := decode[struct {
			Items []history.Entry `json:"items"`
			Count int             `json:"count"`
		}](env.Data)
		Expect(hist.Count).To(Equal(1))
		Expect(hist.Items[0].City).To(Equal("Paris"))

		status, _ = client.do(http.MethodDelete, "/profile", nil)
		Expect(status).To(Equal(http.StatusOK))

		status, env = client.do(http.MethodGet, "/profile", nil)
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(env.Error.Code).To(Equal(auth.CodeUserNotFound))
	})

	It("rejects a duplicate registration with a conflict", func() {
		body := map[string]string{"email": uniqueEmail(), "password": "GoodPass1"}
		status, _ := client.do(http.MethodPost, "/auth/register", body)
		Expect(status).To(Equal(http.StatusCreated))

		body["password"] = "Other1Pass"
		status, env := client.do(http.MethodPost, "/auth/register", body)
		Expect(status).To(Equal(http.StatusConflict))
		Expect(env.Error.Code).To(Equal(auth.CodeEmailTaken))
	})

	It("serves the legacy unversioned prefix", func() {
		legacy := &apiClient{base: api.URL + "/api"}
		status, env := legacy.do(http.MethodPost, "/auth/login", map[string]string{"email": uniqueEmail(), "password": "GoodPass1"})
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(env.Error.Code).To(Equal(auth.CodeInvalidCredentials))
	})

	It("requires a session for weather routes", func() {
		status, env := client.do(http.MethodGet, "/weather/current?city=Paris", nil)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(env.Error.Code).To(Equal(auth.CodeSessionMissing))
	})
})
