// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

//go:build integration

package integration

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/skycast/skycast/internal/auth"
	authmongo "github.com/skycast/skycast/internal/auth/mongo"
	authpg "github.com/skycast/skycast/internal/auth/postgres"
	"github.com/skycast/skycast/pkg/errutil"
)

// testClock is a settable clock shared by the service and session issuer.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func uniqueEmail() string {
	return "a-" + strings.ToLower(ulid.Make().String()) + "@x.com"
}

func newAuthService(users auth.UserRepository, clock *testClock) *auth.Service {
	sessions, err := auth.NewSessionIssuer([]byte("integration-secret"),
		auth.WithSessionClock(clock.Now))
	Expect(err).NotTo(HaveOccurred())
	svc, err := auth.NewService(users, auth.NewArgon2idHasher(), sessions,
		auth.WithClock(clock.Now))
	Expect(err).NotTo(HaveOccurred())
	return svc
}

var _ = Describe("Account authentication", func() {
	backends := []struct {
		name    string
		newRepo func() auth.UserRepository
	}{
		{"postgres", func() auth.UserRepository { return authpg.NewUserRepository(pgStore.Pool) }},
		{"mongo", func() auth.UserRepository { return authmongo.NewUserRepository(mongoStore.DB) }},
	}

	for _, backend := range backends {
		newRepo := backend.newRepo
		Context("with the "+backend.name+" backend", func() {
			var (
				ctx   context.Context
				clock *testClock
				svc   *auth.Service
			)

			BeforeEach(func() {
				ctx = context.Background()
				clock = &testClock{now: time.Now().UTC().Truncate(time.Second)}
				svc = newAuthService(newRepo(), clock)
				DeferCleanup(svc.Wait)
			})

			It("verifies an account before allowing login", func() {
				email := uniqueEmail()
				reg, err := svc.Register(ctx, auth.RegisterInput{Email: email, Password: "GoodPass1"})
				Expect(err).NotTo(HaveOccurred())
				Expect(reg.VerificationToken).To(HaveLen(64))

				_, err = svc.Login(ctx, email, "GoodPass1")
				Expect(errutil.Code(err)).To(Equal(auth.CodeUnverified))

				Expect(svc.VerifyEmail(ctx, reg.VerificationToken)).To(Succeed())

				result, err := svc.Login(ctx, email, "GoodPass1")
				Expect(err).NotTo(HaveOccurred())

				claims, err := svc.Authenticate(ctx, result.Token)
				Expect(err).NotTo(HaveOccurred())
				Expect(claims.UserID()).To(Equal(reg.UserID))
				Expect(claims.Identity().Email).To(Equal(email))
			})

			It("rejects a second registration for the same email", func() {
				email := uniqueEmail()
				_, err := svc.Register(ctx, auth.RegisterInput{Email: email, Password: "GoodPass1"})
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.Register(ctx, auth.RegisterInput{Email: strings.ToUpper(email), Password: "Other1Pass"})
				Expect(errutil.Code(err)).To(Equal(auth.CodeEmailTaken))
			})

			It("reports an unknown email as invalid credentials", func() {
				_, err := svc.Login(ctx, uniqueEmail(), "GoodPass1")
				Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidCredentials))
			})

			It("rejects an expired verification token", func() {
				reg, err := svc.Register(ctx, auth.RegisterInput{Email: uniqueEmail(), Password: "GoodPass1"})
				Expect(err).NotTo(HaveOccurred())

				clock.Advance(auth.VerificationTokenTTL + time.Minute)

				err = svc.VerifyEmail(ctx, reg.VerificationToken)
				Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidToken))
			})

			It("resets a password with a reset token", func() {
				email := uniqueEmail()
				reg, err := svc.Register(ctx, auth.RegisterInput{Email: email, Password: "GoodPass1"})
				Expect(err).NotTo(HaveOccurred())
				Expect(svc.VerifyEmail(ctx, reg.VerificationToken)).To(Succeed())

				token, err := svc.RequestPasswordReset(ctx, email)
				Expect(err).NotTo(HaveOccurred())
				Expect(token).To(HaveLen(64))

				Expect(svc.ResetPassword(ctx, token, "NewPass99")).To(Succeed())

				_, err = svc.Login(ctx, email, "GoodPass1")
				Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidCredentials))
				_, err = svc.Login(ctx, email, "NewPass99")
				Expect(err).NotTo(HaveOccurred())

				err = svc.ResetPassword(ctx, token, "Another1Pass")
				Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidToken), "reset tokens are single use")
			})

			It("reports the store as reachable", func() {
				Expect(svc.Ping(ctx)).To(Succeed())
			})
		})
	}
})
