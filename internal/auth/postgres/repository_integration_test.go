// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/warden/internal/auth"
	authpg "github.com/holomush/warden/internal/auth/postgres"
)

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		users *authpg.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
		users = authpg.NewUserRepository(env.pool)
	})

	It("adds and finds users by every unique field", func() {
		u, err := users.Add(ctx, "bob@example.com", "hash")
		Expect(err).NotTo(HaveOccurred())

		byEmail, err := users.Find(ctx, auth.UserFilter{Email: "bob@example.com"})
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(u.ID))

		session := auth.HashToken("session")
		reset := auth.HashToken("reset")
		created := time.Now().UTC().Truncate(time.Microsecond)
		Expect(users.Update(ctx, u.ID, auth.UserUpdate{
			SessionTokenHash: auth.Assign(&session),
			SessionCreatedAt: auth.Assign(&created),
			ResetTokenHash:   auth.Assign(&reset),
		})).To(Succeed())

		bySession, err := users.Find(ctx, auth.UserFilter{SessionTokenHash: session})
		Expect(err).NotTo(HaveOccurred())
		Expect(bySession.ID).To(Equal(u.ID))
		Expect(bySession.SessionCreatedAt).NotTo(BeNil())
		Expect(bySession.SessionCreatedAt.Equal(created)).To(BeTrue())

		byReset, err := users.Find(ctx, auth.UserFilter{ResetTokenHash: reset})
		Expect(err).NotTo(HaveOccurred())
		Expect(byReset.ID).To(Equal(u.ID))
	})

	It("rejects a duplicate email", func() {
		_, err := users.Add(ctx, "bob@example.com", "hash")
		Expect(err).NotTo(HaveOccurred())

		_, err = users.Add(ctx, "bob@example.com", "other")
		Expect(errors.Is(err, auth.ErrAlreadyExists)).To(BeTrue())
	})

	It("clears nullable fields", func() {
		u, err := users.Add(ctx, "bob@example.com", "hash")
		Expect(err).NotTo(HaveOccurred())

		reset := auth.HashToken("reset")
		Expect(users.Update(ctx, u.ID, auth.UserUpdate{ResetTokenHash: auth.Assign(&reset)})).To(Succeed())
		Expect(users.Update(ctx, u.ID, auth.UserUpdate{
			PasswordHash:   auth.Assign("new"),
			ResetTokenHash: auth.Null[string](),
		})).To(Succeed())

		got, err := users.GetByID(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.PasswordHash).To(Equal("new"))
		Expect(got.ResetTokenHash).To(BeNil())
		Expect(got.UpdatedAt).To(BeTemporally(">=", got.CreatedAt))
	})

	It("reports unknown users as not found", func() {
		_, err := users.GetByID(ctx, ulid.Make())
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())

		err = users.Update(ctx, ulid.Make(), auth.UserUpdate{PasswordHash: auth.Assign("x")})
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})
})

var _ = Describe("SessionRepository", func() {
	var (
		ctx      context.Context
		users    *authpg.UserRepository
		sessions *authpg.SessionRepository
		owner    *auth.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
		users = authpg.NewUserRepository(env.pool)
		sessions = authpg.NewSessionRepository(env.pool)

		var err error
		owner, err = users.Add(ctx, "bob@example.com", "hash")
		Expect(err).NotTo(HaveOccurred())
	})

	newSession := func() *auth.Session {
		_, hash, err := auth.GenerateSessionToken()
		Expect(err).NotTo(HaveOccurred())
		s, err := auth.NewSession(owner.ID, hash, time.Now().UTC().Truncate(time.Microsecond))
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	It("stores, resolves and deletes a session", func() {
		s := newSession()
		Expect(sessions.Create(ctx, s)).To(Succeed())

		got, err := sessions.GetByTokenHash(ctx, s.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(s.ID))
		Expect(got.UserID).To(Equal(owner.ID))
		Expect(got.CreatedAt.Equal(s.CreatedAt)).To(BeTrue())

		Expect(sessions.DeleteByTokenHash(ctx, s.TokenHash)).To(Succeed())
		err = sessions.DeleteByTokenHash(ctx, s.TokenHash)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("deletes every session of a user", func() {
		Expect(sessions.Create(ctx, newSession())).To(Succeed())
		Expect(sessions.Create(ctx, newSession())).To(Succeed())

		n, err := sessions.DeleteByUser(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(2)))
	})

	It("drives the auth service end to end", func() {
		reg, err := auth.NewStoredRegistry(users, sessions, auth.WithSessionDuration(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		hasher, err := auth.NewBcryptHasher(4)
		Expect(err).NotTo(HaveOccurred())
		svc, err := auth.NewAuthService(users, reg, hasher)
		Expect(err).NotTo(HaveOccurred())

		registered, err := svc.Register(ctx, "alice@example.com", "hunter22")
		Expect(err).NotTo(HaveOccurred())

		token, err := svc.Login(ctx, "alice@example.com", "hunter22")
		Expect(err).NotTo(HaveOccurred())

		user, err := svc.ResolveSession(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(user.ID).To(Equal(registered.ID))

		Expect(svc.LogoutUser(ctx, registered.ID)).To(Succeed())
		err = svc.LogoutUser(ctx, registered.ID)
		Expect(auth.ErrorCode(err)).To(Equal(auth.CodeNotFound))
	})
})
