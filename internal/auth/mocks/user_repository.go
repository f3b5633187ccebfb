// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

// Package mocks provides testify mocks for auth interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/skycast/skycast/internal/auth"
)

// MockUserRepository is a testify mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func userResult(ret mock.Arguments) (*auth.User, error) {
	var u *auth.User
	if v := ret.Get(0); v != nil {
		u = v.(*auth.User)
	}
	return u, ret.Error(1)
}

// Create mocks auth.UserRepository.Create.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

// GetByID mocks auth.UserRepository.GetByID.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return userResult(m.Called(ctx, id))
}

// GetByEmail mocks auth.UserRepository.GetByEmail.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return userResult(m.Called(ctx, email))
}

// GetByVerificationToken mocks auth.UserRepository.GetByVerificationToken.
func (m *MockUserRepository) GetByVerificationToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return userResult(m.Called(ctx, tokenHash))
}

// GetByResetToken mocks auth.UserRepository.GetByResetToken.
func (m *MockUserRepository) GetByResetToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return userResult(m.Called(ctx, tokenHash))
}

// Update mocks auth.UserRepository.Update.
func (m *MockUserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.UserPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

// Delete mocks auth.UserRepository.Delete.
func (m *MockUserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// Ping mocks auth.UserRepository.Ping.
func (m *MockUserRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var _ auth.UserRepository = (*MockUserRepository)(nil)
