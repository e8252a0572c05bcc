package mocks

import "github.com/stretchr/testify/mock"

// Repository mocks env.Repository.
type Repository struct {
	mock.Mock
}

// List ...
func (r *Repository) List() []string {
	args := r.Called()
	if list, ok := args.Get(0).([]string); ok {
		return list
	}
	return nil
}

// Unset ...
func (r *Repository) Unset(key string) error {
	return optionalError(r.Called(key), 0)
}

// Get ...
func (r *Repository) Get(key string) string {
	return r.Called(key).String(0)
}

// Set ...
func (r *Repository) Set(key, value string) error {
	return optionalError(r.Called(key, value), 0)
}
