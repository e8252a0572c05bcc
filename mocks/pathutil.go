// Package mocks holds testify mocks of the go-utils v2 interfaces the step
// depends on.
package mocks

import "github.com/stretchr/testify/mock"

// PathChecker mocks pathutil.PathChecker.
type PathChecker struct {
	mock.Mock
}

// IsPathExists ...
func (c *PathChecker) IsPathExists(pth string) (bool, error) {
	args := c.Called(pth)
	return args.Bool(0), optionalError(args, 1)
}

// IsDirExists ...
func (c *PathChecker) IsDirExists(pth string) (bool, error) {
	args := c.Called(pth)
	return args.Bool(0), optionalError(args, 1)
}

// PathModifier mocks pathutil.PathModifier.
type PathModifier struct {
	mock.Mock
}

// AbsPath ...
func (m *PathModifier) AbsPath(pth string) (string, error) {
	args := m.Called(pth)
	return args.String(0), optionalError(args, 1)
}

// optionalError lets expectations omit a nil error return.
func optionalError(args mock.Arguments, index int) error {
	if len(args) <= index {
		return nil
	}
	return args.Error(index)
}
