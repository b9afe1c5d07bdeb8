// Package mocks holds gomock doubles for ports that are awkward to fake by hand.
//
// Regenerate after interface changes:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=role_source_mock.go github.com/dimitrije/shopfront-api/internal/guard RoleSource
