// Package shared holds code used across packages that belongs to no single
// layer. The testutil subpackage captures slog output so tests can assert on
// what a component logged.
package shared
