package planner

import "errors"

var (
	// ErrIdentifierMismatch is returned when a NodeID names a different table
	// than the one being resolved.
	ErrIdentifierMismatch = errors.New("identifier mismatch")
	// ErrInvalidCursor is returned when an after/before cursor names a
	// different table than the connection.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrInvalidPaginationArguments is returned for conflicting or negative
	// first/last/after/before arguments.
	ErrInvalidPaginationArguments = errors.New("invalid pagination arguments")
	// ErrInvalidCondition is returned when a condition names an unknown field.
	ErrInvalidCondition = errors.New("invalid condition")
	// ErrUnsupportedSelection is returned for selections the compiler cannot
	// turn into SQL.
	ErrUnsupportedSelection = errors.New("unsupported selection")
)
