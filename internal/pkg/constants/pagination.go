package constants

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MinPageSize     = 1
	MaxPageSize     = 100
)
