package country

import "errors"

var (
	// ErrUnknownDifficulty is returned when a difficulty name is not recognized.
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	// ErrNotEnoughCountries means the filtered pool is below MinPool.
	ErrNotEnoughCountries = errors.New("not enough countries for this selection")
)
