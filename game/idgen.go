package game

import "github.com/google/uuid"

type uuidGen struct{}

func NewIdGen() uuidGen {
	return uuidGen{}
}

// Generate returns a random UUIDv4. Ids are never reused.
func (uuidGen) Generate() string {
	return uuid.NewString()
}
