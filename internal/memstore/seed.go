package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/leadflow/backend/internal/models"
)

// Seed is the JSON document accepted by LoadSeed.
type Seed struct {
	Skills      []models.Skill      `json:"skills"`
	Consultants []models.Consultant `json:"consultants"`
}

func (s *Store) LoadSeed(ctx context.Context, r io.Reader) (Seed, error) {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	for _, sk := range seed.Skills {
		if _, err := s.UpsertSkill(ctx, sk); err != nil {
			return Seed{}, err
		}
	}
	for _, c := range seed.Consultants {
		if _, err := s.UpsertConsultant(ctx, c); err != nil {
			return Seed{}, err
		}
	}
	return seed, nil
}

func (s *Store) LoadSeedFile(ctx context.Context, path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer f.Close()
	return s.LoadSeed(ctx, f)
}
