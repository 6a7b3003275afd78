package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/docker/pkg/stringid"

	"sdnlab/internal/emulation/domain"
)

var ErrLabNotFound = errors.New("lab not found")

// LabRepository stores lab records as JSON files, one per lab.
type LabRepository struct {
	dir string
}

func NewLabRepository(dir string) (*LabRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &LabRepository{dir: dir}, nil
}

func (r *LabRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

// Save writes the lab, assigning it an ID first if it has none.
func (r *LabRepository) Save(lab *domain.Lab) error {
	if lab.ID == "" {
		lab.ID = stringid.GenerateRandomID()
	}

	data, err := json.MarshalIndent(lab, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lab %s: %w", lab.Name, err)
	}
	// Readers never see a partial record.
	tmp := r.path(lab.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write lab %s: %w", lab.Name, err)
	}
	if err := os.Rename(tmp, r.path(lab.ID)); err != nil {
		return fmt.Errorf("write lab %s: %w", lab.Name, err)
	}
	return nil
}

func (r *LabRepository) FindByID(id string) (*domain.Lab, error) {
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLabNotFound, id)
		}
		return nil, err
	}

	var lab domain.Lab
	if err := json.Unmarshal(data, &lab); err != nil {
		return nil, fmt.Errorf("decode lab %s: %w", id, err)
	}
	return &lab, nil
}

// FindByName returns the lab named exactly name.
func (r *LabRepository) FindByName(name string) (*domain.Lab, error) {
	labs, err := r.List()
	if err != nil {
		return nil, err
	}
	return byName(labs, name)
}

func byName(labs []*domain.Lab, name string) (*domain.Lab, error) {
	for _, lab := range labs {
		if lab.Name == name {
			return lab, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLabNotFound, name)
}

// Find resolves ref as a lab name or an ID prefix.
func (r *LabRepository) Find(ref string) (*domain.Lab, error) {
	labs, err := r.List()
	if err != nil {
		return nil, err
	}
	if lab, err := byName(labs, ref); err == nil {
		return lab, nil
	}
	var match *domain.Lab
	for _, lab := range labs {
		if ref != "" && strings.HasPrefix(lab.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("lab reference %s is ambiguous", ref)
			}
			match = lab
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrLabNotFound, ref)
	}
	return match, nil
}

// List returns every readable lab, oldest first.
func (r *LabRepository) List() ([]*domain.Lab, error) {
	files, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list labs: %w", err)
	}

	var labs []*domain.Lab
	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}
		lab, err := r.FindByID(strings.TrimSuffix(file.Name(), ".json"))
		if err != nil {
			continue
		}
		labs = append(labs, lab)
	}
	sort.SliceStable(labs, func(i, j int) bool {
		return labs[i].CreatedAt < labs[j].CreatedAt
	})
	return labs, nil
}

func (r *LabRepository) Delete(id string) error {
	if err := os.Remove(r.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrLabNotFound, id)
		}
		return fmt.Errorf("delete lab %s: %w", id, err)
	}
	return nil
}
