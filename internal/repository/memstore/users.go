package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// Users is an in-memory user table with a unique email index.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string
}

// NewUsers returns a store pre-populated with seed.
func NewUsers(seed ...model.User) *Users {
	u := &Users{byID: map[string]model.User{}, byEmail: map[string]string{}}
	for _, s := range seed {
		s.Email = normalizeEmail(s.Email)
		u.byID[s.ID] = s
		u.byEmail[s.Email] = s.ID
	}
	return u
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func (s *Users) Create(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = normalizeEmail(u.Email)
	if _, dup := s.byEmail[u.Email]; dup {
		return apperr.NewValidation(apperr.CodeEmailTaken, "email already registered")
	}
	s.byID[u.ID] = *u
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *Users) GetByID(ctx context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, apperr.NewNotFound("user not found")
	}
	return u, nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return model.User{}, apperr.NewNotFound("user not found")
	}
	return s.byID[id], nil
}

func (s *Users) ListDoctorsBySpecialty(ctx context.Context, sp model.Specialty) ([]model.User, error) {
	s.mu.RLock()
	var out []model.User
	for _, u := range s.byID {
		if u.Role == model.RoleDoctor && u.Specialty == sp {
			out = append(out, u)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Surname != out[j].Surname {
			return out[i].Surname < out[j].Surname
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Users) SetAvailability(ctx context.Context, doctorID string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[doctorID]
	if !ok || u.Role != model.RoleDoctor {
		return apperr.NewNotFound("doctor not found")
	}
	u.Available = available
	s.byID[doctorID] = u
	return nil
}
