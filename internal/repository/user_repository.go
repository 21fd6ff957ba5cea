package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// UserRepo persists patients and doctors in the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,role,specialty,name,surname,birth_date,phone_no,available,created_at,updated_at"

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts u.  The caller assigns ID and PasswordHash.  A duplicate
// email is reported as a validation error with code EMAIL_TAKEN.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	var specialty sql.NullString
	if u.Specialty != "" {
		specialty = sql.NullString{String: string(u.Specialty), Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id,email,password_hash,role,specialty,name,surname,birth_date,phone_no,available,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)",
		u.ID, u.Email, u.PasswordHash, string(u.Role), specialty, u.Name, u.Surname,
		u.BirthDate, u.PhoneNo, u.Available, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if IsDuplicate(err) {
			return apperr.NewValidation(apperr.CodeEmailTaken, "email already registered")
		}
		return classify("create user", err)
	}
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email))
	return scanUser(row, "get user by email")
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row, "get user")
}

// ListDoctorsBySpecialty returns every doctor of a specialty ordered by
// surname then name.
func (r *UserRepo) ListDoctorsBySpecialty(ctx context.Context, s model.Specialty) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE role='DOCTOR' AND specialty=? ORDER BY surname, name, id",
		string(s))
	if err != nil {
		return nil, classify("list doctors", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows, "list doctors")
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list doctors", err)
	}
	return out, nil
}

// SetAvailability toggles whether a doctor accepts new requests.
func (r *UserRepo) SetAvailability(ctx context.Context, doctorID string, available bool) error {
	var role string
	err := r.DB.QueryRowContext(ctx, "SELECT role FROM users WHERE id=? LIMIT 1", doctorID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && role != string(model.RoleDoctor)) {
		return apperr.NewNotFound("doctor not found")
	}
	if err != nil {
		return classify("set availability", err)
	}
	_, err = r.DB.ExecContext(ctx, "UPDATE users SET available=? WHERE id=?", available, doctorID)
	return classify("set availability", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, op string) (model.User, error) {
	var (
		u         model.User
		role      string
		specialty sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &specialty, &u.Name, &u.Surname,
		&u.BirthDate, &u.PhoneNo, &u.Available, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, apperr.NewNotFound("user not found")
	}
	if err != nil {
		return model.User{}, classify(op, err)
	}
	u.Role = model.Role(role)
	if specialty.Valid {
		u.Specialty = model.Specialty(specialty.String)
	}
	return u, nil
}
