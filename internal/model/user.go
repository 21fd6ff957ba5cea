package model

import "time"

// Role is the capability tag of a user.  The scheduler checks it at the
// boundary of each operation instead of branching on concrete user types.
type Role string

const (
    RolePatient Role = "PATIENT"
    RoleDoctor  Role = "DOCTOR"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RolePatient || r == RoleDoctor }

// Specialty is the fixed medical specialty taxonomy a doctor belongs to.
type Specialty string

const (
    SpecialtyDermatology    Specialty = "Dermatology"
    SpecialtyCardiology     Specialty = "Cardiology"
    SpecialtyEye            Specialty = "Eye"
    SpecialtyGeneralSurgery Specialty = "General_Surgery"
)

// Specialties returns the fixed specialty list in display order.
func Specialties() []Specialty {
    return []Specialty{
        SpecialtyDermatology,
        SpecialtyCardiology,
        SpecialtyEye,
        SpecialtyGeneralSurgery,
    }
}

// Valid reports whether s belongs to the fixed specialty set.
func (s Specialty) Valid() bool {
    for _, v := range Specialties() {
        if v == s {
            return true
        }
    }
    return false
}

// MinimumAge is the minimum age, in years, of any registered user.
const MinimumAge = 18

// User represents a row of the `users` table.  Patients and doctors share
// the table; doctor-only columns are empty for patients.
//
// Fields:
//  ID           – UUID primary key.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hash; never leaves the repository layer.
//  Role         – PATIENT or DOCTOR.
//  Specialty    – empty for patients, one of Specialties() for doctors.
//  Name/Surname – display name.
//  BirthDate    – used to derive age.
//  PhoneNo      – optional contact number.
//  Available    – whether a doctor accepts new requests.
type User struct {
    ID           string    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         Role      // users.role
    Specialty    Specialty // users.specialty (empty for patients)
    Name         string    // users.name
    Surname      string    // users.surname
    BirthDate    time.Time // users.birth_date
    PhoneNo      string    // users.phone_no
    Available    bool      // users.available
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// FullName joins name and surname.
func (u User) FullName() string {
    switch {
    case u.Name == "":
        return u.Surname
    case u.Surname == "":
        return u.Name
    }
    return u.Name + " " + u.Surname
}

// Age returns the user's age in whole years at now.
func (u User) Age(now time.Time) int {
    return AgeAt(u.BirthDate, now)
}

// AgeAt computes the age in whole years of someone born at birth, at now.
func AgeAt(birth, now time.Time) int {
    if birth.IsZero() {
        return 0
    }
    years := now.Year() - birth.Year()
    // birthday not reached yet this year
    if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
        years--
    }
    return years
}

// UserRef is the projection of a user the scheduler needs: identity, role
// and doctor metadata.  It never carries password material.
type UserRef struct {
    ID        string    `json:"id"`
    Role      Role      `json:"role"`
    Specialty Specialty `json:"specialty,omitempty"`
    Available bool      `json:"available"`
}

// Ref projects u to a UserRef.
func (u User) Ref() UserRef {
    return UserRef{ID: u.ID, Role: u.Role, Specialty: u.Specialty, Available: u.Available}
}

// DoctorSummary is returned by specialty listings.
type DoctorSummary struct {
    ID           string    `json:"id"`
    Name         string    `json:"name"`
    Specialty    Specialty `json:"specialty"`
    Availability bool      `json:"availability"`
}
