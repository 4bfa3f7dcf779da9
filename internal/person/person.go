package person

import (
	"time"

	"gorm.io/gorm"
)

// Role represents the set of possible user roles.
// @Description user role type: "admin", "teacher", "student" or "parent"
type Role string

const (
	// Admin has full access
	Admin Role = "admin"
	// Teacher manages classes
	Teacher Role = "teacher"
	// Student is the default role
	Student Role = "student"
	// Parent follows a student
	Parent Role = "parent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case Admin, Teacher, Student, Parent:
		return true
	}
	return false
}

// Person is the user row. It owns the credential (password hash and active flag).
type Person struct {
	gorm.Model
	FirstName   string `gorm:"not null"`
	LastName    string `gorm:"not null"`
	Email       string `gorm:"uniqueIndex;not null"`
	Password    string `json:"-" gorm:"not null"`
	Role        Role   `gorm:"type:text;not null"`
	Phone       *string
	DateOfBirth *time.Time
	Address     *string
	IsActive    bool `gorm:"not null"`
}

// TableName pins the table to "persons"; refresh token queries join on it by name.
func (Person) TableName() string {
	return "persons"
}

// NewPerson initializes an active Person. An empty role falls back to Student.
func NewPerson(firstName, lastName, email, passwordHash string, role Role) *Person {
	if role == "" {
		role = Student
	}
	return &Person{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  passwordHash,
		Role:      role,
		IsActive:  true,
	}
}

// Profile is the public view of a Person. It never carries the password hash.
// @Description public user profile
type Profile struct {
	ID          uint       `json:"id"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	Phone       *string    `json:"phone"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	Address     *string    `json:"address"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (p *Person) Profile() *Profile {
	return &Profile{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Email:       p.Email,
		Role:        p.Role,
		Phone:       p.Phone,
		DateOfBirth: p.DateOfBirth,
		Address:     p.Address,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ProfileUpdate lists the mutable profile fields. A nil field is left untouched;
// a non-nil empty Phone or Address clears the column.
type ProfileUpdate struct {
	FirstName   *string    `json:"firstName"`
	LastName    *string    `json:"lastName"`
	Phone       *string    `json:"phone"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	Address     *string    `json:"address"`
}

func (u ProfileUpdate) IsEmpty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Phone == nil &&
		u.DateOfBirth == nil && u.Address == nil
}

// columns maps the present fields to column values. Empty phone/address become NULL.
func (u ProfileUpdate) columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if u.FirstName != nil {
		cols["first_name"] = *u.FirstName
	}
	if u.LastName != nil {
		cols["last_name"] = *u.LastName
	}
	if u.Phone != nil {
		cols["phone"] = nullable(*u.Phone)
	}
	if u.DateOfBirth != nil {
		cols["date_of_birth"] = *u.DateOfBirth
	}
	if u.Address != nil {
		cols["address"] = nullable(*u.Address)
	}
	return cols
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
