package roster

import "time"

// Student is a member of exactly one section. Attendance records are
// validated against Active and SectionID.
type Student struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	SectionID    string     `json:"sectionId"`
	Active       bool       `json:"active"`
	FaceEnrolled bool       `json:"faceEnrolled"`
	PhotoURL     *string    `json:"photoUrl,omitempty"`
	EnrolledAt   *time.Time `json:"enrolledAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Faculty is a teacher account. PasswordHash is never serialized.
type Faculty struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Section is a class group owned by one faculty member.
type Section struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FacultyID string    `json:"facultyId"`
	CreatedAt time.Time `json:"createdAt"`
}
