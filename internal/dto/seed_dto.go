package dto

// RosterSeedRequest loads reference data for local and staging environments.
type RosterSeedRequest struct {
	Teachers    []TeacherSeed    `json:"teachers" validate:"dive"`
	Students    []StudentSeed    `json:"students" validate:"dive"`
	Assignments []AssignmentSeed `json:"assignments" validate:"dive"`
}

// TeacherSeed describes one teacher.
type TeacherSeed struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email,max=120"`
}

// StudentSeed describes one student.
type StudentSeed struct {
	Name  string `json:"name" validate:"required,max=120"`
	RegNo string `json:"reg_no" validate:"required,max=20"`
	Email string `json:"email" validate:"required,email,max=120"`
}

// AssignmentSeed describes one assignment owned by a teacher.
type AssignmentSeed struct {
	Title        string `json:"title" validate:"required,min=3,max=200"`
	Description  string `json:"description"`
	DueDate      string `json:"due_date" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	TeacherEmail string `json:"teacher_email" validate:"required,email"`
}

// RosterSeedResponse counts rows written per table.
type RosterSeedResponse struct {
	Teachers    int64 `json:"teachers"`
	Students    int64 `json:"students"`
	Assignments int64 `json:"assignments"`
}
